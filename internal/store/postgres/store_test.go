package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secwatch/secfeeds/internal/feed"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithDB(mock)
	require.NoError(t, err)
	return store, mock
}

func sampleRecord() feed.Record {
	return feed.Record{
		Title:       "Critical RCE in widget daemon",
		Link:        "https://example.com/rce-widget",
		PublishedAt: time.Date(2025, 8, 14, 15, 4, 5, 0, time.UTC),
		Source:      "SecurityWeek",
		Category:    feed.CategoryVulnerabilities,
		Description: "A remote code execution flaw.",
	}
}

func TestNewWithDB_RequiresDB(t *testing.T) {
	t.Parallel()

	_, err := NewWithDB(nil)
	require.Error(t, err)
}

func TestEnsure_CreatesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS feeds").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_feeds_pub_date").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_feeds_source").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_feeds_advisory_number").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Ensure(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransact_InsertCommits(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO feeds").
		WithArgs(rec.Title, rec.Link, rec.PublishedAt, rec.Source,
			string(rec.Category), rec.Description, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.Transact(context.Background(), func(w feed.RecordWriter) error {
		inserted, err := w.InsertIfAbsent(context.Background(), rec)
		require.NoError(t, err)
		assert.True(t, inserted)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfAbsent_DuplicateLinkIsNoOp(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := sampleRecord()

	mock.ExpectBegin()
	// ON CONFLICT DO NOTHING reports zero rows affected for a duplicate.
	mock.ExpectExec("INSERT INTO feeds").
		WithArgs(rec.Title, rec.Link, rec.PublishedAt, rec.Source,
			string(rec.Category), rec.Description, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	err := store.Transact(context.Background(), func(w feed.RecordWriter) error {
		inserted, err := w.InsertIfAbsent(context.Background(), rec)
		require.NoError(t, err)
		assert.False(t, inserted)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransact_RollsBackOnError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.Transact(context.Background(), func(feed.RecordWriter) error {
		return errors.New("cycle failed")
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrune_DeletesBeforeCutoff(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cutoff := time.Date(2025, 7, 26, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM feeds WHERE pub_date").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectCommit()

	err := store.Transact(context.Background(), func(w feed.RecordWriter) error {
		removed, err := w.Prune(context.Background(), cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(7), removed)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentBySource(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	published := time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "title", "link", "pub_date", "source", "category",
		"description", "advisory_number",
	}).
		AddRow(int64(2), "Newer story", "https://example.com/newer", published,
			"SecurityWeek", "Vulnerabilities", "short summary", nil).
		AddRow(int64(1), "Older story", "https://example.com/older", published.Add(-time.Hour),
			"SecurityWeek", "Vulnerabilities", nil, nil)

	mock.ExpectQuery("SELECT (.+) FROM feeds WHERE source").
		WithArgs("SecurityWeek", 50).
		WillReturnRows(rows)

	records, err := store.RecentBySource(context.Background(), "SecurityWeek", 50)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(2), records[0].ID)
	assert.Equal(t, "Newer story", records[0].Title)
	assert.Equal(t, feed.CategoryVulnerabilities, records[0].Category)
	assert.Equal(t, "short summary", records[0].Description)
	// NULL columns scan to empty strings on the domain type.
	assert.Empty(t, records[1].Description)
	assert.Empty(t, records[1].AdvisoryNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopRecent_OmitsEmptySources(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	published := time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM feeds WHERE source").
		WithArgs("The Hacker News", 5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "title", "link", "pub_date", "source", "category",
			"description", "advisory_number",
		}).AddRow(int64(1), "Story", "https://example.com/story", published,
			"The Hacker News", "Vulnerabilities", nil, nil))
	mock.ExpectQuery("SELECT (.+) FROM feeds WHERE source").
		WithArgs("BleepingComputer", 5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "title", "link", "pub_date", "source", "category",
			"description", "advisory_number",
		}))

	result, err := store.TopRecent(context.Background(),
		[]string{"The Hacker News", "BleepingComputer"}, 5)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Contains(t, result, "The Hacker News")
	assert.NotContains(t, result, "BleepingComputer")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentBySource_QueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM feeds WHERE source").
		WithArgs("SecurityWeek", 50).
		WillReturnError(errors.New("connection closed"))

	_, err := store.RecentBySource(context.Background(), "SecurityWeek", 50)
	require.Error(t, err)
}
