package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/secwatch/secfeeds/internal/feed"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now }

// fakeStore runs the transaction function against an in-memory writer and
// records whether the whole cycle committed.
type fakeStore struct {
	writer    *fakeWriter
	committed bool
}

func (s *fakeStore) Transact(_ context.Context, fn func(feed.RecordWriter) error) error {
	if err := fn(s.writer); err != nil {
		return err
	}
	s.committed = true
	return nil
}

type fakeWriter struct {
	pruneCutoff time.Time
	pruneErr    error
	insertErr   error
	seen        map[string]bool
	inserted    []feed.Record
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{seen: map[string]bool{}}
}

func (w *fakeWriter) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	if w.pruneErr != nil {
		return 0, w.pruneErr
	}
	w.pruneCutoff = cutoff
	return 3, nil
}

func (w *fakeWriter) InsertIfAbsent(_ context.Context, rec feed.Record) (bool, error) {
	if w.insertErr != nil {
		return false, w.insertErr
	}
	if w.seen[rec.Link] {
		return false, nil
	}
	w.seen[rec.Link] = true
	w.inserted = append(w.inserted, rec)
	return true, nil
}

type stubAdapter struct {
	records []feed.Record
	err     error
	panics  bool
	calls   int
}

func (a *stubAdapter) Fetch(_ context.Context, _ feed.Source) ([]feed.Record, error) {
	a.calls++
	if a.panics {
		panic("adapter blew up")
	}
	return a.records, a.err
}

func freshRecord(link string, published time.Time) feed.Record {
	return feed.Record{
		Title:       "title " + link,
		Link:        link,
		PublishedAt: published,
		Source:      "test",
		Category:    feed.CategoryVulnerabilities,
	}
}

func manyRecords(n int, published time.Time) []feed.Record {
	records := make([]feed.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, freshRecord(fmt.Sprintf("https://example.com/%d", i), published))
	}
	return records
}

const window = 20 * 24 * time.Hour

var testNow = time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

func newOrchestrator(store *fakeStore, adapters map[feed.AdapterKind]feed.Adapter, sources []feed.Source, bulk feed.Source) *Orchestrator {
	return New(store, adapters, sources, bulk, window, fakeClock{now: testNow}, zap.NewNop())
}

func TestRunCycle_PrunesWithFreshnessCutoff(t *testing.T) {
	t.Parallel()

	store := &fakeStore{writer: newFakeWriter()}
	adapters := map[feed.AdapterKind]feed.Adapter{
		feed.KindBulkGzip: &stubAdapter{},
	}
	orch := newOrchestrator(store, adapters, nil, feed.Source{Name: "bulk", Kind: feed.KindBulkGzip})

	require.NoError(t, orch.RunCycle(context.Background()))
	assert.True(t, store.committed)
	assert.Equal(t, testNow.Add(-window), store.writer.pruneCutoff)
}

func TestRunCycle_SourceFailureIsIsolated(t *testing.T) {
	t.Parallel()

	good := &stubAdapter{records: []feed.Record{freshRecord("https://example.com/ok", testNow)}}
	bad := &stubAdapter{err: errors.New("connection reset")}
	store := &fakeStore{writer: newFakeWriter()}
	orch := newOrchestrator(store,
		map[feed.AdapterKind]feed.Adapter{
			feed.KindRSS:       bad,
			feed.KindHTMLIndex: good,
			feed.KindBulkGzip:  &stubAdapter{},
		},
		[]feed.Source{
			{Name: "failing", Kind: feed.KindRSS, ItemCap: 10},
			{Name: "working", Kind: feed.KindHTMLIndex, ItemCap: 10},
		},
		feed.Source{Name: "bulk", Kind: feed.KindBulkGzip},
	)

	require.NoError(t, orch.RunCycle(context.Background()))
	// The failing source contributes nothing but the cycle still commits the
	// working source's records.
	assert.True(t, store.committed)
	require.Len(t, store.writer.inserted, 1)
	assert.Equal(t, "https://example.com/ok", store.writer.inserted[0].Link)
	assert.Equal(t, 1, good.calls)
}

func TestRunCycle_PanickingAdapterIsIsolated(t *testing.T) {
	t.Parallel()

	store := &fakeStore{writer: newFakeWriter()}
	orch := newOrchestrator(store,
		map[feed.AdapterKind]feed.Adapter{
			feed.KindRSS:      &stubAdapter{panics: true},
			feed.KindBulkGzip: &stubAdapter{records: []feed.Record{freshRecord("https://example.com/bulk", testNow)}},
		},
		[]feed.Source{{Name: "panicky", Kind: feed.KindRSS, ItemCap: 10}},
		feed.Source{Name: "bulk", Kind: feed.KindBulkGzip},
	)

	require.NoError(t, orch.RunCycle(context.Background()))
	assert.True(t, store.committed)
	require.Len(t, store.writer.inserted, 1)
	assert.Equal(t, "https://example.com/bulk", store.writer.inserted[0].Link)
}

func TestRunCycle_MissingAdapterIsSourceLocal(t *testing.T) {
	t.Parallel()

	store := &fakeStore{writer: newFakeWriter()}
	orch := newOrchestrator(store,
		map[feed.AdapterKind]feed.Adapter{
			feed.KindBulkGzip: &stubAdapter{},
		},
		[]feed.Source{{Name: "orphan", Kind: feed.KindRSS, ItemCap: 10}},
		feed.Source{Name: "bulk", Kind: feed.KindBulkGzip},
	)

	require.NoError(t, orch.RunCycle(context.Background()))
	assert.True(t, store.committed)
}

func TestRunCycle_CapCountsNewRowsOnly(t *testing.T) {
	t.Parallel()

	// 15 candidates, 2 of which are already stored. The cap admits 10 new
	// rows; duplicates do not consume cap slots.
	records := manyRecords(15, testNow)
	store := &fakeStore{writer: newFakeWriter()}
	store.writer.seen["https://example.com/0"] = true
	store.writer.seen["https://example.com/1"] = true

	orch := newOrchestrator(store,
		map[feed.AdapterKind]feed.Adapter{
			feed.KindRSS:      &stubAdapter{records: records},
			feed.KindBulkGzip: &stubAdapter{},
		},
		[]feed.Source{{Name: "capped", Kind: feed.KindRSS, ItemCap: 10}},
		feed.Source{Name: "bulk", Kind: feed.KindBulkGzip},
	)

	require.NoError(t, orch.RunCycle(context.Background()))
	require.Len(t, store.writer.inserted, 10)
	// Slots 2..11 fill the cap after the two duplicates are passed over.
	assert.Equal(t, "https://example.com/2", store.writer.inserted[0].Link)
	assert.Equal(t, "https://example.com/11", store.writer.inserted[9].Link)
}

func TestRunCycle_UncappedSourceTakesEverything(t *testing.T) {
	t.Parallel()

	records := manyRecords(40, testNow)
	store := &fakeStore{writer: newFakeWriter()}
	orch := newOrchestrator(store,
		map[feed.AdapterKind]feed.Adapter{
			feed.KindSlowJSON: &stubAdapter{records: records},
			feed.KindBulkGzip: &stubAdapter{},
		},
		[]feed.Source{{Name: "uncapped", Kind: feed.KindSlowJSON}},
		feed.Source{Name: "bulk", Kind: feed.KindBulkGzip},
	)

	require.NoError(t, orch.RunCycle(context.Background()))
	assert.Len(t, store.writer.inserted, 40)
}

func TestRunCycle_FiltersStaleAndLinklessRecords(t *testing.T) {
	t.Parallel()

	records := []feed.Record{
		freshRecord("https://example.com/fresh", testNow),
		freshRecord("https://example.com/stale", testNow.Add(-window-time.Hour)),
		{Title: "no link", PublishedAt: testNow},
	}
	store := &fakeStore{writer: newFakeWriter()}
	orch := newOrchestrator(store,
		map[feed.AdapterKind]feed.Adapter{
			feed.KindRSS:      &stubAdapter{records: records},
			feed.KindBulkGzip: &stubAdapter{},
		},
		[]feed.Source{{Name: "mixed", Kind: feed.KindRSS, ItemCap: 10}},
		feed.Source{Name: "bulk", Kind: feed.KindBulkGzip},
	)

	require.NoError(t, orch.RunCycle(context.Background()))
	require.Len(t, store.writer.inserted, 1)
	assert.Equal(t, "https://example.com/fresh", store.writer.inserted[0].Link)
}

func TestRunCycle_StoreErrorAbortsCycle(t *testing.T) {
	t.Parallel()

	writer := newFakeWriter()
	writer.insertErr = errors.New("connection closed")
	store := &fakeStore{writer: writer}
	orch := newOrchestrator(store,
		map[feed.AdapterKind]feed.Adapter{
			feed.KindRSS:      &stubAdapter{records: []feed.Record{freshRecord("https://example.com/x", testNow)}},
			feed.KindBulkGzip: &stubAdapter{},
		},
		[]feed.Source{{Name: "first", Kind: feed.KindRSS, ItemCap: 10}},
		feed.Source{Name: "bulk", Kind: feed.KindBulkGzip},
	)

	err := orch.RunCycle(context.Background())
	require.Error(t, err)
	assert.False(t, store.committed)
}

func TestRunCycle_PruneErrorAbortsCycle(t *testing.T) {
	t.Parallel()

	writer := newFakeWriter()
	writer.pruneErr = errors.New("relation missing")
	store := &fakeStore{writer: writer}
	orch := newOrchestrator(store,
		map[feed.AdapterKind]feed.Adapter{feed.KindBulkGzip: &stubAdapter{}},
		nil,
		feed.Source{Name: "bulk", Kind: feed.KindBulkGzip},
	)

	require.Error(t, orch.RunCycle(context.Background()))
	assert.False(t, store.committed)
}
