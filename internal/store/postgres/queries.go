package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/secwatch/secfeeds/internal/feed"
)

const selectColumns = `id, title, link, pub_date, source, category, description, advisory_number`

// RecentBySource returns up to limit records for one source, newest first.
func (s *Store) RecentBySource(ctx context.Context, source string, limit int) ([]feed.Record, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM feeds WHERE source = $1 ORDER BY pub_date DESC LIMIT $2`,
		selectColumns,
	)
	rows, err := s.db.Query(ctx, query, source, limit)
	if err != nil {
		return nil, fmt.Errorf("query records by source: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// TopRecent returns up to perSource newest records for each named source.
// Sources with no stored rows are omitted from the result.
func (s *Store) TopRecent(ctx context.Context, sources []string, perSource int) (map[string][]feed.Record, error) {
	result := make(map[string][]feed.Record, len(sources))
	for _, source := range sources {
		records, err := s.RecentBySource(ctx, source, perSource)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			result[source] = records
		}
	}
	return result, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowScanner) ([]feed.Record, error) {
	var records []feed.Record
	for rows.Next() {
		var (
			rec            feed.Record
			category       string
			description    sql.NullString
			advisoryNumber sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Title,
			&rec.Link,
			&rec.PublishedAt,
			&rec.Source,
			&category,
			&description,
			&advisoryNumber,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Category = feed.Category(category)
		rec.Description = description.String
		rec.AdvisoryNumber = advisoryNumber.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
