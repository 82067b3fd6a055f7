package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/kalambet/shortlist/internal/ledger"
)

// Store implements ledger.Log on the fetch_records table.
var _ ledger.Log = (*Store)(nil)

// Append inserts records in one transaction, preserving their order.
func (s *Store) Append(ctx context.Context, records []ledger.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fetch_records
		(url, title, source_file, published_at, fetched_at, ok, error, content_ref, content_len, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing append: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var published sql.NullString
		if r.PublishedAt != nil {
			published = sql.NullString{String: formatTime(*r.PublishedAt), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			r.URL, r.Title, r.SourceFile, published, formatTime(r.FetchedAt),
			r.OK, r.Error, r.ContentRef, r.ContentLen, r.Attempts,
		); err != nil {
			return fmt.Errorf("appending record for %s: %w", r.URL, err)
		}
	}
	return tx.Commit()
}

// Succeeded returns the URLs with at least one ok record.
func (s *Store) Succeeded(ctx context.Context) (map[string]struct{}, error) {
	query, args, err := build(sq.Select("DISTINCT url").From("fetch_records").Where(sq.Eq{"ok": true}))
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying succeeded urls: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		done[u] = struct{}{}
	}
	return done, rows.Err()
}

// Records returns every fetch record in insertion order.
func (s *Store) Records(ctx context.Context) ([]ledger.Record, error) {
	query, args, err := build(sq.Select(
		"url", "title", "source_file", "published_at", "fetched_at",
		"ok", "error", "content_ref", "content_len", "attempts",
	).From("fetch_records").OrderBy("seq ASC"))
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []ledger.Record
	for rows.Next() {
		var (
			r         ledger.Record
			published sql.NullString
			fetched   string
		)
		if err := rows.Scan(&r.URL, &r.Title, &r.SourceFile, &published, &fetched,
			&r.OK, &r.Error, &r.ContentRef, &r.ContentLen, &r.Attempts); err != nil {
			return nil, err
		}
		if r.FetchedAt, err = parseTime(fetched); err != nil {
			return nil, fmt.Errorf("parsing fetched_at for %s: %w", r.URL, err)
		}
		if published.Valid {
			t, err := parseTime(published.String)
			if err != nil {
				return nil, fmt.Errorf("parsing published_at for %s: %w", r.URL, err)
			}
			r.PublishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ImportRecords copies records into the table, skipping ok records for URLs
// that already succeeded. It returns the number of rows inserted.
func (s *Store) ImportRecords(ctx context.Context, records []ledger.Record) (int, error) {
	done, err := s.Succeeded(ctx)
	if err != nil {
		return 0, err
	}
	fresh := make([]ledger.Record, 0, len(records))
	for _, r := range records {
		if _, ok := done[r.URL]; ok {
			continue
		}
		if r.OK {
			done[r.URL] = struct{}{}
		}
		fresh = append(fresh, r)
	}
	return len(fresh), s.Append(ctx, fresh)
}
