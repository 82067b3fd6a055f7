package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/kalambet/shortlist/internal/ranking"
)

// SaveRun stores a curation result and its ranked items. An empty run.ID is
// filled with a new UUID; the stored run is returned.
func (s *Store) SaveRun(ctx context.Context, run Run, items []ranking.Item) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.TopN = len(items)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("beginning run save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO curated_runs
		(id, created_at, records, scored, skipped, top_n, rescorer) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.CreatedAt), run.Records, run.Scored, run.Skipped, run.TopN, run.Rescorer,
	); err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}

	for i, it := range items {
		body, err := json.Marshal(it)
		if err != nil {
			return Run{}, fmt.Errorf("encoding item %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO curated_items
			(run_id, rank, url, title, domain, score, item_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i+1, it.URL, it.Title, it.Domain, it.Score, string(body),
		); err != nil {
			return Run{}, fmt.Errorf("inserting item %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("committing run: %w", err)
	}
	return run, nil
}

var runColumns = []string{"id", "created_at", "records", "scored", "skipped", "top_n", "rescorer"}

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var (
		r       Run
		created string
	)
	if err := row.Scan(&r.ID, &created, &r.Records, &r.Scored, &r.Skipped, &r.TopN, &r.Rescorer); err != nil {
		return Run{}, err
	}
	t, err := parseTime(created)
	if err != nil {
		return Run{}, fmt.Errorf("parsing created_at for run %s: %w", r.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}

// LatestRun returns the most recent run, or ErrNotFound.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	query, args, err := build(sq.Select(runColumns...).From("curated_runs").
		OrderBy("created_at DESC", "rowid DESC").Limit(1))
	if err != nil {
		return Run{}, err
	}
	r, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query, args, err := build(sq.Select(runColumns...).From("curated_runs").
		OrderBy("created_at DESC", "rowid DESC").Limit(uint64(max(limit, 1))))
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListItems returns items of a run in rank order.
func (s *Store) ListItems(ctx context.Context, runID string, limit, offset int) ([]ranking.Item, error) {
	b := sq.Select("item_json").From("curated_items").
		Where(sq.Eq{"run_id": runID}).OrderBy("rank ASC")
	if limit <= 0 && offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT.
		limit = math.MaxInt32
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	if offset > 0 {
		b = b.Offset(uint64(offset))
	}
	query, args, err := build(b)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var out []ranking.Item
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var it ranking.Item
		if err := json.Unmarshal([]byte(body), &it); err != nil {
			return nil, fmt.Errorf("decoding item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetItem returns the item at rank (1-based) in a run, or ErrNotFound.
func (s *Store) GetItem(ctx context.Context, runID string, rank int) (ranking.Item, error) {
	query, args, err := build(sq.Select("item_json").From("curated_items").
		Where(sq.Eq{"run_id": runID, "rank": rank}))
	if err != nil {
		return ranking.Item{}, err
	}
	var body string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ranking.Item{}, ErrNotFound
	}
	if err != nil {
		return ranking.Item{}, err
	}
	var it ranking.Item
	if err := json.Unmarshal([]byte(body), &it); err != nil {
		return ranking.Item{}, fmt.Errorf("decoding item: %w", err)
	}
	return it, nil
}
