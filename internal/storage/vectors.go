package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// vectorChunk bounds the number of keys per IN (...) lookup.
const vectorChunk = 500

// GetVectors returns the cached vectors for keys under model. Keys without
// a vector are absent from the map.
func (s *Store) GetVectors(ctx context.Context, model string, keys []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(keys))
	for start := 0; start < len(keys); start += vectorChunk {
		end := min(start+vectorChunk, len(keys))
		query, args, err := build(sq.Select("key", "vector").From("embeddings").
			Where(sq.Eq{"model": model, "key": keys[start:end]}))
		if err != nil {
			return nil, err
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("querying vectors: %w", err)
		}
		for rows.Next() {
			var (
				key  string
				blob []byte
			)
			if err := rows.Scan(&key, &blob); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning vector: %w", err)
			}
			v, err := decodeFloat32s(blob)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("decoding vector %s: %w", key, err)
			}
			out[key] = v
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PutVectors stores vectors under model, replacing existing entries.
func (s *Store) PutVectors(ctx context.Context, model string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning vector insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO embeddings
		(key, model, dims, vector, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing vector insert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for key, v := range vectors {
		if _, err := stmt.ExecContext(ctx, key, model, len(v), encodeFloat32s(v), now); err != nil {
			return fmt.Errorf("inserting vector %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// encodeFloat32s packs v as little-endian IEEE 754 values.
func encodeFloat32s(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
