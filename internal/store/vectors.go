package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lazypower/attend/internal/event"
)

// VectorRecord holds an embedding for an event.
type VectorRecord struct {
	EventID    string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for an event.
func (db *DB) SaveVector(ctx context.Context, eventID string, embedding []float64, model string) error {
	if len(embedding) == 0 {
		return fmt.Errorf("save vector %s: empty embedding", eventID)
	}
	now := time.Now().UnixMilli()
	blob := encodeEmbedding(embedding)

	_, err := db.ExecContext(ctx, `
		INSERT INTO event_vectors (event_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model,
			dimensions = excluded.dimensions,
			created_at = excluded.created_at
	`, eventID, blob, model, len(embedding), now)
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// GetVector returns the embedding for an event, or nil if there is none.
func (db *DB) GetVector(ctx context.Context, eventID string) (*VectorRecord, error) {
	var v VectorRecord
	var blob []byte

	err := db.QueryRowContext(ctx, `
		SELECT event_id, embedding, model, dimensions, created_at
		FROM event_vectors WHERE event_id = ?
	`, eventID).Scan(&v.EventID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// AllVectors returns all stored vector records.
func (db *DB) AllVectors(ctx context.Context) ([]VectorRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT event_id, embedding, model, dimensions, created_at
		FROM event_vectors
	`)
	if err != nil {
		return nil, fmt.Errorf("all vectors: %w", err)
	}
	defer rows.Close()

	var records []VectorRecord
	for rows.Next() {
		var v VectorRecord
		var blob []byte
		if err := rows.Scan(&v.EventID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		records = append(records, v)
	}
	return records, rows.Err()
}

// DeleteVector removes the embedding for an event.
func (db *DB) DeleteVector(ctx context.Context, eventID string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM event_vectors WHERE event_id = ?", eventID)
	if err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}

// TopKByEmbedding scans every stored vector and returns up to k events whose
// cosine similarity to query is at least threshold, best first. Vectors of a
// different dimension are skipped.
func (db *DB) TopKByEmbedding(ctx context.Context, query []float64, k int, threshold float64) ([]event.Hit, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	vecs, err := db.AllVectors(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id  string
		sim float64
	}
	var matches []scored
	for _, v := range vecs {
		sim, ok := event.Cosine(query, v.Embedding)
		if !ok || sim < threshold {
			continue
		}
		matches = append(matches, scored{id: v.EventID, sim: sim})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].sim != matches[j].sim {
			return matches[i].sim > matches[j].sim
		}
		return matches[i].id < matches[j].id
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, len(matches))
	sims := make(map[string]float64, len(matches))
	for i, m := range matches {
		ids[i] = m.id
		sims[m.id] = m.sim
	}
	nodes, err := db.GetEvents(ctx, ids)
	if err != nil {
		return nil, err
	}
	hits := make([]event.Hit, len(nodes))
	for i, n := range nodes {
		hits[i] = event.Hit{Node: n, Similarity: sims[n.ID]}
	}
	return hits, nil
}
