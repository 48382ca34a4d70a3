package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/attend/internal/event"
)

// AddEdge stores a typed edge. Re-adding the same (from, to, type) keeps the
// larger weight.
func (db *DB) AddEdge(ctx context.Context, e event.Edge) error {
	if e.From == "" || e.To == "" || e.From == e.To {
		return fmt.Errorf("add edge %q -> %q: invalid endpoints", e.From, e.To)
	}
	if e.Type == "" {
		e.Type = event.EdgeRelated
	}
	if e.Weight <= 0 {
		e.Weight = 1
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO event_edges (from_id, to_id, type, weight, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, type) DO UPDATE SET
			weight = MAX(event_edges.weight, excluded.weight)
	`, e.From, e.To, string(e.Type), e.Weight, created.UnixMilli())
	if err != nil {
		return fmt.Errorf("add edge: %w", err)
	}
	return nil
}

// EdgesFor returns every edge with either endpoint in ids.
func (db *DB) EdgesFor(ctx context.Context, ids []string) ([]event.Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := placeholders(len(ids))
	args := append(stringArgs(ids), stringArgs(ids)...)
	rows, err := db.QueryContext(ctx, `
		SELECT from_id, to_id, type, weight, created_at FROM event_edges
		WHERE from_id IN (`+ph+`) OR to_id IN (`+ph+`)
		ORDER BY from_id, to_id, type
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("edges for: %w", err)
	}
	defer rows.Close()

	var out []event.Edge
	for rows.Next() {
		var e event.Edge
		var typ string
		var created int64
		if err := rows.Scan(&e.From, &e.To, &typ, &e.Weight, &created); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Type = event.EdgeType(typ)
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEdges returns the number of stored edges.
func (db *DB) CountEdges(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_edges`).Scan(&n)
	return n, err
}
