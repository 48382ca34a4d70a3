package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/attend/internal/event"
)

const eventColumns = `id, start_at, end_at, location, purpose, result, entities, last_seen, updated_at`

// UpsertEvent inserts an event or updates its descriptive fields. An empty
// ID is assigned a new UUID. Activations and embeddings are stored
// separately; see AppendActivation and SaveVector.
func (db *DB) UpsertEvent(ctx context.Context, n *event.Node) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = now
	}
	entities := n.Entities
	if entities == nil {
		entities = []string{}
	}
	ents, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("encode entities: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO events (id, start_at, end_at, location, purpose, result, entities, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			location = excluded.location,
			purpose = excluded.purpose,
			result = excluded.result,
			entities = excluded.entities,
			last_seen = CASE
				WHEN excluded.last_seen IS NULL THEN events.last_seen
				WHEN events.last_seen IS NULL OR excluded.last_seen > events.last_seen THEN excluded.last_seen
				ELSE events.last_seen
			END,
			updated_at = excluded.updated_at
	`, n.ID, ptrMillis(n.StartAt), ptrMillis(n.EndAt), n.Location, n.Purpose, n.Result,
		string(ents), toMillis(n.LastSeen), now.UnixMilli(), n.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (event.Node, error) {
	var (
		n                    event.Node
		start, end, lastSeen sql.NullInt64
		updated              int64
		ents                 string
	)
	if err := s.Scan(&n.ID, &start, &end, &n.Location, &n.Purpose, &n.Result, &ents, &lastSeen, &updated); err != nil {
		return n, err
	}
	n.StartAt = ptrFromMillis(start)
	n.EndAt = ptrFromMillis(end)
	n.LastSeen = fromMillis(lastSeen)
	n.UpdatedAt = time.UnixMilli(updated).UTC()
	if ents != "" {
		if err := json.Unmarshal([]byte(ents), &n.Entities); err != nil {
			return n, fmt.Errorf("decode entities for %s: %w", n.ID, err)
		}
	}
	if len(n.Entities) == 0 {
		n.Entities = nil
	}
	return n, nil
}

// GetEvent returns one event with its embedding and activation history.
func (db *DB) GetEvent(ctx context.Context, id string) (*event.Node, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	n, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if err := db.hydrate(ctx, []*event.Node{&n}); err != nil {
		return nil, err
	}
	return &n, nil
}

// GetEvents returns the events with the given ids, in the order given.
// Unknown ids are skipped.
func (db *DB) GetEvents(ctx context.Context, ids []string) ([]event.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	byID := make(map[string]event.Node, len(ids))
	for rows.Next() {
		n, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		byID[n.ID] = n
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]event.Node, 0, len(byID))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, n)
			delete(byID, id)
		}
	}
	ptrs := make([]*event.Node, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := db.hydrate(ctx, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEvents returns the most recently seen events without embeddings.
func (db *DB) ListEvents(ctx context.Context, limit int) ([]event.Node, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		ORDER BY COALESCE(last_seen, start_at, updated_at) DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []event.Node
	for rows.Next() {
		n, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteEvent removes an event; vectors, activations and edges cascade.
func (db *DB) DeleteEvent(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountEvents returns the number of stored events.
func (db *DB) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// hydrate attaches embeddings and activations. Callers must have closed
// any open result set first.
func (db *DB) hydrate(ctx context.Context, nodes []*event.Node) error {
	for _, n := range nodes {
		v, err := db.GetVector(ctx, n.ID)
		if err != nil {
			return err
		}
		if v != nil {
			n.Embedding = v.Embedding
		}
		acts, err := db.Activations(ctx, n.ID)
		if err != nil {
			return err
		}
		n.Activations = acts
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}
