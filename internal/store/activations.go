package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/attend/internal/event"
)

// AppendActivation records an activation for an event, trims the history to
// the newest event.MaxActivations entries, and advances last_seen.
func (db *DB) AppendActivation(ctx context.Context, eventID string, a event.Activation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activation: %w", err)
	}
	defer tx.Rollback()

	at := a.At.UnixMilli()
	res, err := tx.ExecContext(ctx, `
		UPDATE events SET last_seen = MAX(COALESCE(last_seen, 0), ?) WHERE id = ?
	`, at, eventID)
	if err != nil {
		return fmt.Errorf("touch event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_activations (event_id, at, similarity) VALUES (?, ?, ?)
	`, eventID, at, a.Similarity); err != nil {
		return fmt.Errorf("insert activation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM event_activations
		WHERE event_id = ? AND id NOT IN (
			SELECT id FROM event_activations WHERE event_id = ?
			ORDER BY at DESC, id DESC LIMIT ?
		)
	`, eventID, eventID, event.MaxActivations); err != nil {
		return fmt.Errorf("trim activations: %w", err)
	}

	return tx.Commit()
}

// Activations returns an event's activation history, oldest first.
func (db *DB) Activations(ctx context.Context, eventID string) ([]event.Activation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT at, similarity FROM event_activations
		WHERE event_id = ? ORDER BY at, id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("activations: %w", err)
	}
	defer rows.Close()

	var out []event.Activation
	for rows.Next() {
		var at int64
		var a event.Activation
		if err := rows.Scan(&at, &a.Similarity); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		a.At = time.UnixMilli(at).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
