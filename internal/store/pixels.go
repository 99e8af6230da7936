package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/pixelgrid/internal/gateway"
)

// FetchAll returns every row ordered by (y, x, id).
func (s *Store) FetchAll(ctx context.Context) ([]gateway.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, x, y, color, updated_at
		FROM pixels
		ORDER BY y ASC, x ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, gateway.NewFetchError(err)
	}
	defer rows.Close()

	var out []gateway.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, gateway.NewFetchError(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, gateway.NewFetchError(err)
	}
	return out, nil
}

// Upsert inserts or overwrites the row for rec.ID and publishes the change
// after commit.
func (s *Store) Upsert(ctx context.Context, rec gateway.Record) error {
	if rec.ID == "" {
		return gateway.NewWriteError("upsert", rec.ID, errors.New("empty record id"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gateway.NewWriteError("upsert", rec.ID, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM pixels WHERE id = ?)`, rec.ID,
	).Scan(&exists); err != nil {
		return gateway.NewWriteError("upsert", rec.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pixels (id, x, y, color, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			x = excluded.x,
			y = excluded.y,
			color = excluded.color,
			updated_at = excluded.updated_at
	`,
		rec.ID,
		rec.X,
		rec.Y,
		rec.Color,
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return gateway.NewWriteError("upsert", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return gateway.NewWriteError("upsert", rec.ID, fmt.Errorf("commit: %w", err))
	}

	kind := gateway.ChangeInsert
	if exists {
		kind = gateway.ChangeUpdate
	}
	s.feed.Publish(gateway.Change{Kind: kind, Record: rec})
	return nil
}

// DeleteAll removes every row whose id differs from excludingID and
// publishes one clear change if any row was removed.
func (s *Store) DeleteAll(ctx context.Context, excludingID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pixels WHERE id <> ?`, excludingID)
	if err != nil {
		return gateway.NewWriteError("delete_all", "", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return gateway.NewWriteError("delete_all", "", err)
	}

	if removed > 0 {
		s.feed.Publish(gateway.ClearChange(excludingID))
	}
	return nil
}

// Subscribe opens an in-process subscription to committed changes.
func (s *Store) Subscribe(ctx context.Context) (gateway.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, gateway.NewSubscriptionError("subscribe", err)
	}
	return s.feed.Subscribe(), nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pixels`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pixels: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (gateway.Record, error) {
	var (
		rec       gateway.Record
		updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.X, &rec.Y, &rec.Color, &updatedAt); err != nil {
		return gateway.Record{}, fmt.Errorf("scan pixel: %w", err)
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return gateway.Record{}, fmt.Errorf("pixel %s: %w", rec.ID, err)
	}
	rec.UpdatedAt = t
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse updated_at %q: %w", s, err)
	}
	return t, nil
}
