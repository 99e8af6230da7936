package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/pixelgrid/internal/gateway"
)

//go:embed schema.sql
var schemaSQL string

// Store is a gateway.Gateway backed by Postgres and Redis.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	rdb     *redis.Client
	channel string
}

var _ gateway.Gateway = (*Store)(nil)

// Open connects to Postgres and Redis, verifies both, and creates the
// pixels table if it does not exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		rdb.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	slog.Info("connected to postgres and redis", "redis", cfg.RedisAddr, "channel", cfg.Channel)
	return &Store{pool: pool, rdb: rdb, channel: cfg.Channel}, nil
}

// Close releases both connections.
func (s *Store) Close() error {
	s.pool.Close()
	return s.rdb.Close()
}

// FetchAll returns every row ordered by (y, x, id).
func (s *Store) FetchAll(ctx context.Context) ([]gateway.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, x, y, color, updated_at
		FROM pixels
		ORDER BY y, x, id
	`)
	if err != nil {
		return nil, gateway.NewFetchError(err)
	}

	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, gateway.NewFetchError(err)
	}
	return recs, nil
}

// Upsert inserts or overwrites the row for rec.ID, then publishes an insert
// or update change.
func (s *Store) Upsert(ctx context.Context, rec gateway.Record) error {
	if rec.ID == "" {
		return gateway.NewWriteError("upsert", rec.ID, errors.New("empty record id"))
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	rec.UpdatedAt = rec.UpdatedAt.UTC()

	// xmax is zero only for rows created by this statement.
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pixels (id, x, y, color, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			x = EXCLUDED.x,
			y = EXCLUDED.y,
			color = EXCLUDED.color,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0)
	`, rec.ID, rec.X, rec.Y, rec.Color, rec.UpdatedAt).Scan(&inserted)
	if err != nil {
		return gateway.NewWriteError("upsert", rec.ID, err)
	}

	kind := gateway.ChangeUpdate
	if inserted {
		kind = gateway.ChangeInsert
	}
	if err := s.publish(ctx, gateway.Change{Kind: kind, Record: rec}); err != nil {
		// The row is committed; only the notification is lost.
		slog.Warn("change not published", "id", rec.ID, "error", err)
	}
	return nil
}

// DeleteAll removes every row whose id differs from excludingID and
// publishes one clear change if any row was removed.
func (s *Store) DeleteAll(ctx context.Context, excludingID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pixels WHERE id <> $1`, excludingID)
	if err != nil {
		return gateway.NewWriteError("delete_all", "", err)
	}

	removed := tag.RowsAffected()
	if removed > 0 {
		if err := s.publish(ctx, gateway.ClearChange(excludingID)); err != nil {
			slog.Warn("change not published", "kind", gateway.ChangeClear, "error", err)
		}
	}
	slog.Debug("rows deleted", "count", removed, "kept", excludingID)
	return nil
}

// Subscribe subscribes to the change channel. It returns once Redis has
// confirmed the subscription.
func (s *Store) Subscribe(ctx context.Context) (gateway.Subscription, error) {
	ps := s.rdb.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, gateway.NewSubscriptionError("subscribe", err)
	}
	return newRedisSub(ps), nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM pixels`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pixels: %w", err)
	}
	return n, nil
}

func (s *Store) publish(ctx context.Context, ch gateway.Change) error {
	payload, err := encodeChange(ch)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, payload).Err()
}

func scanRecord(row pgx.CollectableRow) (gateway.Record, error) {
	var rec gateway.Record
	if err := row.Scan(&rec.ID, &rec.X, &rec.Y, &rec.Color, &rec.UpdatedAt); err != nil {
		return gateway.Record{}, err
	}
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
