// Package pgstore provides a networked pixel gateway: rows live in Postgres
// and changes travel over a Redis pub/sub channel.
//
// Every successful Upsert and DeleteAll publishes one JSON-encoded
// gateway.Change per affected row to the configured channel. Subscribers on
// any host receive them through Redis, so several relay servers can front
// the same table.
//
// # Table
//
//	pixels(id TEXT PRIMARY KEY, x INTEGER, y INTEGER, color TEXT, updated_at TIMESTAMPTZ)
//
// # Delivery
//
// Changes are published after the statement commits. Redis pub/sub is
// fire-and-forget: a subscriber that is disconnected while a change is
// published never sees it. The engine corrects such gaps with a
// reconciliation load after it resubscribes.
//
// # Configuration
//
// ConfigFromEnv reads DATABASE_URL and REDIS_ADDR, falling back to local
// defaults.
package pgstore
