// Package store provides a SQLite-backed pixel gateway.
//
// The store keeps one row per painted coordinate in the pixels table and
// fans every committed write out to in-process subscribers through a
// gateway.Feed. It is the default backend of `pixelgrid serve`.
//
// # Table
//
//	pixels(id TEXT PRIMARY KEY, x INTEGER, y INTEGER, color TEXT, updated_at TEXT)
//
// id is "x_y" so each coordinate has at most one row. updated_at is stored as
// RFC 3339 text with nanoseconds and is diagnostic only.
//
// # Ordering
//
// FetchAll returns rows ORDER BY y, x, id so bulk loads are reproducible.
// Changes are published after the transaction commits, in commit order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
