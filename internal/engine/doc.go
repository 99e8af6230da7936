// Package engine implements the collaborative grid synchronization engine.
//
// The engine reconciles three sources of change into one in-memory grid:
// the initial bulk load from the gateway, local paint and clear intents
// (applied optimistically, written to the gateway in the background), and
// the gateway's change feed (applied in arrival order).
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every grid mutation is an event on one FIFO queue consumed by Run. A
// handler finishes its write and publishes a new snapshot before the next
// event is dequeued, so readers never observe a partially applied batch.
//
// Event Sources:
//  1. Bulk load: a background fetch enqueues its result when it returns.
//  2. Intents: Paint, PaintAt, Clear and Reload enqueue an event and wait
//     until the loop has applied it. They never wait for the network.
//  3. Change feed: a pump goroutine forwards notifications into the queue.
//
// Remote Writes:
// Upserts and deletes produced by intents go to a second queue drained by a
// single writer goroutine, so locally originated writes reach the gateway in
// intent order. Failures are reported and never rolled back; the grid
// converges through later notifications or the next reconciliation load.
//
// Conflict Resolution:
// Last write wins by arrival order of the change feed. UpdatedAt on records
// is diagnostic only and never consulted.
//
// States:
//
//	UNINITIALIZED -> LOADING -> SYNCED
//	                 LOADING -> SYNCED_DEGRADED  (bulk fetch failed)
//	any           -> CLOSED                      (Close or Run ctx done)
package engine
