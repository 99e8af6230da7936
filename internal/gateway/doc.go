// Package gateway defines the contract between the sync engine and the
// remote pixel store, plus the in-process pieces shared by implementations.
//
// A Gateway exposes a row-oriented table of pixel records keyed by "x_y" ids
// and a change feed. Implementations in this module:
//
//   - Memory (this package): rows in a map, changes fanned out by a Feed.
//   - store.Store: rows in SQLite, changes fanned out by a Feed.
//   - pgstore.Store: rows in Postgres, changes carried over Redis pub/sub.
//   - relay.Client: rows and changes fetched from a relay.Server over
//     HTTP and websocket.
//
// # Delivery guarantees
//
// Change delivery is at-least-once and ordered per feed, but there is no
// ordering guarantee across writers and no transactional guarantee across
// rows. Consumers resolve conflicts by arrival order.
//
// # Errors
//
// Failures are reported as *Error with a Code of FETCH_FAILED, WRITE_FAILED
// or SUBSCRIPTION_FAILED. Use IsFetchError, IsWriteError and
// IsSubscriptionError to classify wrapped errors.
package gateway
