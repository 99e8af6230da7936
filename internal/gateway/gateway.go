package gateway

import (
	"context"
	"time"
)

// PlaceholderID is the reserved row id that DeleteAll callers exclude. It
// never collides with a coordinate id.
const PlaceholderID = "placeholder"

// Record is the remote representation of one painted cell.
type Record struct {
	ID        string    `json:"id"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Color     string    `json:"color"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChangeKind identifies a row-level change.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"

	// ChangeClear reports a bulk delete: every row except the one whose id
	// is Record.ID is gone. It stands in for one delete per row.
	ChangeClear ChangeKind = "clear"
)

// Valid reports whether k is a known change kind.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeInsert, ChangeUpdate, ChangeDelete, ChangeClear:
		return true
	}
	return false
}

// ClearChange returns the notification for a DeleteAll that kept
// excludingID.
func ClearChange(excludingID string) Change {
	return Change{Kind: ChangeClear, Record: Record{ID: excludingID}}
}

// Change is one row-level notification. For deletes, Record carries the last
// known row (at minimum its ID). For clears, Record.ID is the excluded id
// and the other fields are zero.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Record Record     `json:"record"`
}

// Gateway is the remote pixel table and its change feed.
type Gateway interface {
	// FetchAll returns every stored record.
	FetchAll(ctx context.Context) ([]Record, error)

	// Upsert inserts rec if its ID is absent, otherwise overwrites the row
	// in place. Fields are never merged.
	Upsert(ctx context.Context, rec Record) error

	// DeleteAll removes every row whose ID differs from excludingID. When
	// rows were removed, subscribers see a single ChangeClear.
	DeleteAll(ctx context.Context, excludingID string) error

	// Subscribe opens a change feed. The subscription stays open until it
	// is closed or the underlying transport fails; ctx only bounds the
	// opening handshake.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is a cancellable handle on a change feed.
type Subscription interface {
	// Changes delivers notifications. It is closed when the subscription
	// ends for any reason.
	Changes() <-chan Change

	// Err reports why Changes was closed. It returns nil while the
	// subscription is open and after a caller-initiated Close.
	Err() error

	// Close stops delivery. Safe to call more than once.
	Close() error
}
