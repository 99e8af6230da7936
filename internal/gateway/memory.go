package gateway

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
)

// Memory is an in-process Gateway. Every write is echoed to all
// subscribers, including the writer's own, as a hosted table with row-level
// change notifications would do.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	rows map[string]Record
	feed *Feed
}

var _ Gateway = (*Memory)(nil)

// NewMemory returns a gateway pre-populated with seed rows. Seeding does
// not emit changes.
func NewMemory(seed ...Record) *Memory {
	m := &Memory{
		rows: make(map[string]Record, len(seed)),
		feed: NewFeed(DefaultFeedBuffer),
	}
	for _, rec := range seed {
		m.rows[rec.ID] = rec
	}
	return m
}

// FetchAll returns all rows ordered by (y, x, id).
func (m *Memory) FetchAll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewFetchError(err)
	}
	return m.Rows(), nil
}

// Upsert stores rec and publishes an insert or update change.
func (m *Memory) Upsert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return NewWriteError("upsert", rec.ID, err)
	}
	if rec.ID == "" {
		return NewWriteError("upsert", rec.ID, errors.New("empty record id"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kind := ChangeInsert
	if _, ok := m.rows[rec.ID]; ok {
		kind = ChangeUpdate
	}
	m.rows[rec.ID] = rec
	m.feed.Publish(Change{Kind: kind, Record: rec})
	return nil
}

// DeleteAll removes every row except excludingID and publishes one clear
// change if anything was removed.
func (m *Memory) DeleteAll(ctx context.Context, excludingID string) error {
	if err := ctx.Err(); err != nil {
		return NewWriteError("delete_all", "", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id := range m.rows {
		if id == excludingID {
			continue
		}
		delete(m.rows, id)
		removed++
	}
	if removed > 0 {
		m.feed.Publish(ClearChange(excludingID))
	}
	return nil
}

// Delete removes one row and publishes a delete change. Missing rows are
// not an error.
func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return NewWriteError("delete", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.rows[id]
	if !ok {
		return nil
	}
	delete(m.rows, id)
	m.feed.Publish(Change{Kind: ChangeDelete, Record: rec})
	return nil
}

// Subscribe opens an in-process subscription.
func (m *Memory) Subscribe(ctx context.Context) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewSubscriptionError("subscribe", err)
	}
	return m.feed.Subscribe(), nil
}

// Rows returns a sorted copy of all stored rows.
func (m *Memory) Rows() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.rows))
	for _, rec := range m.rows {
		out = append(out, rec)
	}
	SortRecords(out)
	return out
}

// Len returns the number of stored rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Feed exposes the change feed, e.g. for counting published changes.
func (m *Memory) Feed() *Feed {
	return m.feed
}

// Close ends all subscriptions.
func (m *Memory) Close() error {
	m.feed.Close()
	return nil
}

// SortRecords orders records by (y, x, id).
func SortRecords(recs []Record) {
	slices.SortFunc(recs, func(a, b Record) int {
		if c := cmp.Compare(a.Y, b.Y); c != 0 {
			return c
		}
		if c := cmp.Compare(a.X, b.X); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
