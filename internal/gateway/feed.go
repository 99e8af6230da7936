package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultFeedBuffer is the per-subscriber channel capacity used when a Feed
// is created with a non-positive buffer.
const DefaultFeedBuffer = 256

// Feed fans changes out to in-process subscribers.
//
// Publish never blocks: a subscriber whose buffer is full is dropped and its
// subscription ends with ErrSlowConsumer. Subscribers resynchronize by
// resubscribing and re-fetching.
//
// Thread-safety: all methods are safe for concurrent use.
type Feed struct {
	mu     sync.Mutex
	subs   map[*feedSub]struct{}
	buffer int
	closed bool

	published atomic.Int64
}

// NewFeed returns a feed whose subscribers buffer up to buffer changes.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &Feed{
		subs:   make(map[*feedSub]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed feed returns
// a subscription that is already ended with ErrFeedClosed.
func (f *Feed) Subscribe() Subscription {
	s := &feedSub{feed: f, ch: make(chan Change, f.buffer)}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		s.err = NewSubscriptionError("feed", ErrFeedClosed)
		close(s.ch)
		return s
	}
	f.subs[s] = struct{}{}
	slog.Debug("feed subscriber added", "subscribers", len(f.subs))
	return s
}

// Publish delivers ch to every current subscriber.
func (f *Feed) Publish(ch Change) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.published.Add(1)

	for s := range f.subs {
		select {
		case s.ch <- ch:
		default:
			slog.Warn("dropping slow feed subscriber", "buffer", f.buffer)
			f.removeLocked(s, NewSubscriptionError("feed", ErrSlowConsumer))
		}
	}
}

// Published returns how many changes have been published so far.
func (f *Feed) Published() int64 {
	return f.published.Load()
}

// Subscribers returns the number of live subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close ends every subscription with ErrFeedClosed. Further publishes are
// ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		f.removeLocked(s, NewSubscriptionError("feed", ErrFeedClosed))
	}
}

// removeLocked ends s with cause. Caller holds f.mu.
func (f *Feed) removeLocked(s *feedSub, cause error) {
	if _, ok := f.subs[s]; !ok {
		return
	}
	delete(f.subs, s)
	s.mu.Lock()
	s.err = cause
	s.mu.Unlock()
	close(s.ch)
}

type feedSub struct {
	feed *Feed
	ch   chan Change

	mu  sync.Mutex
	err error
}

func (s *feedSub) Changes() <-chan Change {
	return s.ch
}

func (s *feedSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *feedSub) Close() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	s.feed.removeLocked(s, nil)
	return nil
}
