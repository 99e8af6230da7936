package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/roach88/pixelgrid/internal/gateway"
)

// ErrInjected is the cause carried by every failure FaultyGateway injects.
var ErrInjected = errors.New("injected failure")

// FaultyGateway wraps a Gateway and fails selected operations on demand.
//
// Failures are returned already classified (FetchError, WriteError,
// SubscriptionError) so callers see exactly what a real adapter reports.
// Counters include failed calls.
//
// Thread-safety: All methods are safe for concurrent use.
type FaultyGateway struct {
	inner gateway.Gateway

	FailFetch     atomic.Bool
	FailUpsert    atomic.Bool
	FailDelete    atomic.Bool
	FailSubscribe atomic.Bool

	fetches    atomic.Int64
	upserts    atomic.Int64
	deletes    atomic.Int64
	subscribes atomic.Int64

	mu        sync.Mutex
	fetchGate chan struct{}
	subs      []*faultySub
}

var _ gateway.Gateway = (*FaultyGateway)(nil)

// NewFaultyGateway wraps inner. No faults are enabled initially.
func NewFaultyGateway(inner gateway.Gateway) *FaultyGateway {
	return &FaultyGateway{inner: inner}
}

// FetchAll delegates to the wrapped gateway unless FailFetch is set. While
// a gate from HoldFetches is open, it blocks until the gate is released or
// ctx is done.
func (g *FaultyGateway) FetchAll(ctx context.Context) ([]gateway.Record, error) {
	g.fetches.Add(1)

	g.mu.Lock()
	gate := g.fetchGate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, gateway.NewFetchError(ctx.Err())
		}
	}

	if g.FailFetch.Load() {
		return nil, gateway.NewFetchError(ErrInjected)
	}
	return g.inner.FetchAll(ctx)
}

// Upsert delegates to the wrapped gateway unless FailUpsert is set.
func (g *FaultyGateway) Upsert(ctx context.Context, rec gateway.Record) error {
	g.upserts.Add(1)
	if g.FailUpsert.Load() {
		return gateway.NewWriteError("upsert", rec.ID, ErrInjected)
	}
	return g.inner.Upsert(ctx, rec)
}

// DeleteAll delegates to the wrapped gateway unless FailDelete is set.
func (g *FaultyGateway) DeleteAll(ctx context.Context, excludingID string) error {
	g.deletes.Add(1)
	if g.FailDelete.Load() {
		return gateway.NewWriteError("delete_all", "", ErrInjected)
	}
	return g.inner.DeleteAll(ctx, excludingID)
}

// Subscribe delegates to the wrapped gateway unless FailSubscribe is set.
// The returned subscription can be dropped with DropSubscriptions.
func (g *FaultyGateway) Subscribe(ctx context.Context) (gateway.Subscription, error) {
	g.subscribes.Add(1)
	if g.FailSubscribe.Load() {
		return nil, gateway.NewSubscriptionError("subscribe", ErrInjected)
	}
	inner, err := g.inner.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	s := newFaultySub(inner)
	g.mu.Lock()
	g.subs = append(g.subs, s)
	g.mu.Unlock()
	return s, nil
}

// HoldFetches makes FetchAll block until the returned release func is
// called. Release is safe to call more than once.
func (g *FaultyGateway) HoldFetches() (release func()) {
	gate := make(chan struct{})
	g.mu.Lock()
	g.fetchGate = gate
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			if g.fetchGate == gate {
				g.fetchGate = nil
			}
			g.mu.Unlock()
			close(gate)
		})
	}
}

// DropSubscriptions ends every open subscription as if the transport
// failed with cause. It returns the number of subscriptions dropped.
func (g *FaultyGateway) DropSubscriptions(cause error) int {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, s := range subs {
		s.end(gateway.NewSubscriptionError("feed", cause))
	}
	return len(subs)
}

// OpenSubscriptions returns the number of subscriptions DropSubscriptions
// would end.
func (g *FaultyGateway) OpenSubscriptions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// Fetches returns the number of FetchAll calls.
func (g *FaultyGateway) Fetches() int64 { return g.fetches.Load() }

// Upserts returns the number of Upsert calls.
func (g *FaultyGateway) Upserts() int64 { return g.upserts.Load() }

// Deletes returns the number of DeleteAll calls.
func (g *FaultyGateway) Deletes() int64 { return g.deletes.Load() }

// Subscribes returns the number of Subscribe calls.
func (g *FaultyGateway) Subscribes() int64 { return g.subscribes.Load() }

// faultySub forwards an inner subscription until it is closed or dropped.
type faultySub struct {
	inner gateway.Subscription
	out   chan gateway.Change
	stop  chan struct{}
	once  sync.Once

	mu  sync.Mutex
	err error
}

func newFaultySub(inner gateway.Subscription) *faultySub {
	s := &faultySub{
		inner: inner,
		out:   make(chan gateway.Change),
		stop:  make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *faultySub) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.stop:
			return
		case ch, ok := <-s.inner.Changes():
			if !ok {
				s.end(s.inner.Err())
				return
			}
			select {
			case s.out <- ch:
			case <-s.stop:
				return
			}
		}
	}
}

// end stops forwarding. cause is what Err reports; nil for a caller Close.
func (s *faultySub) end(cause error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = cause
		s.mu.Unlock()
		close(s.stop)
		_ = s.inner.Close()
	})
}

func (s *faultySub) Changes() <-chan gateway.Change {
	return s.out
}

func (s *faultySub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *faultySub) Close() error {
	s.end(nil)
	return nil
}
