package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/roach88/pixelgrid/internal/coords"
	"github.com/roach88/pixelgrid/internal/gateway"
	"github.com/roach88/pixelgrid/internal/grid"
)

type eventType int

const (
	eventLoaded eventType = iota + 1
	eventRemote
	eventPaint
	eventClear
	eventReload
)

// event is one unit of work for the Run loop.
type event struct {
	typ eventType

	// eventLoaded
	records []gateway.Record
	err     error
	initial bool

	// eventRemote
	change gateway.Change

	// eventPaint
	index int
	color grid.Color

	// reply is set for intents; the loop sends exactly one value.
	reply chan error
}

func (ev event) respond(err error) {
	if ev.reply != nil {
		ev.reply <- err
	}
}

// Engine is the single-writer grid synchronization engine.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine, once
//   - Snapshot, SelectedColor, State, Loading, Ready: safe from any goroutine
//   - Paint, PaintAt, Clear, Reload, SelectColor, Flush, Close: safe from
//     any goroutine
//
// INVARIANTS:
//   - buf is only touched by the Run goroutine
//   - every published snapshot has N*N valid colors
//   - snapshot versions strictly increase
type Engine struct {
	gw gateway.Gateway

	size         int
	fill         grid.Color
	now          func() time.Time
	writeTimeout time.Duration
	fetchTimeout time.Duration
	onError      func(error)
	observer     func(Update)
	deleteResets bool
	resubscribe  bool
	newBackOff   func() backoff.BackOff
	idGen        IDGenerator

	sessionID string
	codec     coords.Codec
	versions  versionCounter
	events    *queue[event]
	writes    *writer

	buf      *grid.Grid
	current  atomic.Pointer[grid.Snapshot]
	selected atomic.Value // grid.Color
	state    atomic.Int32

	ready     chan struct{}
	readyOnce sync.Once

	mu        sync.Mutex // guards runCtx, cancel, closing and bg.Add
	runCtx    context.Context
	cancel    context.CancelFunc
	closing   bool
	bg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates an engine over gw. The grid starts all-default and the engine
// is UNINITIALIZED until Run is called.
//
// Panics if the configured grid size or default color is invalid.
func New(gw gateway.Gateway, opts ...Option) *Engine {
	e := &Engine{
		gw:           gw,
		size:         DefaultGridSize,
		fill:         grid.DefaultColor,
		now:          time.Now,
		writeTimeout: DefaultTimeout,
		fetchTimeout: DefaultTimeout,
		resubscribe:  true,
		newBackOff:   defaultBackOff,
		idGen:        UUIDv7Generator{},
		events:       newQueue[event](),
		ready:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.sessionID == "" {
		e.sessionID = e.idGen.Generate()
	}
	e.codec = coords.New(e.size)
	e.buf = grid.New(e.size, e.fill)
	e.selected.Store(grid.DefaultSelected)
	e.writes = newWriter(e.writeTimeout, e.report)
	e.publish()

	return e
}

// SessionID returns the id tagging this engine's logs.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Codec returns the coordinate codec for this engine's grid.
func (e *Engine) Codec() coords.Codec {
	return e.codec
}

// DefaultColor returns the color of unpainted cells.
func (e *Engine) DefaultColor() grid.Color {
	return e.fill
}

// Snapshot returns the current immutable grid view.
func (e *Engine) Snapshot() grid.Snapshot {
	return *e.current.Load()
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Loading reports whether the initial bulk load has not finished yet.
// Renderers should not offer painting while Loading is true.
func (e *Engine) Loading() bool {
	s := e.State()
	return s == StateUninitialized || s == StateLoading
}

// Ready is closed once the initial bulk load has been applied (or has
// failed), or when the engine is closed.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// SelectedColor returns the color the next Paint will use.
func (e *Engine) SelectedColor() grid.Color {
	return e.selected.Load().(grid.Color)
}

// SelectColor validates c and makes it the color for subsequent paints.
func (e *Engine) SelectColor(c grid.Color) error {
	parsed, err := grid.ParseColor(string(c))
	if err != nil {
		return fmt.Errorf("select color: %w", err)
	}
	e.selected.Store(parsed)
	return nil
}

// Run starts the engine and blocks until ctx is cancelled or Close is
// called. It starts the bulk load, opens the change feed right after, and
// then processes events one at a time.
//
// ERROR HANDLING: gateway failures never stop the loop. They are logged and
// passed to the error handler; see WithErrorHandler.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.cancel != nil {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.runCtx, e.cancel = runCtx, cancel
	e.state.Store(int32(StateLoading))
	e.spawnLocked(e.writes.run)
	e.spawnLocked(func() { e.load(runCtx, true) })
	e.spawnLocked(func() { e.pump(runCtx) })
	e.mu.Unlock()

	slog.Info("engine starting",
		"session", e.sessionID,
		"size", e.codec.Size(),
		"default_color", e.fill,
	)

	err := e.loop(runCtx)
	e.Close()

	// Intents that raced with shutdown get a definite answer.
	for {
		ev, ok := e.events.TryDequeue()
		if !ok {
			break
		}
		ev.respond(ErrClosed)
	}

	return err
}

// Close tears the engine down: it moves to CLOSED, stops the loop, closes
// the change feed subscription, sends writes that were already queued, and
// waits for background goroutines. Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closing = true
		e.state.Store(int32(StateClosed))
		cancel := e.cancel
		e.mu.Unlock()

		e.events.Close()
		e.writes.close()
		if cancel != nil {
			cancel()
		}
		e.markReady()
		slog.Info("engine closed", "session", e.sessionID)
	})
	e.bg.Wait()
	return nil
}

// Paint applies the selected color to cell index and queues the remote
// upsert. It returns once the cell is visible in Snapshot; it never waits
// for the gateway, and upsert failures are only reported.
func (e *Engine) Paint(ctx context.Context, index int) error {
	if !e.codec.ValidIndex(index) {
		return fmt.Errorf("%w: index %d", ErrIndexOutOfRange, index)
	}
	return e.submit(ctx, event{typ: eventPaint, index: index, color: e.SelectedColor()})
}

// PaintAt is Paint addressed by coordinates.
func (e *Engine) PaintAt(ctx context.Context, x, y int) error {
	if !e.codec.InBounds(x, y) {
		return fmt.Errorf("%w: (%d, %d)", ErrIndexOutOfRange, x, y)
	}
	return e.Paint(ctx, e.codec.CoordsToIndex(x, y))
}

// Clear resets every cell to the default color and deletes all remote rows,
// after confirm approves ClearPrompt. It reports whether the clear was
// applied. The local grid stays cleared even if the remote delete fails.
func (e *Engine) Clear(ctx context.Context, confirm ConfirmFunc) (bool, error) {
	if err := e.acceptingIntents(); err != nil {
		return false, err
	}
	if confirm == nil || !confirm(ClearPrompt) {
		slog.Info("clear declined", "session", e.sessionID)
		return false, nil
	}
	if err := e.submit(ctx, event{typ: eventClear}); err != nil {
		return false, err
	}
	return true, nil
}

// Reload starts a reconciliation bulk load. When it succeeds the grid is
// replaced by the remote state, discarding optimistic writes the gateway
// never accepted. A failed reload leaves the grid as it was.
func (e *Engine) Reload(ctx context.Context) error {
	return e.submit(ctx, event{typ: eventReload})
}

// Flush blocks until every remote write queued so far has settled.
func (e *Engine) Flush(ctx context.Context) error {
	return e.writes.flush(ctx)
}

func (e *Engine) acceptingIntents() error {
	switch e.State() {
	case StateUninitialized:
		return ErrNotRunning
	case StateClosed:
		return ErrClosed
	}
	return nil
}

// submit enqueues an intent and waits until the loop has applied it.
func (e *Engine) submit(ctx context.Context, ev event) error {
	if err := e.acceptingIntents(); err != nil {
		return err
	}
	ev.reply = make(chan error, 1)
	if !e.events.Enqueue(ev) {
		return ErrClosed
	}
	select {
	case err := <-ev.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop is the single-writer event loop.
// CRITICAL: all grid mutations happen on this goroutine.
func (e *Engine) loop(ctx context.Context) error {
	for {
		if ev, ok := e.events.TryDequeue(); ok {
			e.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled", "session", e.sessionID)
			return ctx.Err()

		case <-e.events.Wait():
			if e.events.Closed() && e.events.Len() == 0 {
				slog.Info("engine stopping: closed", "session", e.sessionID)
				return nil
			}
		}
	}
}

// process routes an event to its handler.
// CRITICAL: called only from the loop goroutine.
func (e *Engine) process(ev event) {
	if e.State() == StateClosed {
		ev.respond(ErrClosed)
		return
	}

	switch ev.typ {
	case eventLoaded:
		e.applyLoad(ev)
	case eventRemote:
		e.applyRemote(ev.change)
	case eventPaint:
		e.applyPaint(ev.index, ev.color)
	case eventClear:
		e.applyClear()
	case eventReload:
		e.spawn(func() { e.load(e.runContext(), false) })
	default:
		slog.Error("unknown event type", "type", ev.typ)
	}
	ev.respond(nil)
}

// applyLoad overlays fetched records and swaps the result in as one
// publication. The initial load overlays onto a copy of the current buffer
// so that paints and notifications applied while LOADING survive it; a
// reload starts from a freshly initialized grid and so replaces local state
// with the remote one.
func (e *Engine) applyLoad(ev event) {
	if ev.err != nil {
		e.report(ev.err)
		if ev.initial {
			// Degraded but available: keep the default grid.
			e.transition(StateSyncedDegraded)
			e.markReady()
		}
		e.notify(Update{Kind: UpdateLoadFailed, Index: -1, Err: ev.err, Seq: e.versions.latest()})
		return
	}

	next := grid.New(e.codec.Size(), e.fill)
	if ev.initial {
		next = e.buf.Clone()
	}
	applied := 0
	for _, rec := range ev.records {
		idx, color, ok := e.decode(rec)
		if !ok {
			continue
		}
		next.Set(idx, color)
		applied++
	}
	e.buf = next
	seq := e.publish()
	e.transition(StateSynced)
	e.markReady()

	slog.Info("grid loaded",
		"session", e.sessionID,
		"records", len(ev.records),
		"applied", applied,
		"initial", ev.initial,
		"seq", seq,
	)
	e.notify(Update{Kind: UpdateLoaded, Index: -1, Seq: seq})
}

// applyRemote overwrites one cell from a notification, unconditionally.
// Arrival order decides; UpdatedAt is not consulted.
func (e *Engine) applyRemote(ch gateway.Change) {
	switch ch.Kind {
	case gateway.ChangeInsert, gateway.ChangeUpdate:
		idx, color, ok := e.decode(ch.Record)
		if !ok {
			e.notify(Update{Kind: UpdateIgnored, Index: -1, Change: &ch, Seq: e.versions.latest()})
			return
		}
		e.buf.Set(idx, color)
		seq := e.publish()
		slog.Debug("remote change applied", "kind", ch.Kind, "id", ch.Record.ID, "color", color, "seq", seq)
		e.notify(Update{Kind: UpdateRemote, Index: idx, Color: color, Change: &ch, Seq: seq})

	case gateway.ChangeDelete:
		x, y := ch.Record.X, ch.Record.Y
		if px, py, err := coords.ParseRecordID(ch.Record.ID); err == nil {
			x, y = px, py
		}
		if !e.deleteResets || !e.codec.InBounds(x, y) {
			slog.Debug("remote delete ignored", "id", ch.Record.ID)
			e.notify(Update{Kind: UpdateIgnored, Index: -1, Change: &ch, Seq: e.versions.latest()})
			return
		}
		idx := e.codec.CoordsToIndex(x, y)
		e.buf.Set(idx, e.fill)
		seq := e.publish()
		e.notify(Update{Kind: UpdateRemote, Index: idx, Color: e.fill, Change: &ch, Seq: seq})

	case gateway.ChangeClear:
		if !e.deleteResets {
			slog.Debug("remote clear ignored", "kept", ch.Record.ID)
			e.notify(Update{Kind: UpdateIgnored, Index: -1, Change: &ch, Seq: e.versions.latest()})
			return
		}
		e.buf.Fill(e.fill)
		seq := e.publish()
		slog.Info("grid cleared remotely", "session", e.sessionID, "seq", seq)
		e.notify(Update{Kind: UpdateRemote, Index: -1, Color: e.fill, Change: &ch, Seq: seq})

	default:
		slog.Warn("unknown change kind", "kind", ch.Kind, "id", ch.Record.ID)
		e.notify(Update{Kind: UpdateIgnored, Index: -1, Change: &ch, Seq: e.versions.latest()})
	}
}

// applyPaint writes the cell optimistically and queues the upsert.
func (e *Engine) applyPaint(index int, color grid.Color) {
	e.buf.Set(index, color)
	seq := e.publish()
	e.notify(Update{Kind: UpdatePaint, Index: index, Color: color, Seq: seq})

	x, y := e.codec.IndexToCoords(index)
	rec := gateway.Record{
		ID:        e.codec.RecordID(x, y),
		X:         x,
		Y:         y,
		Color:     string(color),
		UpdatedAt: e.now().UTC(),
	}
	queued := e.writes.submit(writeOp{
		op: "upsert",
		id: rec.ID,
		do: func(ctx context.Context) error { return e.gw.Upsert(ctx, rec) },
	})
	if !queued {
		slog.Warn("upsert dropped: engine closing", "id", rec.ID)
	}
}

// applyClear resets the whole grid and queues the remote delete.
func (e *Engine) applyClear() {
	e.buf.Fill(e.fill)
	seq := e.publish()
	slog.Info("grid cleared", "session", e.sessionID, "seq", seq)
	e.notify(Update{Kind: UpdateClear, Index: -1, Color: e.fill, Seq: seq})

	queued := e.writes.submit(writeOp{
		op: "delete_all",
		do: func(ctx context.Context) error { return e.gw.DeleteAll(ctx, gateway.PlaceholderID) },
	})
	if !queued {
		slog.Warn("delete_all dropped: engine closing")
	}
}

// decode maps a record to a cell, rejecting anything that would break the
// grid invariant.
func (e *Engine) decode(rec gateway.Record) (int, grid.Color, bool) {
	if !e.codec.InBounds(rec.X, rec.Y) {
		slog.Warn("record outside grid skipped", "id", rec.ID, "x", rec.X, "y", rec.Y)
		return 0, "", false
	}
	color, err := grid.ParseColor(rec.Color)
	if err != nil {
		slog.Warn("record with invalid color skipped", "id", rec.ID, "error", err)
		return 0, "", false
	}
	return e.codec.CoordsToIndex(rec.X, rec.Y), color, true
}

// load fetches all records and hands them to the loop.
func (e *Engine) load(ctx context.Context, initial bool) {
	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	slog.Debug("bulk fetch started", "session", e.sessionID, "initial", initial)
	recs, err := e.gw.FetchAll(fctx)
	if err != nil && !gateway.IsFetchError(err) {
		err = gateway.NewFetchError(err)
	}
	e.events.Enqueue(event{typ: eventLoaded, records: recs, err: err, initial: initial})
}

// pump owns the change feed subscription: it forwards notifications into the
// loop and, when the feed drops, resubscribes and reconciles.
func (e *Engine) pump(ctx context.Context) {
	resumed := false
	for {
		sub, err := e.subscribe(ctx)
		if err != nil {
			return
		}
		if resumed {
			slog.Info("change feed resubscribed, reconciling", "session", e.sessionID)
			e.spawn(func() { e.load(ctx, false) })
		}

		dropped := e.forward(ctx, sub)
		if err := sub.Close(); err != nil {
			slog.Debug("unsubscribe failed", "error", err)
		}
		if !dropped || !e.resubscribe {
			return
		}
		resumed = true
	}
}

// subscribe opens the change feed, retrying with backoff when resubscription
// is enabled. Every failed attempt is reported.
func (e *Engine) subscribe(ctx context.Context) (gateway.Subscription, error) {
	var sub gateway.Subscription
	attempt := func() error {
		s, err := e.gw.Subscribe(ctx)
		if err != nil {
			if ctx.Err() == nil {
				if !gateway.IsSubscriptionError(err) {
					err = gateway.NewSubscriptionError("subscribe", err)
				}
				e.report(err)
			}
			return err
		}
		sub = s
		return nil
	}

	if !e.resubscribe {
		if err := attempt(); err != nil {
			return nil, err
		}
		return sub, nil
	}

	if err := backoff.Retry(attempt, backoff.WithContext(e.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ctx.Err()
	}
	return sub, nil
}

// forward copies notifications into the event queue. It reports whether the
// feed dropped (as opposed to the engine shutting down).
func (e *Engine) forward(ctx context.Context, sub gateway.Subscription) bool {
	for {
		select {
		case <-ctx.Done():
			return false

		case ch, ok := <-sub.Changes():
			if !ok {
				if ctx.Err() != nil {
					return false
				}
				err := sub.Err()
				if err == nil {
					err = errors.New("change feed closed")
				}
				if !gateway.IsSubscriptionError(err) {
					err = gateway.NewSubscriptionError("feed", err)
				}
				e.report(err)
				return true
			}
			if !e.events.Enqueue(event{typ: eventRemote, change: ch}) {
				return false
			}
		}
	}
}

// publish snapshots the buffer under a new version.
func (e *Engine) publish() int64 {
	snap := e.buf.Snapshot(e.versions.advance())
	e.current.Store(&snap)
	return snap.Seq()
}

// transition moves to state unless the engine is closed.
func (e *Engine) transition(to State) {
	for {
		cur := e.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if e.state.CompareAndSwap(cur, int32(to)) {
			if State(cur) != to {
				slog.Info("engine state changed", "session", e.sessionID, "from", State(cur), "to", to)
			}
			return
		}
	}
}

func (e *Engine) markReady() {
	e.readyOnce.Do(func() { close(e.ready) })
}

func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCtx
}

// spawn starts fn as a tracked background goroutine unless the engine is
// closing.
func (e *Engine) spawn(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return false
	}
	e.spawnLocked(fn)
	return true
}

func (e *Engine) spawnLocked(fn func()) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		fn()
	}()
}

// report logs a gateway failure and forwards it to the error handler.
// Local state is never rolled back.
func (e *Engine) report(err error) {
	switch {
	case gateway.IsFetchError(err):
		slog.Error("bulk load failed", "session", e.sessionID, "error", err)
	case gateway.IsWriteError(err):
		slog.Error("remote write failed, keeping local state", "session", e.sessionID, "error", err)
	case gateway.IsSubscriptionError(err):
		slog.Warn("change feed error", "session", e.sessionID, "error", err)
	default:
		slog.Error("gateway error", "session", e.sessionID, "error", err)
	}
	if e.onError != nil {
		e.onError(err)
	}
}

func (e *Engine) notify(u Update) {
	if e.observer != nil {
		e.observer(u)
	}
}
