package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/pixelgrid/internal/coords"
	"github.com/roach88/pixelgrid/internal/engine"
	"github.com/roach88/pixelgrid/internal/gateway"
	"github.com/roach88/pixelgrid/internal/grid"
	"github.com/roach88/pixelgrid/internal/testutil"
)

// settleTimeout bounds how long a step may take to quiesce.
const settleTimeout = 5 * time.Second

// Harness drives one engine through a scenario.
type Harness struct {
	scenario *Scenario
	mem      *gateway.Memory
	gw       *testutil.FaultyGateway
	engine   *engine.Engine
	clock    *testutil.StepClock

	step atomic.Int32

	mu       sync.Mutex
	trace    []TraceEvent
	loads    int
	changes  int64
	reported []string
	signal   chan struct{}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory gateway for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
//  1. Seed the gateway and apply the initial faults
//  2. Start the engine and wait for the initial load and subscription
//  3. Execute each step, settling after it
//  4. Capture the final state and check expectations
func Run(scenario *Scenario) (*Result, error) {
	seed := make([]gateway.Record, 0, len(scenario.Seed))
	for _, c := range scenario.Seed {
		seed = append(seed, gateway.Record{
			ID:        coords.RecordID(c.X, c.Y),
			X:         c.X,
			Y:         c.Y,
			Color:     string(grid.MustParseColor(c.Color)),
			UpdatedAt: testutil.Epoch,
		})
	}

	mem := gateway.NewMemory(seed...)
	defer mem.Close()

	h := &Harness{
		scenario: scenario,
		mem:      mem,
		gw:       testutil.NewFaultyGateway(mem),
		clock:    testutil.NewStepClock(testutil.Epoch, time.Second),
		signal:   make(chan struct{}, 1),
	}
	h.applyFaults(scenario.Faults)

	h.engine = engine.New(h.gw,
		engine.WithGridSize(scenario.Size),
		engine.WithDefaultColor(grid.Color(scenario.DefaultColor)),
		engine.WithSessionID("scenario-"+scenario.Name),
		engine.WithNow(h.clock.Now),
		engine.WithFetchTimeout(settleTimeout),
		engine.WithWriteTimeout(settleTimeout),
		engine.WithObserver(h.observe),
		engine.WithErrorHandler(h.reportError),
		engine.WithoutResubscribe(),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.engine.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	ctx, stop := context.WithTimeout(context.Background(), settleTimeout)
	err := h.start(ctx)
	stop()
	if err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		h.step.Store(int32(i + 1))
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	result := NewResult()
	h.mu.Lock()
	result.Trace = append(result.Trace, h.trace...)
	result.Final.Reported = append(result.Final.Reported, h.reported...)
	h.mu.Unlock()

	snap := h.engine.Snapshot()
	result.Final.State = h.engine.State().String()
	result.Final.Rows = snap.Rows(h.engine.DefaultColor())
	result.Final.RemoteRows = mem.Len()

	checkExpectations(scenario, snap, result)
	return result, nil
}

// start waits for the initial load and for the change feed to open.
func (h *Harness) start(ctx context.Context) error {
	select {
	case <-h.engine.Ready():
	case <-ctx.Done():
		return fmt.Errorf("engine not ready: %w", ctx.Err())
	}
	return h.waitUntil(ctx, func() bool {
		return h.loads >= 1 && h.mem.Feed().Subscribers() > 0
	})
}

// execute runs one step and settles.
func (h *Harness) execute(step Step) error {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	h.mu.Lock()
	wantLoads := h.loads
	h.mu.Unlock()

	var err error
	switch {
	case step.Select != "":
		err = h.engine.SelectColor(grid.Color(step.Select))

	case step.Paint != nil:
		err = h.engine.Paint(ctx, *step.Paint)

	case step.PaintAt != nil:
		err = h.engine.PaintAt(ctx, step.PaintAt.X, step.PaintAt.Y)

	case step.Remote != nil:
		c := step.Remote
		err = h.mem.Upsert(ctx, gateway.Record{
			ID:        coords.RecordID(c.X, c.Y),
			X:         c.X,
			Y:         c.Y,
			Color:     string(grid.MustParseColor(c.Color)),
			UpdatedAt: h.clock.Now(),
		})

	case step.RemoteClear:
		err = h.mem.DeleteAll(ctx, gateway.PlaceholderID)

	case step.Clear != nil:
		confirm := step.Clear.Confirm
		_, err = h.engine.Clear(ctx, func(string) bool { return confirm })

	case step.Reload:
		wantLoads++
		err = h.engine.Reload(ctx)

	case step.Faults != nil:
		h.applyFaults(*step.Faults)
	}
	if err != nil {
		return err
	}
	return h.settle(ctx, wantLoads)
}

// settle waits until queued writes are sent, every published change has
// been applied or ignored, and at least wantLoads loads have finished.
func (h *Harness) settle(ctx context.Context, wantLoads int) error {
	if err := h.engine.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return h.waitUntil(ctx, func() bool {
		return h.changes == h.mem.Feed().Published() && h.loads >= wantLoads
	})
}

// waitUntil polls cond under h.mu until it holds or ctx is done.
func (h *Harness) waitUntil(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		h.mu.Lock()
		ok := cond()
		h.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.New("scenario did not settle")
		case <-h.signal:
		case <-ticker.C:
		}
	}
}

func (h *Harness) applyFaults(f Faults) {
	h.gw.FailFetch.Store(f.FailFetch)
	h.gw.FailUpsert.Store(f.FailUpsert)
	h.gw.FailDelete.Store(f.FailDelete)
}

// observe records an engine update. Runs on the engine loop.
func (h *Harness) observe(u engine.Update) {
	ev := TraceEvent{
		Step:  int(h.step.Load()),
		Kind:  string(u.Kind),
		Color: string(u.Color),
		Seq:   u.Seq,
	}
	if u.Index >= 0 {
		x, y := h.engine.Codec().IndexToCoords(u.Index)
		ev.Cell = coords.RecordID(x, y)
	} else if u.Change != nil && u.Change.Kind != gateway.ChangeClear {
		ev.Cell = u.Change.Record.ID
	}
	if u.Change != nil {
		ev.Change = string(u.Change.Kind)
	}

	h.mu.Lock()
	h.trace = append(h.trace, ev)
	switch u.Kind {
	case engine.UpdateLoaded, engine.UpdateLoadFailed:
		h.loads++
	case engine.UpdateRemote, engine.UpdateIgnored:
		h.changes++
	}
	h.mu.Unlock()

	select {
	case h.signal <- struct{}{}:
	default:
	}
}

func (h *Harness) reportError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	code := string(gateway.Code(err))
	if code == "" {
		code = err.Error()
	}
	h.reported = append(h.reported, code)
}

// checkExpectations compares the final state with scenario.Expect.
func checkExpectations(s *Scenario, snap grid.Snapshot, result *Result) {
	exp := s.Expect

	if exp.State != "" && exp.State != result.Final.State {
		result.AddError(fmt.Sprintf("state: expected %s, got %s", exp.State, result.Final.State))
	}

	for _, c := range exp.Cells {
		want := grid.MustParseColor(c.Color)
		got := snap.At(c.Y*snap.Size() + c.X)
		if got != want {
			result.AddError(fmt.Sprintf("cell (%d, %d): expected %s, got %s", c.X, c.Y, want, got))
		}
	}

	if exp.RemoteRows != nil && *exp.RemoteRows != result.Final.RemoteRows {
		result.AddError(fmt.Sprintf("remote_rows: expected %d, got %d", *exp.RemoteRows, result.Final.RemoteRows))
	}

	if exp.Errors != nil {
		got := result.Final.Reported
		match := len(got) == len(exp.Errors)
		for i := 0; match && i < len(got); i++ {
			match = got[i] == exp.Errors[i]
		}
		if !match {
			result.AddError(fmt.Sprintf("errors: expected %v, got %v", exp.Errors, got))
		}
	}
}
