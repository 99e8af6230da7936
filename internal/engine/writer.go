package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/pixelgrid/internal/gateway"
)

// writeOp is one queued remote write.
type writeOp struct {
	op string // "upsert" or "delete_all"
	id string
	do func(ctx context.Context) error
}

// writer sends remote writes one at a time, in submission order.
//
// pending counts submitted but unfinished writes; idle is closed whenever
// pending is zero so Flush can wait with a context.
type writer struct {
	q       *queue[writeOp]
	timeout time.Duration
	report  func(error)

	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

func newWriter(timeout time.Duration, report func(error)) *writer {
	idle := make(chan struct{})
	close(idle)
	return &writer{
		q:       newQueue[writeOp](),
		timeout: timeout,
		report:  report,
		idle:    idle,
	}
}

// submit queues op. Returns false if the writer is closed.
func (w *writer) submit(op writeOp) bool {
	w.mu.Lock()
	if w.pending == 0 {
		w.idle = make(chan struct{})
	}
	w.pending++
	w.mu.Unlock()

	if !w.q.Enqueue(op) {
		w.done()
		return false
	}
	return true
}

func (w *writer) done() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending--
	if w.pending == 0 {
		close(w.idle)
	}
}

// run drains the queue until it is closed and empty. Writes queued before
// close are still sent.
func (w *writer) run() {
	for {
		if op, ok := w.q.TryDequeue(); ok {
			w.exec(op)
			continue
		}
		<-w.q.Wait()
		if w.q.Closed() && w.q.Len() == 0 {
			return
		}
	}
}

func (w *writer) exec(op writeOp) {
	defer w.done()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := op.do(ctx); err != nil {
		if !gateway.IsWriteError(err) {
			err = gateway.NewWriteError(op.op, op.id, err)
		}
		w.report(err)
		return
	}
	slog.Debug("remote write settled", "op", op.op, "id", op.id)
}

// flush blocks until every submitted write has finished or ctx is done.
func (w *writer) flush(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) close() {
	w.q.Close()
}
