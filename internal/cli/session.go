package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/roach88/pixelgrid/internal/engine"
	"github.com/roach88/pixelgrid/internal/gateway"
	"github.com/roach88/pixelgrid/internal/relay"
)

// session is a running engine connected to a relay.
type session struct {
	engine *engine.Engine
	cancel context.CancelFunc
	done   chan error

	mu     sync.Mutex
	errors []error

	closeOnce sync.Once
}

// connect starts an engine against the relay at url and waits for the
// initial load. A failed load is returned as an error.
func connect(ctx context.Context, url string, size int, extra ...engine.Option) (*session, error) {
	id := engine.UUIDv7Generator{}.Generate()
	client, err := relay.NewClient(url, relay.WithClientID(id))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid relay url", err)
	}

	s := &session{done: make(chan error, 1)}
	opts := []engine.Option{
		engine.WithSessionID(id),
		engine.WithGridSize(size),
		engine.WithErrorHandler(s.record),
	}
	s.engine = engine.New(client, append(opts, extra...)...)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() { s.done <- s.engine.Run(runCtx) }()

	select {
	case <-s.engine.Ready():
	case <-ctx.Done():
		s.Close()
		return nil, WrapExitError(ExitFailure, "interrupted while loading", ctx.Err())
	}

	switch s.engine.State() {
	case engine.StateClosed:
		s.Close()
		return nil, NewExitError(ExitFailure, "engine stopped while loading")
	case engine.StateSyncedDegraded:
		err := s.firstError(gateway.IsFetchError)
		s.Close()
		return nil, WrapExitError(ExitFailure, "failed to load grid from "+url, err)
	}
	return s, nil
}

func (s *session) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

// firstError returns the first recorded error matching pred.
func (s *session) firstError(pred func(error) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, err := range s.errors {
		if pred(err) {
			return err
		}
	}
	return nil
}

// flush waits for queued writes and returns the first write failure.
func (s *session) flush(ctx context.Context) error {
	if err := s.engine.Flush(ctx); err != nil {
		return err
	}
	return s.firstError(gateway.IsWriteError)
}

// Close stops the engine and waits for Run to return.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, or when
// parent is done.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
