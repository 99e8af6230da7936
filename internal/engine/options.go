package engine

import (
	"time"

	"github.com/cenkalti/backoff"

	"github.com/roach88/pixelgrid/internal/grid"
)

// DefaultGridSize is the side length of the shared canvas.
const DefaultGridSize = 48

// DefaultTimeout bounds each gateway call made by the engine.
const DefaultTimeout = 10 * time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithGridSize sets the side length N of the grid. Default: 48.
func WithGridSize(size int) Option {
	return func(e *Engine) {
		e.size = size
	}
}

// WithDefaultColor sets the color of unpainted and cleared cells. The color
// must be canonical (see grid.ParseColor). Default: grid.DefaultColor.
func WithDefaultColor(c grid.Color) Option {
	return func(e *Engine) {
		e.fill = c
	}
}

// WithNow sets the wall clock used to stamp UpdatedAt on outgoing records.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithWriteTimeout bounds each upsert and delete. Default: DefaultTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.writeTimeout = d
	}
}

// WithFetchTimeout bounds each bulk fetch. Default: DefaultTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.fetchTimeout = d
	}
}

// WithErrorHandler registers fn to receive every reported gateway failure
// (*gateway.Error). fn may be called from any goroutine and must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(e *Engine) {
		e.onError = fn
	}
}

// WithObserver registers fn to receive one Update per processed event. fn
// runs on the Run goroutine, after the corresponding snapshot is published;
// it must not call intent methods.
func WithObserver(fn func(Update)) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// WithDeleteResets makes remote delete notifications reset the affected
// cell to the default color. Default: deletes are ignored.
func WithDeleteResets(enabled bool) Option {
	return func(e *Engine) {
		e.deleteResets = enabled
	}
}

// WithBackOff sets the policy used to retry Subscribe after the change feed
// drops. newBackOff is called once per reconnect attempt sequence.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(e *Engine) {
		e.newBackOff = newBackOff
	}
}

// WithoutResubscribe disables reconnecting after the change feed drops. The
// engine keeps running on local intents only.
func WithoutResubscribe() Option {
	return func(e *Engine) {
		e.resubscribe = false
	}
}

// WithIDGenerator sets the generator for the session id. Default:
// UUIDv7Generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(e *Engine) {
		e.idGen = gen
	}
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		e.sessionID = id
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // keep trying for the lifetime of the session
	return b
}
