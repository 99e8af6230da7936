package engine

import "errors"

var (
	// ErrClosed is returned by intents submitted after Close.
	ErrClosed = errors.New("engine closed")

	// ErrNotRunning is returned by intents submitted before Run.
	ErrNotRunning = errors.New("engine not running")

	// ErrAlreadyStarted is returned by a second call to Run.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrIndexOutOfRange is returned by Paint and PaintAt for cells outside
	// the grid.
	ErrIndexOutOfRange = errors.New("cell out of range")
)
