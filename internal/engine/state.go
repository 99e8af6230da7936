package engine

import (
	"github.com/roach88/pixelgrid/internal/gateway"
	"github.com/roach88/pixelgrid/internal/grid"
)

// State is the engine lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateSynced
	StateSyncedDegraded
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateSynced:
		return "synced"
	case StateSyncedDegraded:
		return "synced_degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConfirmFunc asks the user to confirm a destructive action.
type ConfirmFunc func(prompt string) bool

// AlwaysConfirm confirms without asking, for non-interactive callers that
// already obtained consent (e.g. `pixelgrid clear --yes`).
func AlwaysConfirm(string) bool { return true }

// ClearPrompt is shown before a clear-all is applied.
const ClearPrompt = "Nuke the canvas? This deletes every pixel for all collaborators."

// UpdateKind identifies what an Update describes.
type UpdateKind string

const (
	UpdateLoaded     UpdateKind = "loaded"
	UpdateLoadFailed UpdateKind = "load_failed"
	UpdatePaint      UpdateKind = "paint"
	UpdateClear      UpdateKind = "clear"
	UpdateRemote     UpdateKind = "remote"
	UpdateIgnored    UpdateKind = "ignored"
)

// Update describes one processed event.
type Update struct {
	Kind UpdateKind

	// Index is the affected cell, or -1 when the whole grid changed or
	// nothing changed.
	Index int

	// Color is the color written to Index.
	Color grid.Color

	// Change is the notification behind remote and ignored updates.
	Change *gateway.Change

	// Err is set for load_failed updates.
	Err error

	// Seq is the version of the snapshot current after the event.
	Seq int64
}
