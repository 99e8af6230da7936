package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/pixelgrid/internal/coords"
	"github.com/roach88/pixelgrid/internal/gateway"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record for (x, y) with a fixed timestamp.
func createTestRecord(x, y int, color string) gateway.Record {
	return gateway.Record{
		ID:        coords.RecordID(x, y),
		X:         x,
		Y:         y,
		Color:     color,
		UpdatedAt: time.Date(2025, 11, 22, 15, 9, 13, 0, time.UTC),
	}
}
