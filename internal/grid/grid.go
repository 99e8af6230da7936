// Package grid owns the canonical cell buffer of the shared canvas.
//
// A Grid is a fixed-length, row-major sequence of N*N colors. It is never
// resized and never holds an invalid color. Grid itself is not safe for
// concurrent use; the sync engine is its only writer and hands out immutable
// Snapshots to everyone else.
package grid

import (
	"fmt"
	"slices"
)

// Grid is the mutable cell buffer.
type Grid struct {
	size  int
	cells []Color
}

// New returns an N x N grid with every cell set to fill.
// Panics if size is not positive or fill is not a canonical color.
func New(size int, fill Color) *Grid {
	if size <= 0 {
		panic(fmt.Sprintf("grid: invalid size %d", size))
	}
	if !fill.Valid() {
		panic(fmt.Sprintf("grid: invalid fill color %q", fill))
	}
	cells := make([]Color, size*size)
	for i := range cells {
		cells[i] = fill
	}
	return &Grid{size: size, cells: cells}
}

// Size returns the side length N.
func (g *Grid) Size() int {
	return g.size
}

// Len returns N*N.
func (g *Grid) Len() int {
	return len(g.cells)
}

// At returns the color at index i. Panics if i is out of range.
func (g *Grid) At(i int) Color {
	return g.cells[i]
}

// Set writes one cell. An out-of-range index or a non-canonical color is a
// programming error and panics.
func (g *Grid) Set(i int, c Color) {
	if i < 0 || i >= len(g.cells) {
		panic(fmt.Sprintf("grid: index %d out of range [0,%d)", i, len(g.cells)))
	}
	if !c.Valid() {
		panic(fmt.Sprintf("grid: invalid color %q", c))
	}
	g.cells[i] = c
}

// Fill sets every cell to c.
func (g *Grid) Fill(c Color) {
	if !c.Valid() {
		panic(fmt.Sprintf("grid: invalid color %q", c))
	}
	for i := range g.cells {
		g.cells[i] = c
	}
}

// Clone returns an independent copy of g.
func (g *Grid) Clone() *Grid {
	return &Grid{size: g.size, cells: slices.Clone(g.cells)}
}

// Snapshot returns an immutable copy of the grid tagged with seq.
func (g *Grid) Snapshot(seq int64) Snapshot {
	return Snapshot{size: g.size, seq: seq, cells: slices.Clone(g.cells)}
}

// Snapshot is a read-only view of the grid at one version. The zero value is
// an empty snapshot.
type Snapshot struct {
	size  int
	seq   int64
	cells []Color
}

// Size returns the side length N.
func (s Snapshot) Size() int {
	return s.size
}

// Len returns the number of cells.
func (s Snapshot) Len() int {
	return len(s.cells)
}

// Seq returns the version this snapshot was published at. Later snapshots
// from the same engine have strictly larger versions.
func (s Snapshot) Seq() int64 {
	return s.seq
}

// At returns the color at index i. Panics if i is out of range.
func (s Snapshot) At(i int) Color {
	return s.cells[i]
}

// Colors returns a copy of all cells in index order.
func (s Snapshot) Colors() []Color {
	return slices.Clone(s.cells)
}

// Count returns how many cells hold c.
func (s Snapshot) Count(c Color) int {
	n := 0
	for _, cell := range s.cells {
		if cell == c {
			n++
		}
	}
	return n
}

// Equal reports whether two snapshots hold the same cells, ignoring Seq.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.size == o.size && slices.Equal(s.cells, o.cells)
}
