// Package coords maps between linear cell indexes, grid coordinates and the
// record ids the remote table is keyed by.
//
// The grid is square and row-major: index = y*N + x. All functions are pure.
// Passing out-of-range values to the mapping functions is a caller contract
// violation; use InBounds/ValidIndex at trust boundaries.
package coords

import (
	"fmt"
	"strconv"
	"strings"
)

// idSeparator never appears in the decimal rendering of a coordinate, so
// RecordID is collision free for every in-range pair.
const idSeparator = "_"

// Codec converts between representations for a grid of side Size.
type Codec struct {
	size int
}

// New returns a codec for an N x N grid. Panics if size is not positive.
func New(size int) Codec {
	if size <= 0 {
		panic(fmt.Sprintf("coords: invalid grid size %d", size))
	}
	return Codec{size: size}
}

// Size returns the grid side length N.
func (c Codec) Size() int {
	return c.size
}

// Cells returns N*N, the number of cells in the grid.
func (c Codec) Cells() int {
	return c.size * c.size
}

// IndexToCoords returns the (x, y) position of linear index i.
func (c Codec) IndexToCoords(i int) (x, y int) {
	return i % c.size, i / c.size
}

// CoordsToIndex returns the linear index of (x, y).
func (c Codec) CoordsToIndex(x, y int) int {
	return y*c.size + x
}

// InBounds reports whether (x, y) lies inside the grid.
func (c Codec) InBounds(x, y int) bool {
	return x >= 0 && x < c.size && y >= 0 && y < c.size
}

// ValidIndex reports whether i addresses a cell.
func (c Codec) ValidIndex(i int) bool {
	return i >= 0 && i < c.Cells()
}

// RecordID returns the stable remote row id for (x, y), e.g. "3_5".
func RecordID(x, y int) string {
	return strconv.Itoa(x) + idSeparator + strconv.Itoa(y)
}

// RecordID is the codec-bound form of the package-level RecordID.
func (c Codec) RecordID(x, y int) string {
	return RecordID(x, y)
}

// ParseRecordID is the inverse of RecordID. It does not check grid bounds.
func ParseRecordID(id string) (x, y int, err error) {
	xs, ys, ok := strings.Cut(id, idSeparator)
	if !ok {
		return 0, 0, fmt.Errorf("record id %q: missing separator", id)
	}
	x, err = strconv.Atoi(xs)
	if err != nil {
		return 0, 0, fmt.Errorf("record id %q: bad x: %w", id, err)
	}
	y, err = strconv.Atoi(ys)
	if err != nil {
		return 0, 0, fmt.Errorf("record id %q: bad y: %w", id, err)
	}
	if RecordID(x, y) != id {
		// Reject non-canonical spellings like "03_5" or "+3_5".
		return 0, 0, fmt.Errorf("record id %q: not canonical", id)
	}
	return x, y, nil
}
