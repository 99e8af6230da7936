package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_IndexRoundTrip(t *testing.T) {
	for _, size := range []int{1, 2, 7, 48} {
		c := New(size)
		for i := 0; i < c.Cells(); i++ {
			x, y := c.IndexToCoords(i)
			require.True(t, c.InBounds(x, y), "size=%d i=%d", size, i)
			require.Equal(t, i, c.CoordsToIndex(x, y), "size=%d i=%d", size, i)
		}
	}
}

func TestCodec_CoordsRoundTrip(t *testing.T) {
	c := New(48)
	for y := 0; y < c.Size(); y++ {
		for x := 0; x < c.Size(); x++ {
			gx, gy := c.IndexToCoords(c.CoordsToIndex(x, y))
			require.Equal(t, x, gx)
			require.Equal(t, y, gy)
		}
	}
}

func TestCodec_RowMajor(t *testing.T) {
	c := New(48)
	assert.Equal(t, 0, c.CoordsToIndex(0, 0))
	assert.Equal(t, 1, c.CoordsToIndex(1, 0))
	assert.Equal(t, 48, c.CoordsToIndex(0, 1))
	assert.Equal(t, 5*48+3, c.CoordsToIndex(3, 5))
	assert.Equal(t, 2304, c.Cells())
}

func TestCodec_Bounds(t *testing.T) {
	c := New(4)
	assert.True(t, c.InBounds(0, 0))
	assert.True(t, c.InBounds(3, 3))
	assert.False(t, c.InBounds(4, 0))
	assert.False(t, c.InBounds(0, -1))
	assert.True(t, c.ValidIndex(15))
	assert.False(t, c.ValidIndex(16))
	assert.False(t, c.ValidIndex(-1))
}

func TestNew_PanicsOnInvalidSize(t *testing.T) {
	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-3) })
}

func TestRecordID_Unique(t *testing.T) {
	c := New(48)
	seen := make(map[string]bool, c.Cells())
	for i := 0; i < c.Cells(); i++ {
		id := c.RecordID(c.IndexToCoords(i))
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, "3_5", RecordID(3, 5))
	assert.Equal(t, "11_1", RecordID(11, 1))
	assert.NotEqual(t, RecordID(1, 11), RecordID(11, 1))
}

func TestParseRecordID(t *testing.T) {
	x, y, err := ParseRecordID("12_40")
	require.NoError(t, err)
	assert.Equal(t, 12, x)
	assert.Equal(t, 40, y)

	for _, bad := range []string{"", "12", "a_1", "1_b", "01_2", "1_2_3", "placeholder"} {
		_, _, err := ParseRecordID(bad)
		assert.Error(t, err, "id %q", bad)
	}
}
