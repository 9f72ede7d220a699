package position

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosition_Compare(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Position
		expected int
	}{
		{"equal", New(10, 10), New(10, 10), 0},
		{"commit_orders_first", New(9, 100), New(10, 0), -1},
		{"prepare_breaks_ties", New(10, 11), New(10, 10), 1},
		{"zero_value_is_smallest", Position{}, New(0, 1), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.expected, tt.b.Compare(tt.a))
		})
	}
}

func TestPosition_SortsByCommitThenPrepare(t *testing.T) {
	positions := []Position{New(3, 1), New(1, 9), New(3, 0), New(2, 2)}

	sort.Slice(positions, func(i, j int) bool { return positions[i].Less(positions[j]) })

	assert.Equal(t, []Position{New(1, 9), New(2, 2), New(3, 0), New(3, 1)}, positions)
}

func TestPosition_String(t *testing.T) {
	assert.Equal(t, "C:42/P:41", New(42, 41).String())
	assert.Equal(t, "7", Revision(7).String())
	assert.Equal(t, "Backwards", Backwards.String())
	assert.Equal(t, "Unknown", Direction(9).String())
}
