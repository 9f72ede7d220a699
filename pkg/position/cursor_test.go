package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursor_ZeroValueIsStart(t *testing.T) {
	var c Cursor[Revision]

	assert.True(t, c.IsStart())
	assert.False(t, c.IsEnd())

	_, ok := c.Value()
	assert.False(t, ok)

	_, explicit := c.Direction()
	assert.False(t, explicit)
}

func TestCursor_Variants(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		c := Start[Position]()
		assert.True(t, c.IsStart())
		assert.Equal(t, "Start", c.String())
	})

	t.Run("end", func(t *testing.T) {
		c := End[Revision]()
		assert.True(t, c.IsEnd())
		assert.Equal(t, "End", c.String())
	})

	t.Run("specified_carries_value_and_direction", func(t *testing.T) {
		c := At(New(100, 90), Backwards)

		value, ok := c.Value()
		assert.True(t, ok)
		assert.Equal(t, New(100, 90), value)

		d, explicit := c.Direction()
		assert.True(t, explicit)
		assert.Equal(t, Backwards, d)
		assert.Equal(t, "At(C:100/P:90, Backwards)", c.String())
	})
}

func TestCursor_WithDirectionDoesNotMutateOriginal(t *testing.T) {
	original := End[Revision]()
	overridden := original.WithDirection(Forwards)

	_, explicit := original.Direction()
	assert.False(t, explicit)

	d, explicit := overridden.Direction()
	assert.True(t, explicit)
	assert.Equal(t, Forwards, d)
	assert.True(t, overridden.IsEnd())
}
