package accdoa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/seld-go/internal/tensor"
)

func TestDecodeThresholdIsStrict(t *testing.T) {
	t.Parallel()

	// one frame, three classes with vector lengths 0.4, 0.5 and 0.6
	data := []float64{
		0.4, 0.5, 0.36, // x
		0, 0, 0, // y
		0, 0, 0.48, // z
	}
	out, err := tensor.FromSlice(tensor.Shape{1, 1, 9}, data)
	require.NoError(t, err)

	act, doa, err := Decode(out, 3)
	require.NoError(t, err)

	assert.Equal(t, [][]bool{{false, false, true}}, act.Frames())
	assert.Same(t, out, doa)
}

func TestDecodeFlattensBatchAndFrames(t *testing.T) {
	t.Parallel()

	out := tensor.New(tensor.Shape{2, 3, 6})
	// batch 1, frame 2 -> flattened row 5, class 1 pointing along z
	out.Set(1, 2, 1+4, 0.9)

	act, doa, err := Decode(out, 2)
	require.NoError(t, err)
	require.Equal(t, 6, act.Rows())
	assert.Equal(t, 2, act.Classes())

	for r := range act.Rows() {
		for c := range act.Classes() {
			assert.Equal(t, r == 5 && c == 1, act.Active(r, c), "row %d class %d", r, c)
		}
	}

	x, y, z := Vector(doa, 5, 1, 2)
	assert.InDelta(t, 0.0, x, 0)
	assert.InDelta(t, 0.0, y, 0)
	assert.InDelta(t, 0.9, z, 0)
}

func TestDecodeRejectsWidthMismatch(t *testing.T) {
	t.Parallel()

	_, _, err := Decode(tensor.New(tensor.Shape{1, 1, 7}), 3)
	require.Error(t, err)
}
