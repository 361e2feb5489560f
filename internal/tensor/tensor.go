// Package tensor provides the dense rank-3 arrays exchanged between the
// data feed, the model and the label decoder.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Shape is (batch, frames, channels).
type Shape [3]int

// Size returns the number of elements.
func (s Shape) Size() int { return s[0] * s[1] * s[2] }

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s[0], s[1], s[2])
}

// Tensor is a row-major rank-3 float64 array.
type Tensor struct {
	shape Shape
	data  []float64
}

// New allocates a zero tensor.
func New(shape Shape) *Tensor {
	if shape[0] < 0 || shape[1] < 0 || shape[2] < 0 {
		panic(fmt.Sprintf("tensor: negative dimension in %v", shape))
	}
	return &Tensor{shape: shape, data: make([]float64, shape.Size())}
}

// FromSlice wraps data without copying.
func FromSlice(shape Shape, data []float64) (*Tensor, error) {
	if len(data) != shape.Size() {
		return nil, fmt.Errorf("tensor: data length %d mismatch for shape %v", len(data), shape)
	}
	return &Tensor{shape: shape, data: data}, nil
}

func (t *Tensor) Shape() Shape { return t.shape }

// Data exposes the backing slice.
func (t *Tensor) Data() []float64 { return t.data }

func (t *Tensor) index(b, f, c int) int {
	return (b*t.shape[1]+f)*t.shape[2] + c
}

func (t *Tensor) At(b, f, c int) float64 { return t.data[t.index(b, f, c)] }

func (t *Tensor) Set(b, f, c int, v float64) { t.data[t.index(b, f, c)] = v }

// Row returns the channel vector at (b, f), sharing storage.
func (t *Tensor) Row(b, f int) []float64 {
	i := t.index(b, f, 0)
	return t.data[i : i+t.shape[2]]
}

// Matrix views the tensor as a (batch*frames, channels) matrix sharing storage.
func (t *Tensor) Matrix() *mat.Dense {
	rows := t.shape[0] * t.shape[1]
	if rows == 0 || t.shape[2] == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(rows, t.shape[2], t.data)
}
