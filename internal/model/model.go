// Package model defines the trainable network capability consumed by the
// training loop and provides a frame-wise ACCDOA regressor built on gonum.
//
// A Model is a black box with a forward pass, a backward pass that
// accumulates parameter gradients, and a parameter list that optimizers and
// checkpoints operate on.
package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/seld-go/internal/tensor"
)

// Param is one learnable array and its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, r, c int) *Param {
	return &Param{Name: name, Value: mat.NewDense(r, c, nil), Grad: mat.NewDense(r, c, nil)}
}

// Model maps an input batch to ACCDOA output and back-propagates gradients.
type Model interface {
	// Forward computes the output for x and keeps what Backward needs.
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	// Backward accumulates parameter gradients for dL/dout of the last Forward.
	Backward(grad *tensor.Tensor) error
	Params() []*Param
	// SetTraining toggles dropout.
	SetTraining(training bool)
}

// Optimizer updates parameters from their gradients.
type Optimizer interface {
	ZeroGrad()
	Step() error
}

// Loss scores an output against its target and returns dL/dout.
type Loss interface {
	Compute(out, target *tensor.Tensor) (float64, *tensor.Tensor, error)
}

// NumParams counts the scalar parameters of m.
func NumParams(m Model) int {
	n := 0
	for _, p := range m.Params() {
		r, c := p.Value.Dims()
		n += r * c
	}
	return n
}
