package model

import (
	"fmt"

	"github.com/tphakala/seld-go/internal/tensor"
)

// MSE is the mean squared error over all elements.
type MSE struct{}

// Compute returns mean((out-target)^2) and its gradient 2(out-target)/N.
func (MSE) Compute(out, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if out.Shape() != target.Shape() {
		return 0, nil, modelError(fmt.Errorf("model: output shape %v mismatch target %v", out.Shape(), target.Shape()))
	}

	o, t := out.Data(), target.Data()
	n := float64(len(o))
	if n == 0 {
		return 0, nil, modelError(fmt.Errorf("model: empty output"))
	}

	grad := tensor.New(out.Shape())
	g := grad.Data()
	var sum float64
	for i := range o {
		d := o[i] - t[i]
		sum += d * d
		g[i] = 2 * d / n
	}
	return sum / n, grad, nil
}
