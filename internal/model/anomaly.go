package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/seld-go/internal/errors"
)

// CheckLoss fails when loss is NaN or infinite.
func CheckLoss(loss float64) error {
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return errors.New(fmt.Errorf("model: non-finite loss %v", loss)).
			Category(errors.CategoryNumerical).
			Component("model").
			Build()
	}
	return nil
}

// CheckGradients fails on the first parameter whose gradient holds NaN or Inf.
func CheckGradients(params []*Param) error {
	for _, p := range params {
		g := p.Grad.RawMatrix().Data
		if floats.HasNaN(g) || hasInf(g) {
			return errors.New(fmt.Errorf("model: non-finite gradient in %s", p.Name)).
				Category(errors.CategoryNumerical).
				Component("model").
				Context("param", p.Name).
				Build()
		}
	}
	return nil
}

func hasInf(s []float64) bool {
	for _, v := range s {
		if math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
