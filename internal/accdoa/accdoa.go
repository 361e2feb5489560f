// Package accdoa decodes activity-coupled direction-of-arrival network output.
//
// The last axis of an ACCDOA tensor holds three blocks of C values: all x
// components, then all y, then all z. A class is active in a frame when the
// length of its (x, y, z) vector is strictly greater than ActivityThreshold.
package accdoa

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tphakala/seld-go/internal/tensor"
)

// ActivityThreshold is the vector length above which a class counts as active.
const ActivityThreshold = 0.5

// Activity is the (batch*frame, class) activity table of one decoded tensor.
type Activity struct {
	rows    int
	classes int
	active  []bool
}

// Rows returns batch*frame.
func (a *Activity) Rows() int { return a.rows }

// Classes returns the number of classes per row.
func (a *Activity) Classes() int { return a.classes }

// Active reports whether class is active at flattened frame row.
func (a *Activity) Active(row, class int) bool {
	return a.active[row*a.classes+class]
}

// Frames returns the flattened activity table row by row.
func (a *Activity) Frames() [][]bool {
	out := make([][]bool, a.rows)
	for r := range out {
		out[r] = a.active[r*a.classes : (r+1)*a.classes]
	}
	return out
}

// Decode splits out into its x, y and z blocks and thresholds the per-class
// vector length. The spatial tensor is returned as given.
func Decode(out *tensor.Tensor, nbClasses int) (*Activity, *tensor.Tensor, error) {
	shape := out.Shape()
	if nbClasses <= 0 || shape[2] != 3*nbClasses {
		return nil, nil, fmt.Errorf("accdoa: output width %d mismatch for %d classes", shape[2], nbClasses)
	}

	rows := shape[0] * shape[1]
	act := &Activity{rows: rows, classes: nbClasses, active: make([]bool, rows*nbClasses)}

	data := out.Data()
	width := shape[2]
	for r := range rows {
		v := data[r*width : (r+1)*width]
		for c := range nbClasses {
			xyz := r3.Vec{X: v[c], Y: v[c+nbClasses], Z: v[c+2*nbClasses]}
			act.active[r*nbClasses+c] = r3.Norm(xyz) > ActivityThreshold
		}
	}

	return act, out, nil
}

// Vector returns the (x, y, z) direction of class at flattened frame row.
func Vector(doa *tensor.Tensor, row, class, nbClasses int) (x, y, z float64) {
	width := doa.Shape()[2]
	v := doa.Data()[row*width : (row+1)*width]
	return v[class], v[class+nbClasses], v[class+2*nbClasses]
}
