package training

import (
	"iter"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/seld-go/internal/feed"
	"github.com/tphakala/seld-go/internal/model"
	"github.com/tphakala/seld-go/internal/scoring"
	"github.com/tphakala/seld-go/internal/tensor"
)

const testClasses = 2

var (
	testIn  = tensor.Shape{2, 4, 3}
	testOut = tensor.Shape{2, 2, 3 * testClasses}
)

func wave(shape tensor.Shape, phase float64) *tensor.Tensor {
	x := tensor.New(shape)
	for i := range x.Data() {
		x.Data()[i] = 0.5 * math.Sin(phase+float64(i))
	}
	return x
}

// fakeDataset serves fixed batches, one per file when files are given.
type fakeDataset struct {
	files   []string
	batches []*feed.Batch
	err     error // yielded after the batches when set
}

func newFakeDataset(files []string, nbBatches int) *fakeDataset {
	d := &fakeDataset{files: files}
	for i := range nbBatches {
		d.batches = append(d.batches, &feed.Batch{
			Input:  wave(testIn, float64(i)),
			Target: wave(testOut, float64(i)+0.5),
		})
	}
	return d
}

func (d *fakeDataset) Batches() iter.Seq2[*feed.Batch, error] {
	return func(yield func(*feed.Batch, error) bool) {
		for _, b := range d.batches {
			if !yield(b, nil) {
				return
			}
		}
		if d.err != nil {
			yield(nil, d.err)
		}
	}
}

func (d *fakeDataset) Filenames() []string               { return d.files }
func (d *fakeDataset) NbBatches() int                    { return len(d.batches) }
func (d *fakeDataset) DataSizes() (in, out tensor.Shape) { return testIn, testOut }

// stubModel returns a fixed output and records mode switches.
type stubModel struct {
	out      *tensor.Tensor
	training []bool
	forwards int
}

func (m *stubModel) Forward(*tensor.Tensor) (*tensor.Tensor, error) {
	m.forwards++
	return m.out, nil
}
func (m *stubModel) Backward(*tensor.Tensor) error { return nil }
func (m *stubModel) Params() []*model.Param        { return nil }
func (m *stubModel) SetTraining(training bool)     { m.training = append(m.training, training) }

// scriptedLoss returns the next scripted value per call.
type scriptedLoss struct {
	values []float64
	calls  int
}

func (l *scriptedLoss) Compute(out, _ *tensor.Tensor) (float64, *tensor.Tensor, error) {
	v := l.values[l.calls%len(l.values)]
	l.calls++
	return v, tensor.New(out.Shape()), nil
}

type countingOptimizer struct{ zero, steps int }

func (o *countingOptimizer) ZeroGrad()   { o.zero++ }
func (o *countingOptimizer) Step() error { o.steps++; return nil }

// scriptedScorer returns the next SELD value on every call and reports the
// folder to onScore first.
type scriptedScorer struct {
	seld    []float64
	folders []string
	onScore func(call int, folder string)
}

func (s *scriptedScorer) Score(folder string) (scoring.Scores, error) {
	call := len(s.folders)
	s.folders = append(s.folders, folder)
	if s.onScore != nil {
		s.onScore(call, folder)
	}
	v := s.seld[min(call, len(s.seld)-1)]
	return scoring.Scores{ER: v / 10, F: 1 / (1 + v), LE: 10 * v, LR: 0.5, SELD: v}, nil
}

func snapshot(m model.Model) []*mat.Dense {
	var out []*mat.Dense
	for _, p := range m.Params() {
		out = append(out, mat.DenseCopyOf(p.Value))
	}
	return out
}

func sameParams(a, b []*mat.Dense) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !mat.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
