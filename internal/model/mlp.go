package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tphakala/seld-go/internal/errors"
	"github.com/tphakala/seld-go/internal/tensor"
)

// Config sizes a FrameMLP.
type Config struct {
	In      tensor.Shape // (batch, feature frames, feature dim), batch ignored
	Out     tensor.Shape // (batch, label frames, 3*classes), batch ignored
	Hidden  int
	Dropout float64
	Seed    uint64
}

// FrameMLP predicts one ACCDOA vector set per label frame from the stacked
// feature frames it covers: tanh hidden layer, dropout, tanh output.
type FrameMLP struct {
	cfg        Config
	resolution int
	inWidth    int
	outWidth   int

	w1, b1, w2, b2 *Param

	training bool
	rng      *rand.Rand

	// forward state
	x      *mat.Dense
	hidden *mat.Dense // tanh activations before dropout
	mask   *mat.Dense // inverted dropout mask, nil when not training
	out    *mat.Dense
	batch  int
}

// NewFrameMLP builds a network with Xavier-uniform weights and zero biases.
func NewFrameMLP(cfg Config) (*FrameMLP, error) {
	featFrames, featDim := cfg.In[1], cfg.In[2]
	labelFrames, outWidth := cfg.Out[1], cfg.Out[2]

	switch {
	case featFrames <= 0 || featDim <= 0 || labelFrames <= 0 || outWidth <= 0:
		return nil, modelError(fmt.Errorf("model: invalid data sizes in=%v out=%v", cfg.In, cfg.Out))
	case featFrames%labelFrames != 0:
		return nil, modelError(fmt.Errorf("model: %d feature frames mismatch %d label frames", featFrames, labelFrames))
	case cfg.Hidden <= 0:
		return nil, modelError(fmt.Errorf("model: invalid hidden size %d", cfg.Hidden))
	case cfg.Dropout < 0 || cfg.Dropout >= 1:
		return nil, modelError(fmt.Errorf("model: invalid dropout rate %g", cfg.Dropout))
	}

	resolution := featFrames / labelFrames
	m := &FrameMLP{
		cfg:        cfg,
		resolution: resolution,
		inWidth:    resolution * featDim,
		outWidth:   outWidth,
		w1:         newParam("fnn.0.weight", resolution*featDim, cfg.Hidden),
		b1:         newParam("fnn.0.bias", 1, cfg.Hidden),
		w2:         newParam("fnn.1.weight", cfg.Hidden, outWidth),
		b2:         newParam("fnn.1.bias", 1, outWidth),
		training:   true,
		rng:        rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1)), //nolint:gosec // dropout masks only
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	xavier(m.w1.Value, src)
	xavier(m.w2.Value, src)

	return m, nil
}

// xavier fills w from U(-a, a) with a = sqrt(6 / (fanIn + fanOut)).
func xavier(w *mat.Dense, src rand.Source) {
	fanIn, fanOut := w.Dims()
	a := math.Sqrt(6 / float64(fanIn+fanOut))
	dist := distuv.Uniform{Min: -a, Max: a, Src: src}
	raw := w.RawMatrix().Data
	for i := range raw {
		raw[i] = dist.Rand()
	}
}

func modelError(err error) error {
	return errors.New(err).Category(errors.CategoryModel).Component("model").Build()
}

func (m *FrameMLP) Params() []*Param { return []*Param{m.w1, m.b1, m.w2, m.b2} }

func (m *FrameMLP) SetTraining(training bool) { m.training = training }

// Forward stacks every resolution consecutive feature frames into one row,
// so the input reshapes to (batch*label frames, resolution*feature dim)
// without copying.
func (m *FrameMLP) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	shape := x.Shape()
	if shape[1] != m.cfg.In[1] || shape[2] != m.cfg.In[2] || shape[0] <= 0 {
		return nil, modelError(fmt.Errorf("model: input shape %v mismatch, expected (*, %d, %d)", shape, m.cfg.In[1], m.cfg.In[2]))
	}

	m.batch = shape[0]
	rows := shape[0] * m.cfg.Out[1]
	m.x = mat.NewDense(rows, m.inWidth, x.Data())

	hidden := mat.NewDense(rows, m.cfg.Hidden, nil)
	hidden.Mul(m.x, m.w1.Value)
	addBiasTanh(hidden, m.b1.Value)
	m.hidden = hidden

	act := hidden
	m.mask = nil
	if m.training && m.cfg.Dropout > 0 {
		m.mask = mat.NewDense(rows, m.cfg.Hidden, nil)
		keep := 1 - m.cfg.Dropout
		mask := m.mask.RawMatrix().Data
		for i := range mask {
			if m.rng.Float64() < keep {
				mask[i] = 1 / keep
			}
		}
		act = mat.NewDense(rows, m.cfg.Hidden, nil)
		act.MulElem(hidden, m.mask)
	}

	out := mat.NewDense(rows, m.outWidth, nil)
	out.Mul(act, m.w2.Value)
	addBiasTanh(out, m.b2.Value)
	m.out = out

	return tensor.FromSlice(tensor.Shape{shape[0], m.cfg.Out[1], m.outWidth}, out.RawMatrix().Data)
}

func addBiasTanh(z, bias *mat.Dense) {
	b := bias.RawRowView(0)
	rows, _ := z.Dims()
	for r := range rows {
		row := z.RawRowView(r)
		for c := range row {
			row[c] = math.Tanh(row[c] + b[c])
		}
	}
}

// Backward accumulates gradients into every Param.Grad.
func (m *FrameMLP) Backward(grad *tensor.Tensor) error {
	if m.out == nil {
		return modelError(fmt.Errorf("model: backward called before forward"))
	}
	want := tensor.Shape{m.batch, m.cfg.Out[1], m.outWidth}
	if grad.Shape() != want {
		return modelError(fmt.Errorf("model: gradient shape %v mismatch, expected %v", grad.Shape(), want))
	}

	rows, _ := m.out.Dims()

	// through the output tanh
	dz2 := mat.NewDense(rows, m.outWidth, nil)
	dz2.Apply(func(i, j int, _ float64) float64 {
		y := m.out.At(i, j)
		return grad.Data()[i*m.outWidth+j] * (1 - y*y)
	}, dz2)

	act := m.hidden
	if m.mask != nil {
		act = mat.NewDense(rows, m.cfg.Hidden, nil)
		act.MulElem(m.hidden, m.mask)
	}

	accumulate(m.w2.Grad, act.T(), dz2)
	accumulateBias(m.b2.Grad, dz2)

	dh := mat.NewDense(rows, m.cfg.Hidden, nil)
	dh.Mul(dz2, m.w2.Value.T())
	if m.mask != nil {
		dh.MulElem(dh, m.mask)
	}
	dh.Apply(func(i, j int, v float64) float64 {
		h := m.hidden.At(i, j)
		return v * (1 - h*h)
	}, dh)

	accumulate(m.w1.Grad, m.x.T(), dh)
	accumulateBias(m.b1.Grad, dh)

	return nil
}

// accumulate adds a*b to dst.
func accumulate(dst *mat.Dense, a, b mat.Matrix) {
	var prod mat.Dense
	prod.Mul(a, b)
	dst.Add(dst, &prod)
}

func accumulateBias(dst, d *mat.Dense) {
	sums := dst.RawRowView(0)
	rows, _ := d.Dims()
	for r := range rows {
		for c, v := range d.RawRowView(r) {
			sums[c] += v
		}
	}
}
