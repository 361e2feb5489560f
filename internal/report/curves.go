// Package report renders per-split training charts.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/tphakala/seld-go/internal/errors"
)

// Epoch is one point of the training curves.
type Epoch struct {
	Index     int
	TrainLoss float64
	ValLoss   float64
	ValSELD   float64
}

var (
	trainColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	valColor   = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	seldColor  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	bestColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// WriteCurves saves train loss, validation loss and validation SELD per epoch
// as an image at path. The format follows the extension. bestEpoch is marked
// on the SELD line when it is one of the plotted epochs.
func WriteCurves(path, title string, epochs []Epoch, bestEpoch int) error {
	if len(epochs) == 0 {
		return errors.New(fmt.Errorf("report: no epochs to plot for %s", title)).
			Category(errors.CategoryValidation).
			Build()
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Loss / SELD"
	p.Add(plotter.NewGrid())

	train := make(plotter.XYs, len(epochs))
	val := make(plotter.XYs, len(epochs))
	seld := make(plotter.XYs, len(epochs))
	var best plotter.XYs
	for i, e := range epochs {
		x := float64(e.Index)
		train[i] = plotter.XY{X: x, Y: e.TrainLoss}
		val[i] = plotter.XY{X: x, Y: e.ValLoss}
		seld[i] = plotter.XY{X: x, Y: e.ValSELD}
		if e.Index == bestEpoch {
			best = append(best, seld[i])
		}
	}

	for _, series := range []struct {
		label string
		pts   plotter.XYs
		color color.Color
	}{
		{"train loss", train, trainColor},
		{"val loss", val, valColor},
		{"val SELD", seld, seldColor},
	} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return plotError(err, path)
		}
		line.Color = series.color
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(series.label, line)
	}

	if len(best) > 0 {
		marker, err := plotter.NewScatter(best)
		if err != nil {
			return plotError(err, path)
		}
		marker.GlyphStyle.Color = bestColor
		marker.GlyphStyle.Radius = vg.Points(4)
		marker.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(marker)
		p.Legend.Add("checkpoint", marker)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError(fmt.Errorf("report: create dir for %s: %w", path, err), path)
	}
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return plotError(fmt.Errorf("save curves: %w", err), path)
	}
	return nil
}

func plotError(err error, path string) error {
	return errors.New(fmt.Errorf("report: %w", err)).
		Category(errors.CategoryFileIO).
		Component("report").
		FileContext(path).
		Build()
}
