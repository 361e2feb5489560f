package training

import (
	"iter"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/seld-go/internal/accdoa"
	"github.com/tphakala/seld-go/internal/errors"
	"github.com/tphakala/seld-go/internal/feed"
	"github.com/tphakala/seld-go/internal/logger"
	"github.com/tphakala/seld-go/internal/model"
	"github.com/tphakala/seld-go/internal/output"
	"github.com/tphakala/seld-go/internal/tensor"
)

// QuickTestBatches caps every training and evaluation pass in quick-test mode.
const QuickTestBatches = 4

// progressInterval spaces the debug progress records of a training pass.
const progressInterval = 30 * time.Second

// Operation names reported in pass errors.
const (
	opTrain    = "train_pass"
	opEvaluate = "evaluate_pass"
)

// Source yields the batches of one pass in order.
type Source interface {
	Batches() iter.Seq2[*feed.Batch, error]
}

// FileSource is a per-file aligned Source: batch i belongs to Filenames()[i].
type FileSource interface {
	Source
	Filenames() []string
}

// EpochOptions tunes a pass.
type EpochOptions struct {
	QuickTest     bool
	DetectAnomaly bool
}

// Pass is the outcome of one pass over a split.
type Pass struct {
	Loss    float64 // mean over processed batches
	Batches int
}

// TrainEpoch runs one optimization step per batch and returns the mean loss
// of the batches it processed.
func TrainEpoch(src Source, m model.Model, opt model.Optimizer, loss model.Loss, opts EpochOptions) (Pass, error) {
	m.SetTraining(true)

	start := time.Now()
	progress := rate.Sometimes{First: 1, Interval: progressInterval}
	var sum float64
	n := 0
	for batch, err := range src.Batches() {
		if err != nil {
			return Pass{}, err
		}

		opt.ZeroGrad()
		out, err := m.Forward(batch.Input)
		if err != nil {
			return Pass{}, passError(err, opTrain, n, start)
		}
		l, grad, err := loss.Compute(out, batch.Target)
		if err != nil {
			return Pass{}, passError(err, opTrain, n, start)
		}
		if opts.DetectAnomaly {
			if err := model.CheckLoss(l); err != nil {
				return Pass{}, passError(err, opTrain, n, start)
			}
		}
		if err := m.Backward(grad); err != nil {
			return Pass{}, passError(err, opTrain, n, start)
		}
		if opts.DetectAnomaly {
			if err := model.CheckGradients(m.Params()); err != nil {
				return Pass{}, passError(err, opTrain, n, start)
			}
		}
		if err := opt.Step(); err != nil {
			return Pass{}, passError(err, opTrain, n, start)
		}

		sum += l
		n++
		progress.Do(func() {
			GetLogger().Debug("training progress",
				logger.Int("batches", n),
				logger.Float64("mean_loss", sum/float64(n)),
				logger.Duration("elapsed", time.Since(start)))
		})
		if opts.QuickTest && n == QuickTestBatches {
			break
		}
	}

	if n == 0 {
		return Pass{}, stateError("training: no batches in train split")
	}
	return Pass{Loss: sum / float64(n), Batches: n}, nil
}

// EvaluateEpoch runs the model without gradient updates and writes one
// detection file per source file into folder. Frames with no active class
// produce no rows.
func EvaluateEpoch(src FileSource, m model.Model, loss model.Loss, nbClasses int, folder string, quickTest bool) (Pass, error) {
	m.SetTraining(false)

	start := time.Now()
	files := src.Filenames()
	var sum float64
	n, truncated := 0, false
	for batch, err := range src.Batches() {
		if err != nil {
			return Pass{}, err
		}
		if n >= len(files) {
			return Pass{}, stateError("evaluation: batch %d has no source file, only %d files", n, len(files))
		}

		out, err := m.Forward(batch.Input)
		if err != nil {
			return Pass{}, passError(err, opEvaluate, n, start)
		}
		l, _, err := loss.Compute(out, batch.Target)
		if err != nil {
			return Pass{}, passError(err, opEvaluate, n, start)
		}

		frames, err := detections(out, nbClasses)
		if err != nil {
			return Pass{}, passError(err, opEvaluate, n, start)
		}
		path := filepath.Join(folder, output.ReplaceExt(files[n], ".csv"))
		if err := output.WriteDetections(path, frames); err != nil {
			return Pass{}, err
		}

		sum += l
		n++
		if quickTest && n == QuickTestBatches {
			truncated = true
			break
		}
	}

	if n == 0 {
		return Pass{}, stateError("evaluation: no batches for %d files", len(files))
	}
	if !truncated && n != len(files) {
		return Pass{}, stateError("evaluation: %d batches for %d files", n, len(files))
	}
	return Pass{Loss: sum / float64(n), Batches: n}, nil
}

// detections keys active classes by flattened frame index within the batch,
// which is the frame index within the file for per-file batches.
func detections(out *tensor.Tensor, nbClasses int) (output.Frames, error) {
	act, doa, err := accdoa.Decode(out, nbClasses)
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryModel).Component("training").Build()
	}

	frames := output.Frames{}
	for row := range act.Rows() {
		for class := range act.Classes() {
			if !act.Active(row, class) {
				continue
			}
			x, y, z := accdoa.Vector(doa, row, class, nbClasses)
			frames[row] = append(frames[row], output.Detection{Class: class, X: x, Y: y, Z: z})
		}
	}
	return frames, nil
}

func stateError(format string, args ...any) error {
	return errors.Newf(format, args...).Category(errors.CategoryState).Component("training").Build()
}

// passError attaches the failing batch and the time spent in the pass so far.
// The category of err is kept.
func passError(err error, operation string, batch int, start time.Time) error {
	return errors.New(err).
		Component("training").
		Context("batch", batch).
		Timing(operation, time.Since(start)).
		Build()
}
