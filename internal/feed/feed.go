// Package feed produces fixed-shape (input, target) batches for one data split
// from normalized feature and label matrices stored as .npy files.
package feed

import (
	"fmt"
	"iter"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/seld-go/internal/conf"
	"github.com/tphakala/seld-go/internal/errors"
	"github.com/tphakala/seld-go/internal/logger"
	"github.com/tphakala/seld-go/internal/tensor"
)

// foldDigitIndex locates the fold number in names like fold3_room1_mix001.npy.
const foldDigitIndex = 4

// Options selects the batching mode of a Feed.
type Options struct {
	// Shuffle randomizes file order on every pass. Continuous mode only.
	Shuffle bool
	// PerFile aligns batches with files: one zero-padded batch per file.
	PerFile bool
	// Seed makes shuffling reproducible.
	Seed uint64
}

// Batch is one (input, target) pair.
type Batch struct {
	Input  *tensor.Tensor // (batch, feature frames, feature dim)
	Target *tensor.Tensor // (batch, label frames, 3*classes)
}

// Feed serves the batches of the files belonging to a set of folds.
type Feed struct {
	featDir  string
	labelDir string
	folds    []int
	opts     Options

	files     []string
	featDim   int
	nbClasses int

	featSeqLen  int
	labelSeqLen int
	batchSize   int
	nbBatches   int

	store *matrixStore
	rng   *rand.Rand
}

// New scans the feature directory and sizes the split. Shapes are read from
// the .npy headers only; matrices are loaded lazily by Batches.
func New(settings *conf.Settings, folds []int, opts Options) (*Feed, error) {
	ttl, err := settings.Cache.Expiration()
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryConfiguration).Build()
	}

	f := &Feed{
		featDir:     settings.FeatureDir(),
		labelDir:    settings.LabelDir(),
		folds:       slices.Clone(folds),
		opts:        opts,
		nbClasses:   settings.Features.UniqueClasses,
		featSeqLen:  settings.Features.FeatureSequenceLength,
		labelSeqLen: settings.Features.LabelSequenceLength,
		batchSize:   settings.Training.BatchSize,
		store:       newMatrixStore(settings.Cache.Enabled, ttl),
		rng:         rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5e1d)), //nolint:gosec // shuffling only
	}

	if err := f.scan(); err != nil {
		return nil, err
	}

	GetLogger().Info("split loaded",
		logger.Any("folds", f.folds),
		logger.Int("files", len(f.files)),
		logger.Int("batch_size", f.batchSize),
		logger.Int("batches", f.nbBatches),
		logger.Int("label_frames", f.NbFrames()),
		logger.Bool("per_file", opts.PerFile),
		logger.Bool("shuffle", opts.Shuffle))

	return f, nil
}

func (f *Feed) scan() error {
	entries, err := os.ReadDir(f.featDir)
	if err != nil {
		return errors.DataError(fmt.Errorf("feed: list features: %w", err), f.featDir)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".npy") || len(name) <= foldDigitIndex {
			continue
		}
		fold := int(name[foldDigitIndex] - '0')
		if slices.Contains(f.folds, fold) {
			f.files = append(f.files, name)
		}
	}
	slices.Sort(f.files)

	if len(f.files) == 0 {
		return errors.New(fmt.Errorf("feed: no feature files for folds %v in %s", f.folds, f.featDir)).
			Category(errors.CategoryData).
			Context("folds", f.folds).
			Build()
	}

	maxFrames, totalSeqs := 0, 0
	for _, name := range f.files {
		shape, err := readShape(filepath.Join(f.featDir, name))
		if err != nil {
			return err
		}
		if len(shape) != 2 {
			return errors.DataError(fmt.Errorf("feed: %s: expected 2-D features, got %v", name, shape), name)
		}
		if f.featDim == 0 {
			f.featDim = shape[1]
		} else if shape[1] != f.featDim {
			return errors.DataError(fmt.Errorf("feed: %s: feature dim %d mismatch, expected %d", name, shape[1], f.featDim), name)
		}
		maxFrames = max(maxFrames, shape[0])
		totalSeqs += shape[0] / f.featSeqLen
	}

	if f.opts.PerFile {
		f.batchSize = (maxFrames + f.featSeqLen - 1) / f.featSeqLen
		f.nbBatches = len(f.files)
	} else {
		f.nbBatches = totalSeqs / f.batchSize
	}

	if f.nbBatches == 0 {
		return errors.New(fmt.Errorf("feed: %d sequences cannot fill one batch of %d", totalSeqs, f.batchSize)).
			Category(errors.CategoryData).
			Build()
	}
	return nil
}

// NbFrames returns the label frames covered by one pass, padding included.
func (f *Feed) NbFrames() int { return f.nbBatches * f.FramesPerFile() }

// FramesPerFile returns the label frames in one batch.
func (f *Feed) FramesPerFile() int { return f.batchSize * f.labelSeqLen }

// Filenames returns the sorted feature file names of the split.
func (f *Feed) Filenames() []string { return slices.Clone(f.files) }

// NbBatches returns the number of batches in one pass.
func (f *Feed) NbBatches() int { return f.nbBatches }

// DataSizes returns the input and target batch shapes.
func (f *Feed) DataSizes() (in, out tensor.Shape) {
	return tensor.Shape{f.batchSize, f.featSeqLen, f.featDim},
		tensor.Shape{f.batchSize, f.labelSeqLen, 3 * f.nbClasses}
}

// Batches returns a sequence covering the split once. Each call starts a new pass.
func (f *Feed) Batches() iter.Seq2[*Batch, error] {
	if f.opts.PerFile {
		return f.perFileBatches()
	}
	return f.continuousBatches()
}

func (f *Feed) perFileBatches() iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		for _, name := range f.files {
			feat, label, err := f.loadPair(name)
			if err != nil {
				yield(nil, err)
				return
			}

			b := f.newBatch()
			for s := range f.batchSize {
				f.fillSequence(b, s, feat, label, s)
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

func (f *Feed) continuousBatches() iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		order := slices.Clone(f.files)
		if f.opts.Shuffle {
			f.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		b, slot, emitted := f.newBatch(), 0, 0
		for _, name := range order {
			feat, label, err := f.loadPair(name)
			if err != nil {
				yield(nil, err)
				return
			}

			nbSeq := min(feat.RawMatrix().Rows/f.featSeqLen, label.RawMatrix().Rows/f.labelSeqLen)
			for s := range nbSeq {
				f.fillSequence(b, slot, feat, label, s)
				slot++
				if slot < f.batchSize {
					continue
				}
				if !yield(b, nil) {
					return
				}
				emitted++
				if emitted == f.nbBatches {
					return
				}
				b, slot = f.newBatch(), 0
			}
		}
	}
}

func (f *Feed) newBatch() *Batch {
	in, out := f.DataSizes()
	return &Batch{Input: tensor.New(in), Target: tensor.New(out)}
}

// fillSequence copies sequence seq of a file into batch slot. Frames past the
// end of the file stay zero.
func (f *Feed) fillSequence(b *Batch, slot int, feat, label *mat.Dense, seq int) {
	featRows := feat.RawMatrix().Rows
	for t := range f.featSeqLen {
		row := seq*f.featSeqLen + t
		if row >= featRows {
			break
		}
		copy(b.Input.Row(slot, t), feat.RawRowView(row))
	}

	labelRows := label.RawMatrix().Rows
	c := f.nbClasses
	for t := range f.labelSeqLen {
		row := seq*f.labelSeqLen + t
		if row >= labelRows {
			break
		}
		src := label.RawRowView(row)
		dst := b.Target.Row(slot, t)
		for k := range c {
			act := src[k]
			dst[k] = act * src[c+k]
			dst[c+k] = act * src[2*c+k]
			dst[2*c+k] = act * src[3*c+k]
		}
	}
}

func (f *Feed) loadPair(name string) (feat, label *mat.Dense, err error) {
	feat, err = f.store.load(filepath.Join(f.featDir, name))
	if err != nil {
		return nil, nil, err
	}
	if _, cols := feat.Dims(); cols != f.featDim {
		return nil, nil, errors.DataError(fmt.Errorf("feed: %s: feature dim %d mismatch, expected %d", name, cols, f.featDim), name)
	}

	labelPath := filepath.Join(f.labelDir, name)
	label, err = f.store.load(labelPath)
	if err != nil {
		return nil, nil, err
	}
	if _, cols := label.Dims(); cols != 4*f.nbClasses {
		return nil, nil, errors.DataError(
			fmt.Errorf("feed: %s: label width %d mismatch, expected %d for %d classes", name, cols, 4*f.nbClasses, f.nbClasses),
			labelPath)
	}
	return feat, label, nil
}
