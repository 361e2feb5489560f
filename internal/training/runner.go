// Package training runs the per-split train, validate and test protocol of a
// SELD model.
//
// Each split trains a fresh model. After every epoch the validation
// detections are scored, and the checkpoint is rewritten whenever the
// composite SELD score is at least as good as the best so far. Once training
// stops, the checkpoint is restored and evaluated on the test folds.
package training

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/seld-go/internal/conf"
	"github.com/tphakala/seld-go/internal/datastore"
	"github.com/tphakala/seld-go/internal/feed"
	"github.com/tphakala/seld-go/internal/logger"
	"github.com/tphakala/seld-go/internal/model"
	"github.com/tphakala/seld-go/internal/observability"
	"github.com/tphakala/seld-go/internal/observability/metrics"
	"github.com/tphakala/seld-go/internal/output"
	"github.com/tphakala/seld-go/internal/report"
	"github.com/tphakala/seld-go/internal/scoring"
	"github.com/tphakala/seld-go/internal/tensor"
)

// Dataset is a split's batch provider as the runner needs it.
type Dataset interface {
	FileSource
	NbBatches() int
	DataSizes() (in, out tensor.Shape)
}

// Scorer turns a folder of detection files into SELD scores.
type Scorer interface {
	Score(folder string) (scoring.Scores, error)
}

// ModelFactory builds an untrained model for the given batch shapes.
type ModelFactory func(in, out tensor.Shape) (model.Model, error)

// DatasetFactory opens the files of folds.
type DatasetFactory func(folds []int, opts feed.Options) (Dataset, error)

// SplitSummary is the outcome of one split.
type SplitSummary struct {
	UniqueName string
	Split      conf.Split
	Best       BestState
	Epochs     []EpochResult
	TestLoss   float64
	Test       scoring.Scores
	Duration   time.Duration
}

// Runner executes the configured splits one after another.
type Runner struct {
	settings   *conf.Settings
	runID      string
	scorer     Scorer
	newModel   ModelFactory
	newDataset DatasetFactory
	metrics    *observability.Metrics
	store      datastore.Store
	now        func() time.Time
	log        logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithScorer replaces the folder scorer.
func WithScorer(s Scorer) Option { return func(r *Runner) { r.scorer = s } }

// WithModelFactory replaces the model constructor.
func WithModelFactory(f ModelFactory) Option { return func(r *Runner) { r.newModel = f } }

// WithDatasetFactory replaces the dataset constructor.
func WithDatasetFactory(f DatasetFactory) Option { return func(r *Runner) { r.newDataset = f } }

// WithMetrics records epoch values into m.
func WithMetrics(m *observability.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithStore persists split results into s.
func WithStore(s datastore.Store) Option { return func(r *Runner) { r.store = s } }

// WithClock replaces time.Now for folder timestamps.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithRunID sets the trace id attached to logs and stored results.
func WithRunID(id string) Option { return func(r *Runner) { r.runID = id } }

// NewRunner wires the default collaborators for settings.
func NewRunner(settings *conf.Settings, opts ...Option) *Runner {
	r := &Runner{
		settings: settings,
		runID:    uuid.NewString(),
		scorer:   scoring.New(settings),
		newModel: func(in, out tensor.Shape) (model.Model, error) {
			return model.NewFrameMLP(model.Config{
				In:      in,
				Out:     out,
				Hidden:  settings.Model.FnnSize,
				Dropout: settings.Model.DropoutRate,
				Seed:    settings.Model.Seed,
			})
		},
		newDataset: func(folds []int, opts feed.Options) (Dataset, error) {
			f, err := feed.New(settings, folds, opts)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = GetLogger().WithContext(logger.WithTraceID(context.Background(), r.runID))
	return r
}

// RunID returns the trace id of this runner.
func (r *Runner) RunID() string { return r.runID }

// Run trains and tests every split of the configured dataset version.
// An unknown version fails before any data is read.
func (r *Runner) Run(ctx context.Context) ([]SplitSummary, error) {
	splits, err := r.settings.Splits()
	if err != nil {
		return nil, err
	}

	summaries := make([]SplitSummary, 0, len(splits))
	for _, split := range splits {
		summary, err := r.RunSplit(ctx, split)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

// RunSplit trains a fresh model on split, keeps the best validation
// checkpoint and scores it on the test folds.
func (r *Runner) RunSplit(ctx context.Context, split conf.Split) (*SplitSummary, error) {
	start := time.Now()
	s := r.settings
	name := s.UniqueName(split.Test)
	log := r.log.With(logger.String("split", name))

	log.Info("split setup",
		logger.Any("train_folds", split.Train),
		logger.Int("val_fold", split.Val),
		logger.Int("test_fold", split.Test))

	trainData, err := r.newDataset(split.Train, feed.Options{Shuffle: s.Training.Shuffle, Seed: s.Model.Seed})
	if err != nil {
		return nil, err
	}
	valData, err := r.newDataset([]int{split.Val}, feed.Options{PerFile: true})
	if err != nil {
		return nil, err
	}

	in, out := trainData.DataSizes()
	m, err := r.newModel(in, out)
	if err != nil {
		return nil, err
	}
	opt := model.NewAdam(m.Params(), s.Training.LR)
	loss := model.MSE{}

	log.Info("model ready",
		logger.String("input_shape", in.String()),
		logger.String("output_shape", out.String()),
		logger.Int("train_batches", trainData.NbBatches()),
		logger.Int("val_files", len(valData.Filenames())),
		logger.Int("params", model.NumParams(m)))

	valDir := s.ValOutputDir(r.now())
	testDir := s.TestOutputDir()
	for _, dir := range []string{valDir, testDir} {
		if err := output.DeleteAndCreateFolder(dir); err != nil {
			return nil, err
		}
	}
	log.Info("output folders ready", logger.String("val", valDir), logger.String("test", testDir))

	if s.Output.ParamsSnapshot {
		if err := conf.SaveYAMLConfig(s.ParamsSnapshotPath(split.Test), s); err != nil {
			return nil, err
		}
	}

	summary := &SplitSummary{UniqueName: name, Split: split, Best: NewBestState()}
	checkpoint := s.CheckpointPath(split.Test)
	epochOpts := EpochOptions{QuickTest: s.Main.QuickTest, DetectAnomaly: s.Main.DetectAnomaly}
	patience := NewPatience(s.Training.Patience)
	r.recordBest(name, summary.Best)

	for epoch := range s.NbEpochs() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		trainStart := time.Now()
		trainPass, err := TrainEpoch(trainData, m, opt, loss, epochOpts)
		if err != nil {
			return summary, err
		}
		trainTime := time.Since(trainStart)

		valStart := time.Now()
		valPass, err := EvaluateEpoch(valData, m, loss, s.Features.UniqueClasses, valDir, s.Main.QuickTest)
		if err != nil {
			return summary, err
		}
		scores, err := r.scorer.Score(valDir)
		if err != nil {
			return summary, err
		}
		valTime := time.Since(valStart)

		var improved bool
		summary.Best, improved = summary.Best.Advance(epoch, scores)
		if improved {
			err := Persist(checkpoint, m)
			r.recordCheckpoint(name, err)
			if err != nil {
				return summary, err
			}
		}

		result := EpochResult{
			Epoch:     epoch,
			TrainLoss: trainPass.Loss,
			ValLoss:   valPass.Loss,
			Val:       scores,
			Improved:  improved,
			TrainTime: trainTime,
			ValTime:   valTime,
		}
		summary.Epochs = append(summary.Epochs, result)
		r.recordEpoch(name, result, trainPass, valPass, summary.Best)

		log.Info("epoch finished",
			logger.Int("epoch", epoch),
			logger.Duration("train_time", trainTime),
			logger.Duration("val_time", valTime),
			logger.Float64("train_loss", trainPass.Loss),
			logger.Float64("val_loss", valPass.Loss),
			logger.String("val_scores", scores.String()),
			logger.Int("best_val_epoch", summary.Best.Epoch),
			logger.String("best_scores", summary.Best.Scores.String()))

		if patience.Tick() {
			log.Info("early stop", logger.Int("patience", patience.Count()))
			break
		}
	}

	if err := r.testSplit(split, m, loss, testDir, summary); err != nil {
		return summary, err
	}

	// the curves are a report; a rendering failure does not fail the split
	if err := r.writeCurves(split.Test, summary); err != nil {
		log.Warn("training curves not written", logger.Error(err))
	}
	summary.Duration = time.Since(start)

	log.Info("split finished",
		logger.Float64("test_loss", summary.TestLoss),
		logger.String("test_scores", summary.Test.String()),
		logger.Int("best_val_epoch", summary.Best.Epoch),
		logger.Duration("elapsed", summary.Duration))

	if err := r.persistResults(ctx, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// testSplit restores the checkpoint and scores it on the test folds.
func (r *Runner) testSplit(split conf.Split, m model.Model, loss model.Loss, testDir string, summary *SplitSummary) error {
	s := r.settings
	if summary.Best.Epoch < 0 {
		return stateError("split %s: no epoch produced a checkpoint", summary.UniqueName)
	}

	r.log.Info("loading best model weights", logger.Int("epoch", summary.Best.Epoch))
	if err := model.Load(s.CheckpointPath(split.Test), m); err != nil {
		return err
	}

	testData, err := r.newDataset([]int{split.Test}, feed.Options{PerFile: true})
	if err != nil {
		return err
	}

	testStart := time.Now()
	testPass, err := EvaluateEpoch(testData, m, loss, s.Features.UniqueClasses, testDir, s.Main.QuickTest)
	if err != nil {
		return err
	}
	scores, err := r.scorer.Score(testDir)
	if err != nil {
		return err
	}

	summary.TestLoss = testPass.Loss
	summary.Test = scores

	if r.metrics != nil {
		r.metrics.Training.RecordPhase(metrics.PhaseTest, time.Since(testStart), testPass.Batches)
		r.metrics.Training.RecordLoss(summary.UniqueName, metrics.PhaseTest, testPass.Loss)
		r.metrics.Training.RecordScore(summary.UniqueName, metrics.PhaseTest, toMetricScore(scores))
	}
	return nil
}

func (r *Runner) writeCurves(split int, summary *SplitSummary) error {
	if !r.settings.Output.Curves || len(summary.Epochs) == 0 {
		return nil
	}
	points := make([]report.Epoch, len(summary.Epochs))
	for i, e := range summary.Epochs {
		points[i] = report.Epoch{Index: e.Epoch, TrainLoss: e.TrainLoss, ValLoss: e.ValLoss, ValSELD: e.Val.SELD}
	}
	return report.WriteCurves(r.settings.CurvesPath(split), summary.UniqueName, points, summary.Best.Epoch)
}

func (r *Runner) persistResults(ctx context.Context, summary *SplitSummary) error {
	if r.metrics != nil && r.settings.Output.Metrics {
		if err := r.metrics.WriteTextfile(r.settings.MetricsPath(summary.Split.Test)); err != nil {
			return err
		}
	}
	if r.store == nil {
		return nil
	}
	return r.store.SaveSplitResult(ctx, r.splitRecord(summary))
}

func (r *Runner) splitRecord(summary *SplitSummary) *datastore.SplitResult {
	s := r.settings
	rec := &datastore.SplitResult{
		RunID:      r.runID,
		UniqueName: summary.UniqueName,
		TaskID:     s.TaskID,
		JobID:      s.JobID,
		Dataset:    s.Dataset.Dataset,
		Mode:       s.Dataset.Mode,
		TestFold:   summary.Split.Test,
		BestEpoch:  summary.Best.Epoch,
		Epochs:     len(summary.Epochs),
		ValER:      summary.Best.Scores.ER,
		ValF:       summary.Best.Scores.F,
		ValLE:      summary.Best.Scores.LE,
		ValLR:      summary.Best.Scores.LR,
		ValSELD:    summary.Best.Scores.SELD,
		TestLoss:   summary.TestLoss,
		TestER:     summary.Test.ER,
		TestF:      summary.Test.F,
		TestLE:     summary.Test.LE,
		TestLR:     summary.Test.LR,
		TestSELD:   summary.Test.SELD,
		Duration:   summary.Duration,
	}
	for _, e := range summary.Epochs {
		rec.EpochRecords = append(rec.EpochRecords, datastore.EpochRecord{
			Epoch:     e.Epoch,
			TrainLoss: e.TrainLoss,
			ValLoss:   e.ValLoss,
			ER:        e.Val.ER,
			F:         e.Val.F,
			LE:        e.Val.LE,
			LR:        e.Val.LR,
			SELD:      e.Val.SELD,
			Improved:  e.Improved,
			TrainTime: e.TrainTime,
			ValTime:   e.ValTime,
		})
	}
	return rec
}

func (r *Runner) recordEpoch(name string, res EpochResult, train, val Pass, best BestState) {
	if r.metrics == nil {
		return
	}
	tm := r.metrics.Training
	tm.RecordPhase(metrics.PhaseTrain, res.TrainTime, train.Batches)
	tm.RecordPhase(metrics.PhaseVal, res.ValTime, val.Batches)
	tm.RecordLoss(name, metrics.PhaseTrain, res.TrainLoss)
	tm.RecordLoss(name, metrics.PhaseVal, res.ValLoss)
	tm.RecordScore(name, metrics.PhaseVal, toMetricScore(res.Val))
	tm.RecordEpoch(name)
	r.recordBest(name, best)
}

func (r *Runner) recordBest(name string, best BestState) {
	if r.metrics != nil {
		r.metrics.Training.RecordBest(name, best.Epoch, best.Scores.SELD)
	}
}

func (r *Runner) recordCheckpoint(name string, err error) {
	if r.metrics != nil {
		r.metrics.Training.RecordCheckpointSave(name, err)
	}
	if err != nil {
		r.log.Error("checkpoint save failed", logger.String("split", name), logger.Error(err))
	}
}

func toMetricScore(s scoring.Scores) metrics.Score {
	return metrics.Score{ER: s.ER, F: s.F, LE: s.LE, LR: s.LR, SELD: s.SELD}
}
