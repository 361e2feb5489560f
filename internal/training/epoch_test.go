package training

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/seld-go/internal/errors"
	"github.com/tphakala/seld-go/internal/output"
	"github.com/tphakala/seld-go/internal/tensor"
)

func TestTrainEpochMeanLoss(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		losses      []float64
		quickTest   bool
		wantLoss    float64
		wantBatches int
	}{
		{"all batches", []float64{1, 2, 6}, false, 3, 3},
		{"quick test stops after four", []float64{1, 2, 3, 6, 100, 100}, true, 3, 4},
		{"quick test with fewer batches", []float64{2, 4}, true, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := newFakeDataset(nil, len(tt.losses))
			m := &stubModel{out: tensor.New(testOut)}
			opt := &countingOptimizer{}
			loss := &scriptedLoss{values: tt.losses}

			pass, err := TrainEpoch(data, m, opt, loss, EpochOptions{QuickTest: tt.quickTest})
			require.NoError(t, err)
			assert.InDelta(t, tt.wantLoss, pass.Loss, 1e-12)
			assert.Equal(t, tt.wantBatches, pass.Batches)
			assert.Equal(t, tt.wantBatches, opt.steps)
			assert.Equal(t, tt.wantBatches, opt.zero)
			assert.Equal(t, []bool{true}, m.training)
		})
	}
}

func TestTrainEpochErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty split", func(t *testing.T) {
		t.Parallel()
		_, err := TrainEpoch(newFakeDataset(nil, 0), &stubModel{}, &countingOptimizer{}, &scriptedLoss{values: []float64{1}}, EpochOptions{})
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryState))
	})

	t.Run("data error propagates", func(t *testing.T) {
		t.Parallel()
		data := newFakeDataset(nil, 1)
		data.err = errors.DataError(errors.NewStd("corrupt label file"), "fold1_room1_mix001.npy")
		_, err := TrainEpoch(data, &stubModel{out: tensor.New(testOut)}, &countingOptimizer{}, &scriptedLoss{values: []float64{1}}, EpochOptions{})
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryData))
	})

	t.Run("non-finite loss with anomaly detection", func(t *testing.T) {
		t.Parallel()
		opt := &countingOptimizer{}
		_, err := TrainEpoch(newFakeDataset(nil, 2), &stubModel{out: tensor.New(testOut)}, opt,
			&scriptedLoss{values: []float64{math.NaN()}}, EpochOptions{DetectAnomaly: true})
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryNumerical))
		assert.Zero(t, opt.steps, "no update after an anomaly")

		var ee *errors.EnhancedError
		require.ErrorAs(t, err, &ee)
		ctx := ee.GetContext()
		assert.Equal(t, 0, ctx["batch"])
		assert.Equal(t, "train_pass", ctx["operation"])
		assert.Contains(t, ctx, "duration_ms")
	})

	t.Run("non-finite loss without anomaly detection", func(t *testing.T) {
		t.Parallel()
		pass, err := TrainEpoch(newFakeDataset(nil, 2), &stubModel{out: tensor.New(testOut)}, &countingOptimizer{},
			&scriptedLoss{values: []float64{math.Inf(1)}}, EpochOptions{})
		require.NoError(t, err)
		assert.True(t, math.IsInf(pass.Loss, 1))
	})
}

// activityOutput builds a (1, 3, 3*2) output: frame 0 has class 0 active,
// frame 1 has nothing active, frame 2 has both classes active.
func activityOutput(t *testing.T) *tensor.Tensor {
	t.Helper()
	// layout per frame: x0 x1 y0 y1 z0 z1
	out, err := tensor.FromSlice(tensor.Shape{1, 3, 6}, []float64{
		0.6, 0.0, 0.0, 0.0, 0.0, 0.0,
		0.1, 0.2, 0.1, 0.2, 0.1, 0.2,
		0.3, 0.0, 0.3, 0.8, 0.3, 0.0,
	})
	require.NoError(t, err)
	return out
}

func TestEvaluateEpochWritesOneFilePerSource(t *testing.T) {
	t.Parallel()

	folder := t.TempDir()
	files := []string{"fold5_room1_mix001.npy", "fold5_room1_mix002.npy", "fold5_room2_mix001.npy"}
	data := newFakeDataset(files, len(files))
	m := &stubModel{out: activityOutput(t)}

	pass, err := EvaluateEpoch(data, m, &scriptedLoss{values: []float64{0.5, 1, 1.5}}, testClasses, folder, false)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pass.Loss, 1e-12)
	assert.Equal(t, 3, pass.Batches)
	assert.Equal(t, []bool{false}, m.training)

	entries, err := os.ReadDir(folder)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, name := range files {
		frames, err := output.ReadDetections(filepath.Join(folder, output.ReplaceExt(name, ".csv")))
		require.NoError(t, err)

		assert.Equal(t, []int{0, 2}, frames.SortedFrames(), "frame 1 has no active class")
		assert.Equal(t, []output.Detection{{Class: 0, X: 0.6}}, frames[0])
		assert.Equal(t, []output.Detection{
			{Class: 0, X: 0.3, Y: 0.3, Z: 0.3},
			{Class: 1, Y: 0.8},
		}, frames[2])
	}
}

func TestEvaluateEpochFileAttribution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		files     int
		batches   int
		quickTest bool
		wantFiles int
		wantErr   bool
	}{
		{"fewer batches than files", 3, 2, false, 0, true},
		{"more batches than files", 2, 3, false, 0, true},
		{"quick test truncates", 6, 6, true, 4, false},
		{"quick test with fewer files", 3, 3, true, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var files []string
			for i := range tt.files {
				files = append(files, filepath.Join("feat", "fold5_room1_mix00"+string(rune('1'+i))+".npy"))
			}
			folder := t.TempDir()
			data := newFakeDataset(files, tt.batches)

			_, err := EvaluateEpoch(data, &stubModel{out: activityOutput(t)}, &scriptedLoss{values: []float64{1}}, testClasses, folder, tt.quickTest)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryState))
				return
			}
			require.NoError(t, err)

			entries, err := os.ReadDir(folder)
			require.NoError(t, err)
			assert.Len(t, entries, tt.wantFiles)
		})
	}
}

func TestEvaluateEpochRejectsWrongWidth(t *testing.T) {
	t.Parallel()

	data := newFakeDataset([]string{"fold5_room1_mix001.npy"}, 1)
	_, err := EvaluateEpoch(data, &stubModel{out: tensor.New(tensor.Shape{1, 2, 5})}, &scriptedLoss{values: []float64{1}}, testClasses, t.TempDir(), false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModel))

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "evaluate_pass", ee.GetContext()["operation"])
}
