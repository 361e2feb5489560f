package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio/npy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/seld-go/internal/conf"
	"github.com/tphakala/seld-go/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testClasses = 2

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	return &conf.Settings{
		Dataset: conf.DatasetSettings{
			DatasetDir:   "DCASE2021",
			FeatLabelDir: t.TempDir(),
			Dataset:      "foa",
			Mode:         "dev",
		},
		Features: conf.FeatureSettings{
			LabelSequenceLength:    2,
			FeatureLabelResolution: 2,
			FeatureSequenceLength:  4,
			UniqueClasses:          testClasses,
		},
		Training: conf.TrainingSettings{BatchSize: 2},
		Cache:    conf.CacheSettings{Enabled: true, TTL: "0"},
	}
}

func writeNpy(t *testing.T, path string, m *mat.Dense) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, npy.Write(f, m))
}

// writeRecording stores features whose every value is the frame index plus
// offset, and labels with class 0 active along x on every frame while
// class 1 carries a direction but is inactive.
func writeRecording(t *testing.T, s *conf.Settings, name string, featFrames, offset int) {
	t.Helper()

	const featDim = 3
	feat := mat.NewDense(featFrames, featDim, nil)
	for r := range featFrames {
		for c := range featDim {
			feat.Set(r, c, float64(offset+r))
		}
	}
	writeNpy(t, filepath.Join(s.FeatureDir(), name), feat)

	labelFrames := featFrames / s.Features.FeatureLabelResolution
	label := mat.NewDense(labelFrames, 4*testClasses, nil)
	for r := range labelFrames {
		label.Set(r, 0, 1)             // class 0 active
		label.Set(r, testClasses, 0.5) // class 0 x
		label.Set(r, testClasses+1, 1) // class 1 x, masked out
	}
	writeNpy(t, filepath.Join(s.LabelDir(), name), label)
}

func TestPerFileBatches(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	writeRecording(t, s, "fold1_room1_mix002.npy", 6, 100)
	writeRecording(t, s, "fold1_room1_mix001.npy", 8, 0)
	writeRecording(t, s, "fold2_room1_mix001.npy", 8, 0)

	f, err := New(s, []int{1}, Options{PerFile: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"fold1_room1_mix001.npy", "fold1_room1_mix002.npy"}, f.Filenames())
	assert.Equal(t, 2, f.NbBatches())
	assert.Equal(t, 4, f.FramesPerFile(), "two sequences of two label frames")
	assert.Equal(t, 8, f.NbFrames())

	in, out := f.DataSizes()
	assert.Equal(t, [3]int{2, 4, 3}, [3]int(in))
	assert.Equal(t, [3]int{2, 2, 3 * testClasses}, [3]int(out))

	var batches []*Batch
	for b, err := range f.Batches() {
		require.NoError(t, err)
		batches = append(batches, b)
	}
	require.Len(t, batches, 2)

	second := batches[1]
	assert.InDelta(t, 105.0, second.Input.At(1, 1, 0), 0, "last real frame of mix002")
	assert.InDelta(t, 0.0, second.Input.At(1, 2, 0), 0, "padding is zero")
	assert.InDelta(t, 0.0, second.Input.At(1, 3, 2), 0, "padding is zero")

	assert.InDelta(t, 0.5, second.Target.At(0, 0, 0), 0, "active class keeps x")
	assert.InDelta(t, 0.0, second.Target.At(0, 0, 1), 0, "inactive class is masked")
	assert.InDelta(t, 0.5, second.Target.At(1, 0, 0), 0, "third label frame of mix002")
	assert.InDelta(t, 0.0, second.Target.At(1, 1, 0), 0, "label padding is zero")
}

func TestContinuousBatchesAreRestartable(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	writeRecording(t, s, "fold1_room1_mix001.npy", 8, 0)
	writeRecording(t, s, "fold1_room1_mix002.npy", 6, 0)
	writeRecording(t, s, "fold2_room1_mix001.npy", 8, 0)

	f, err := New(s, []int{1, 2}, Options{})
	require.NoError(t, err)

	// 2 + 1 + 2 sequences fill two batches of two, the fifth is dropped
	require.Equal(t, 2, f.NbBatches())

	for pass := range 3 {
		count := 0
		for b, err := range f.Batches() {
			require.NoError(t, err)
			assert.Equal(t, [3]int{2, 4, 3}, [3]int(b.Input.Shape()))
			count++
		}
		assert.Equal(t, 2, count, "pass %d", pass)
	}

	assert.Equal(t, 6, f.store.len(), "feature and label matrices of three files are cached")
}

func TestShuffleIsSeeded(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	for i, name := range []string{"fold1_room1_mix001.npy", "fold1_room1_mix002.npy", "fold1_room1_mix003.npy", "fold1_room1_mix004.npy"} {
		writeRecording(t, s, name, 4, 10*i)
	}

	firstValues := func(seed uint64) []float64 {
		f, err := New(s, []int{1}, Options{Shuffle: true, Seed: seed})
		require.NoError(t, err)
		var got []float64
		for b, err := range f.Batches() {
			require.NoError(t, err)
			got = append(got, b.Input.At(0, 0, 0), b.Input.At(1, 0, 0))
		}
		return got
	}

	a, b := firstValues(11), firstValues(11)
	assert.Equal(t, a, b, "same seed gives the same order")
	assert.ElementsMatch(t, []float64{0, 10, 20, 30}, a, "every file is used once")
}

func TestBatchesStopEarly(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	writeRecording(t, s, "fold1_room1_mix001.npy", 8, 0)
	writeRecording(t, s, "fold1_room1_mix002.npy", 8, 0)

	f, err := New(s, []int{1}, Options{PerFile: true})
	require.NoError(t, err)

	count := 0
	for range f.Batches() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestNoFilesForFolds(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	writeRecording(t, s, "fold1_room1_mix001.npy", 8, 0)

	_, err := New(s, []int{5}, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryData))
}

func TestMissingFeatureDirectory(t *testing.T) {
	t.Parallel()

	_, err := New(testSettings(t), []int{1}, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryData))
}

func TestLabelWidthMismatch(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	writeRecording(t, s, "fold1_room1_mix001.npy", 8, 0)
	s.Features.UniqueClasses = 3

	f, err := New(s, []int{1}, Options{PerFile: true})
	require.NoError(t, err)

	for _, err := range f.Batches() {
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryData))
	}
}
