package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/seld-go/internal/errors"
	"github.com/tphakala/seld-go/internal/output"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newFixture(t *testing.T) (refDir, predDir string) {
	t.Helper()
	root := t.TempDir()
	return filepath.Join(root, "metadata_dev"), filepath.Join(root, "val")
}

func TestPerfectPrediction(t *testing.T) {
	t.Parallel()

	refDir, predDir := newFixture(t)
	writeFile(t, filepath.Join(refDir, "fold5_room1_mix001.csv"),
		"0,1,0,0,0\n1,1,0,0,0\n12,3,0,90,0\n")
	writeFile(t, filepath.Join(predDir, "fold5_room1_mix001.csv"),
		"0,1,0.9,0,0\n1,1,1,0,0\n12,3,0,0.7,0\n")

	scores, err := NewScorer(refDir, 10, 20).Score(predDir)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, scores.ER, 1e-9)
	assert.InDelta(t, 1.0, scores.F, 1e-9)
	assert.InDelta(t, 0.0, scores.LE, 1e-5)
	assert.InDelta(t, 1.0, scores.LR, 1e-9)
	assert.InDelta(t, 0.0, scores.SELD, 1e-6)
}

func TestScoreCounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  string
		pred string
		want Scores
	}{
		{
			name: "missed event",
			ref:  "0,0,0,0,0\n",
			pred: "",
			want: Scores{ER: 1, F: 0, LE: 180, LR: 0, SELD: 1},
		},
		{
			name: "wrong direction beyond threshold",
			ref:  "0,0,0,0,0\n",
			pred: "0,0,0,1,0\n",
			// matched for localization (90 degrees) but counted as an insertion
			want: Scores{ER: 1, F: 0, LE: 90, LR: 1, SELD: (1 + 1 + 0.5 + 0) / 4},
		},
		{
			name: "substitution by another class",
			ref:  "0,0,0,0,0\n",
			pred: "0,1,1,0,0\n",
			want: Scores{ER: 1, F: 0, LE: 180, LR: 0, SELD: 1},
		},
		{
			name: "one hit one false alarm",
			ref:  "0,0,0,0,0\n",
			pred: "0,0,1,0,0\n0,2,1,0,0\n",
			want: Scores{ER: 1, F: 2.0 / 3, LE: 0, LR: 1, SELD: (1 + 1.0/3 + 0 + 0) / 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			refDir, predDir := newFixture(t)
			writeFile(t, filepath.Join(refDir, "fold6_room1_mix001.csv"), tt.ref)
			writeFile(t, filepath.Join(predDir, "fold6_room1_mix001.csv"), tt.pred)

			got, err := NewScorer(refDir, 10, 20).Score(predDir)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.ER, got.ER, 1e-9, "ER")
			assert.InDelta(t, tt.want.F, got.F, 1e-9, "F")
			assert.InDelta(t, tt.want.LE, got.LE, 1e-6, "LE")
			assert.InDelta(t, tt.want.LR, got.LR, 1e-9, "LR")
			assert.InDelta(t, tt.want.SELD, got.SELD, 1e-6, "SELD")
		})
	}
}

func TestBlocksAverageDirections(t *testing.T) {
	t.Parallel()

	refDir, predDir := newFixture(t)
	// reference points along x for the whole block
	writeFile(t, filepath.Join(refDir, "fold6_room1_mix001.csv"), "0,0,0,0,0\n9,0,0,0,0\n")
	// predictions at +30 and -30 degrees average back to x
	v := output.PolarToCartesian(30, 0)
	pred := output.Frames{
		2: {{Class: 0, X: v.X, Y: v.Y}},
		7: {{Class: 0, X: v.X, Y: -v.Y}},
	}
	require.NoError(t, os.MkdirAll(predDir, 0o755))
	require.NoError(t, output.WriteDetections(filepath.Join(predDir, "fold6_room1_mix001.csv"), pred))

	got, err := NewScorer(refDir, 10, 20).Score(predDir)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got.F, 1e-9)
	assert.InDelta(t, 0.0, got.LE, 1e-6)
}

func TestOverlappingSourcesOfOneClass(t *testing.T) {
	t.Parallel()

	// class 0 sounds from azimuth 0 (track 0) and 90 (track 1) at once
	ref := "0,0,0,0,0\n0,0,1,90,0\n1,0,0,0,0\n1,0,1,90,0\n"

	tests := []struct {
		name string
		pred string
		want Scores
	}{
		{
			name: "both sources in swapped order",
			pred: "0,0,0,1,0\n0,0,1,0,0\n1,0,0,1,0\n1,0,1,0,0\n",
			want: Scores{ER: 0, F: 1, LE: 0, LR: 1, SELD: 0},
		},
		{
			name: "one source found",
			pred: "0,0,1,0,0\n1,0,1,0,0\n",
			want: Scores{ER: 0.5, F: 2.0 / 3, LE: 0, LR: 0.5, SELD: (0.5 + 1.0/3 + 0 + 0.5) / 4},
		},
		{
			name: "extra source",
			pred: "0,0,0,1,0\n0,0,1,0,0\n0,0,0,0,1\n",
			want: Scores{ER: 0.5, F: 0.8, LE: 0, LR: 1, SELD: (0.5 + 0.2 + 0 + 0) / 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			refDir, predDir := newFixture(t)
			writeFile(t, filepath.Join(refDir, "fold6_room1_mix001.csv"), ref)
			writeFile(t, filepath.Join(predDir, "fold6_room1_mix001.csv"), tt.pred)

			got, err := NewScorer(refDir, 10, 20).Score(predDir)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.ER, got.ER, 1e-9, "ER")
			assert.InDelta(t, tt.want.F, got.F, 1e-9, "F")
			assert.InDelta(t, tt.want.LE, got.LE, 1e-5, "LE")
			assert.InDelta(t, tt.want.LR, got.LR, 1e-9, "LR")
			assert.InDelta(t, tt.want.SELD, got.SELD, 1e-6, "SELD")
		})
	}
}

func TestScoreIsIndependentPerCall(t *testing.T) {
	t.Parallel()

	refDir, predDir := newFixture(t)
	writeFile(t, filepath.Join(refDir, "fold6_room1_mix001.csv"), "0,0,0,0,0\n")
	writeFile(t, filepath.Join(predDir, "fold6_room1_mix001.csv"), "0,0,1,0,0\n0,3,1,0,0\n")

	s := NewScorer(refDir, 10, 20)
	first, err := s.Score(predDir)
	require.NoError(t, err)
	second, err := s.Score(predDir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScoreErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing reference", func(t *testing.T) {
		t.Parallel()
		refDir, predDir := newFixture(t)
		require.NoError(t, os.MkdirAll(refDir, 0o755))
		writeFile(t, filepath.Join(predDir, "fold6_room1_mix009.csv"), "0,0,1,0,0\n")

		_, err := NewScorer(refDir, 10, 20).Score(predDir)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryData))
	})

	t.Run("empty folder", func(t *testing.T) {
		t.Parallel()
		refDir, predDir := newFixture(t)
		require.NoError(t, os.MkdirAll(predDir, 0o755))

		_, err := NewScorer(refDir, 10, 20).Score(predDir)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryScoring))
	})

	t.Run("missing folder", func(t *testing.T) {
		t.Parallel()
		refDir, predDir := newFixture(t)

		_, err := NewScorer(refDir, 10, 20).Score(predDir)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryScoring))
	})
}

func TestScoresString(t *testing.T) {
	t.Parallel()
	s := Scores{ER: 0.5, F: 0.25, LE: 30, LR: 0.75, SELD: 0.4}
	assert.Equal(t, "0.50/0.25/30.00/0.75/0.40", s.String())
}
