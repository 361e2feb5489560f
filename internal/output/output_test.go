package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/seld-go/internal/errors"
)

func TestDetectionsRoundTrip(t *testing.T) {
	t.Parallel()

	frames := Frames{
		12: {{Class: 3, X: 0.1, Y: -0.25, Z: 0.7}, {Class: 0, X: 1, Y: 0, Z: 0}},
		4:  {{Class: 11, X: -0.333333333333, Y: 0.5, Z: 1e-9}},
	}

	path := filepath.Join(t.TempDir(), "fold6_room1_mix001.csv")
	require.NoError(t, WriteDetections(path, frames))

	got, err := ReadDetections(path)
	require.NoError(t, err)
	assert.Equal(t, frames, got, "order within a frame must be preserved")

	content, err := os.ReadFile(path) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	assert.Equal(t,
		"4,11,-0.333333333333,0.5,0.000000001\n12,3,0.1,-0.25,0.7\n12,0,1,0,0\n",
		string(content), "frames are written in ascending order")
}

func TestWriteEmptyMapping(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "silent.csv")
	require.NoError(t, WriteDetections(path, Frames{}))

	got, err := ReadDetections(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadReferenceConvertsPolar(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fold6_room1_mix001.csv")
	require.NoError(t, os.WriteFile(path, []byte("0,1,0,90,0\n0,2,1,0,90\n7,5,0,180,0\n"), 0o600))

	got, err := ReadReference(path)
	require.NoError(t, err)
	require.Len(t, got[0], 2)

	assert.Equal(t, 1, got[0][0].Class)
	assert.Equal(t, 0, got[0][0].Track)
	assert.Equal(t, 1, got[0][1].Track)
	assert.InDelta(t, 0.0, got[0][0].X, 1e-12)
	assert.InDelta(t, 1.0, got[0][0].Y, 1e-12)
	assert.InDelta(t, 1.0, got[0][1].Z, 1e-12)
	assert.InDelta(t, -1.0, got[7][0].X, 1e-12)
}

func TestReadRejectsMalformedRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"wrong field count", "0,1,0.5\n"},
		{"non numeric frame", "a,1,0,0,1\n"},
		{"negative class", "0,-1,0,0,1\n"},
		{"bad coordinate", "0,1,x,0,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "bad.csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := ReadDetections(path)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryData))
		})
	}
}

func TestDeleteAndCreateFolder(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "val")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.csv"), []byte("0,0,1,0,0\n"), 0o600))

	require.NoError(t, DeleteAndCreateFolder(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReplaceExt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fold6_room1_mix001.csv", ReplaceExt("fold6_room1_mix001.npy", ".csv"))
	assert.Equal(t, "mix.csv", ReplaceExt("/feat/foa_dev_norm/mix.npy", ".csv"))
	assert.Equal(t, "noext.csv", ReplaceExt("noext", ".csv"))
}
