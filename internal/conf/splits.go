package conf

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tphakala/seld-go/internal/errors"
)

// Dataset versions recognized in dataset_dir.
const (
	Version2020 = "2020"
	Version2021 = "2021"
)

var uniqueClasses = map[string]int{
	Version2020: 14,
	Version2021: 12,
}

// Split binds the fold indices of one train/validate/test cycle.
type Split struct {
	Test  int
	Val   int
	Train []int
}

// DatasetVersion reports the DCASE edition named in dataset_dir.
func (s *Settings) DatasetVersion() (string, error) {
	switch dir := s.Dataset.DatasetDir; {
	case strings.Contains(dir, Version2020):
		return Version2020, nil
	case strings.Contains(dir, Version2021):
		return Version2021, nil
	default:
		return "", errors.ConfigurationError(fmt.Errorf("unknown dataset splits: dataset_dir %q names neither %s nor %s",
			dir, Version2020, Version2021))
	}
}

// Splits returns the fold assignment for the configured dataset version.
// Only the development set carries splits.
func (s *Settings) Splits() ([]Split, error) {
	if s.Dataset.Mode != "dev" {
		return nil, errors.ConfigurationError(fmt.Errorf("no splits defined for mode %q", s.Dataset.Mode))
	}

	version, err := s.DatasetVersion()
	if err != nil {
		return nil, err
	}

	switch version {
	case Version2020:
		return []Split{{Test: 1, Val: 2, Train: []int{3, 4, 5, 6}}}, nil
	default:
		return []Split{{Test: 6, Val: 5, Train: []int{1, 2, 3, 4}}}, nil
	}
}

// UniqueName identifies the run of one split.
func (s *Settings) UniqueName(split int) string {
	return fmt.Sprintf("%s_%s_%s_%s_split%d", s.TaskID, s.JobID, s.Dataset.Dataset, s.Dataset.Mode, split)
}

// CheckpointPath is the single parameter file kept for a split.
func (s *Settings) CheckpointPath(split int) string {
	return filepath.Join(s.Output.ModelDir, s.UniqueName(split)+"_model.ckpt")
}

// ParamsSnapshotPath stores the effective settings of a split.
func (s *Settings) ParamsSnapshotPath(split int) string {
	return filepath.Join(s.Output.ModelDir, s.UniqueName(split)+"_params.yaml")
}

// CurvesPath stores the training curve chart of a split.
func (s *Settings) CurvesPath(split int) string {
	return filepath.Join(s.Output.ModelDir, s.UniqueName(split)+"_curves.png")
}

// MetricsPath stores the Prometheus text snapshot of a split.
func (s *Settings) MetricsPath(split int) string {
	return filepath.Join(s.Output.DcaseOutputDir, s.UniqueName(split)+".prom")
}

// ValOutputDir is the timestamped validation detection folder.
func (s *Settings) ValOutputDir(now time.Time) string {
	name := fmt.Sprintf("%s_%s_%s_%s_val", s.TaskID, s.Dataset.Dataset, s.Dataset.Mode, now.UTC().Format("20060102150405"))
	return filepath.Join(s.Output.DcaseOutputDir, name)
}

// TestOutputDir is the test detection folder, fixed per task, dataset and mode.
func (s *Settings) TestOutputDir() string {
	name := fmt.Sprintf("%s_%s_%s_test", s.TaskID, s.Dataset.Dataset, s.Dataset.Mode)
	return filepath.Join(s.Output.DcaseOutputDir, name)
}

// FeatureDir holds the normalized feature matrices.
func (s *Settings) FeatureDir() string {
	return filepath.Join(s.Dataset.FeatLabelDir, fmt.Sprintf("%s_%s_norm", s.Dataset.Dataset, s.Dataset.Mode))
}

// LabelDir holds the label matrices.
func (s *Settings) LabelDir() string {
	return filepath.Join(s.Dataset.FeatLabelDir, fmt.Sprintf("%s_%s_label", s.Dataset.Dataset, s.Dataset.Mode))
}

// MetadataDir holds the reference metadata the scorer compares against.
func (s *Settings) MetadataDir() string {
	return filepath.Join(s.Dataset.DatasetDir, "metadata_"+s.Dataset.Mode)
}

// NbEpochs caps the epoch count, two in quick-test mode.
func (s *Settings) NbEpochs() int {
	if s.Main.QuickTest {
		return 2
	}
	return s.Training.NbEpochs
}
