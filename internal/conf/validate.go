// conf/validate.go

package conf

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateDatasetSettings(&settings.Dataset); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateFeatureSettings(&settings.Features); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateModelSettings(&settings.Model); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateTrainingSettings(&settings.Training); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateScoringSettings(&settings.Scoring); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateOutputSettings(&settings.Output); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateCacheSettings(&settings.Cache); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDatasetSettings(settings *DatasetSettings) error {
	var problems []string
	if settings.FeatLabelDir == "" {
		problems = append(problems, "dataset.feat_label_dir must be set")
	}
	if !slices.Contains([]string{"foa", "mic"}, settings.Dataset) {
		problems = append(problems, fmt.Sprintf("dataset.dataset must be foa or mic, got %q", settings.Dataset))
	}
	if !slices.Contains([]string{"dev", "eval"}, settings.Mode) {
		problems = append(problems, fmt.Sprintf("dataset.mode must be dev or eval, got %q", settings.Mode))
	}
	return joinProblems(problems)
}

func validateFeatureSettings(settings *FeatureSettings) error {
	var problems []string
	if settings.HopLenS <= 0 || settings.LabelHopLenS <= 0 {
		problems = append(problems, "features.hop_len_s and features.label_hop_len_s must be positive")
	}
	if settings.NbMelBins <= 0 {
		problems = append(problems, "features.nb_mel_bins must be positive")
	}
	if settings.LabelSequenceLength <= 0 {
		problems = append(problems, "features.label_sequence_length must be positive")
	}
	if settings.FeatureLabelResolution <= 0 {
		problems = append(problems, "features.feature_label_resolution must be positive")
	}
	if settings.UniqueClasses <= 0 {
		problems = append(problems, "features.unique_classes must be positive")
	}
	return joinProblems(problems)
}

func validateModelSettings(settings *ModelSettings) error {
	var problems []string
	if settings.DropoutRate < 0 || settings.DropoutRate >= 1 {
		problems = append(problems, fmt.Sprintf("model.dropout_rate must be in [0, 1), got %g", settings.DropoutRate))
	}
	if settings.FnnSize <= 0 {
		problems = append(problems, "model.fnn_size must be positive")
	}
	return joinProblems(problems)
}

func validateTrainingSettings(settings *TrainingSettings) error {
	var problems []string
	if settings.BatchSize <= 0 {
		problems = append(problems, "training.batch_size must be positive")
	}
	if settings.LR <= 0 {
		problems = append(problems, "training.lr must be positive")
	}
	if settings.NbEpochs <= 0 {
		problems = append(problems, "training.nb_epochs must be positive")
	}
	if settings.Patience < 0 {
		problems = append(problems, "training.patience must not be negative")
	}
	return joinProblems(problems)
}

func validateScoringSettings(settings *ScoringSettings) error {
	var problems []string
	if settings.LadDoaThresh <= 0 || settings.LadDoaThresh > 180 {
		problems = append(problems, fmt.Sprintf("scoring.lad_doa_thresh must be in (0, 180], got %g", settings.LadDoaThresh))
	}
	if settings.LabelFramesPerBlock <= 0 {
		problems = append(problems, "scoring.label_frames_per_block must be positive")
	}
	return joinProblems(problems)
}

func validateOutputSettings(settings *OutputSettings) error {
	var problems []string
	if settings.ModelDir == "" {
		problems = append(problems, "output.model_dir must be set")
	}
	if settings.DcaseOutputDir == "" {
		problems = append(problems, "output.dcase_output_dir must be set")
	}
	if settings.SQLite.Enabled && settings.SQLite.Path == "" {
		problems = append(problems, "output.sqlite.path must be set when sqlite is enabled")
	}
	return joinProblems(problems)
}

func validateCacheSettings(settings *CacheSettings) error {
	if _, err := settings.Expiration(); err != nil {
		return fmt.Errorf("cache.ttl: %w", err)
	}
	return nil
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}

// Expiration parses the cache TTL. Zero means entries never expire.
func (c *CacheSettings) Expiration() (time.Duration, error) {
	if c.TTL == "" || c.TTL == "0" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", c.TTL, err)
	}
	if ttl < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", c.TTL)
	}
	return ttl, nil
}

// Derive fills the values computed from other settings, mirroring how the
// feature extractor lays out frames.
func (s *Settings) Derive() error {
	f := &s.Features
	if f.FeatureLabelResolution == 0 && f.HopLenS > 0 {
		f.FeatureLabelResolution = int(math.Round(f.LabelHopLenS / f.HopLenS))
	}
	if f.FeatureSequenceLength == 0 {
		f.FeatureSequenceLength = f.LabelSequenceLength * f.FeatureLabelResolution
	}
	if f.UniqueClasses == 0 {
		version, err := s.DatasetVersion()
		if err != nil {
			return err
		}
		f.UniqueClasses = uniqueClasses[version]
	}

	if s.Training.Patience < 0 {
		s.Training.Patience = s.Training.NbEpochs
	}
	return nil
}
