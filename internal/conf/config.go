// Package conf loads, derives and validates the settings of a SELD training run.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/seld-go/internal/errors"
	"github.com/tphakala/seld-go/internal/logger"
)

// Settings holds the effective parameter set of a run.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	// TaskID selects the parameter set; JobID namespaces every output file.
	TaskID string `mapstructure:"-" yaml:"task_id"`
	JobID  string `mapstructure:"-" yaml:"job_id"`

	Main     MainSettings         `mapstructure:"main" yaml:"main"`
	Dataset  DatasetSettings      `mapstructure:"dataset" yaml:"dataset"`
	Features FeatureSettings      `mapstructure:"features" yaml:"features"`
	Model    ModelSettings        `mapstructure:"model" yaml:"model"`
	Training TrainingSettings     `mapstructure:"training" yaml:"training"`
	Scoring  ScoringSettings      `mapstructure:"scoring" yaml:"scoring"`
	Output   OutputSettings       `mapstructure:"output" yaml:"output"`
	Cache    CacheSettings        `mapstructure:"cache" yaml:"cache"`
	Logging  logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// MainSettings contains run-wide switches.
type MainSettings struct {
	QuickTest     bool `mapstructure:"quick_test" yaml:"quick_test"`         // truncates epochs and batches for smoke tests
	DetectAnomaly bool `mapstructure:"detect_anomaly" yaml:"detect_anomaly"` // fail on non-finite loss or gradients
}

// DatasetSettings locates the dataset and its extracted features.
type DatasetSettings struct {
	DatasetDir   string `mapstructure:"dataset_dir" yaml:"dataset_dir"`       // root of the DCASE dataset, must name its year
	FeatLabelDir string `mapstructure:"feat_label_dir" yaml:"feat_label_dir"` // directory of normalized features and labels
	Dataset      string `mapstructure:"dataset" yaml:"dataset"`               // foa or mic
	Mode         string `mapstructure:"mode" yaml:"mode"`                     // dev or eval
}

// FeatureSettings describes frame timing and label layout.
type FeatureSettings struct {
	HopLenS             float64 `mapstructure:"hop_len_s" yaml:"hop_len_s"`
	LabelHopLenS        float64 `mapstructure:"label_hop_len_s" yaml:"label_hop_len_s"`
	NbMelBins           int     `mapstructure:"nb_mel_bins" yaml:"nb_mel_bins"`
	LabelSequenceLength int     `mapstructure:"label_sequence_length" yaml:"label_sequence_length"`

	// Derived in Derive when left at zero.
	FeatureLabelResolution int `mapstructure:"feature_label_resolution" yaml:"feature_label_resolution"`
	FeatureSequenceLength  int `mapstructure:"feature_sequence_length" yaml:"feature_sequence_length"`
	UniqueClasses          int `mapstructure:"unique_classes" yaml:"unique_classes"`
}

// ModelSettings sizes the network.
type ModelSettings struct {
	DropoutRate float64 `mapstructure:"dropout_rate" yaml:"dropout_rate"`
	FnnSize     int     `mapstructure:"fnn_size" yaml:"fnn_size"`
	Seed        uint64  `mapstructure:"seed" yaml:"seed"`
}

// TrainingSettings controls optimization and early stopping.
type TrainingSettings struct {
	BatchSize int     `mapstructure:"batch_size" yaml:"batch_size"`
	LR        float64 `mapstructure:"lr" yaml:"lr"`
	NbEpochs  int     `mapstructure:"nb_epochs" yaml:"nb_epochs"`
	Patience  int     `mapstructure:"patience" yaml:"patience"` // negative means nb_epochs
	Shuffle   bool    `mapstructure:"shuffle" yaml:"shuffle"`
}

// ScoringSettings parameterizes the SELD metrics.
type ScoringSettings struct {
	LadDoaThresh        float64 `mapstructure:"lad_doa_thresh" yaml:"lad_doa_thresh"`                 // degrees
	LabelFramesPerBlock int     `mapstructure:"label_frames_per_block" yaml:"label_frames_per_block"` // frames aggregated into one scoring block
}

// OutputSettings places checkpoints, detections and reports.
type OutputSettings struct {
	ModelDir       string         `mapstructure:"model_dir" yaml:"model_dir"`
	DcaseOutputDir string         `mapstructure:"dcase_output_dir" yaml:"dcase_output_dir"`
	ParamsSnapshot bool           `mapstructure:"params_snapshot" yaml:"params_snapshot"`
	Curves         bool           `mapstructure:"curves" yaml:"curves"`
	Metrics        bool           `mapstructure:"metrics" yaml:"metrics"`
	MetricsListen  string         `mapstructure:"metrics_listen" yaml:"metrics_listen"` // serve /metrics while training, empty disables
	SQLite         SQLiteSettings `mapstructure:"sqlite" yaml:"sqlite"`
}

// SQLiteSettings enables the per-split results database.
type SQLiteSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// CacheSettings bounds the in-memory feature cache.
type CacheSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	TTL     string `mapstructure:"ttl" yaml:"ttl"` // Go duration, "0" keeps entries for the whole run
}

// LoadOptions carries the command line inputs of Load.
type LoadOptions struct {
	ConfigFile string
	TaskID     string
	JobID      string
}

// Load builds Settings from defaults, the task parameter set, an optional
// YAML file and SELD_ environment variables, in increasing precedence.
func Load(opts LoadOptions) (*Settings, error) {
	if opts.TaskID == "" {
		opts.TaskID = DefaultTaskID
	}
	if opts.JobID == "" {
		opts.JobID = DefaultJobID
	}

	v, err := initViper(opts)
	if err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.ConfigurationError(fmt.Errorf("error unmarshaling config into struct: %w", err))
	}
	settings.TaskID = opts.TaskID
	settings.JobID = opts.JobID

	if err := settings.Derive(); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.ValidationError(fmt.Errorf("error validating settings: %w", err))
	}

	GetLogger().Debug("settings loaded",
		logger.String("task_id", settings.TaskID),
		logger.String("job_id", settings.JobID),
		logger.String("dataset", settings.Dataset.Dataset),
		logger.Bool("quick_test", settings.Main.QuickTest))

	return settings, nil
}

// initViper layers defaults, task overlay, config file and environment.
func initViper(opts LoadOptions) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaultConfig(v)

	if err := applyTaskParams(v, opts.TaskID); err != nil {
		return nil, err
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return nil, errors.ConfigurationError(fmt.Errorf("config file %s not found: %w", opts.ConfigFile, err))
			}
			return nil, errors.ConfigurationError(fmt.Errorf("fatal error reading config file: %w", err))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := validateEnvVars(); err != nil {
		return nil, errors.ConfigurationError(err)
	}

	return v, nil
}

// SaveYAMLConfig writes settings to configPath atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directory for settings snapshot: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "params-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing %s: %w", configPath, err)
	}
	return nil
}
