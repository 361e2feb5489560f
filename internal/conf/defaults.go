// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

const (
	DefaultTaskID = "1"
	DefaultJobID  = "1"

	// EnvPrefix prefixes every environment override, e.g. SELD_TRAINING_LR.
	EnvPrefix = "SELD"
)

// setDefaultConfig registers the baseline parameter set.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.quick_test", true)
	v.SetDefault("main.detect_anomaly", true)

	v.SetDefault("dataset.dataset_dir", "DCASE2021_SELD_dataset/")
	v.SetDefault("dataset.feat_label_dir", "DCASE2021_SELD_dataset/seld_feat_label/")
	v.SetDefault("dataset.dataset", "foa")
	v.SetDefault("dataset.mode", "dev")

	v.SetDefault("features.hop_len_s", 0.02)
	v.SetDefault("features.label_hop_len_s", 0.1)
	v.SetDefault("features.nb_mel_bins", 64)
	v.SetDefault("features.label_sequence_length", 50)
	v.SetDefault("features.feature_label_resolution", 0)
	v.SetDefault("features.feature_sequence_length", 0)
	v.SetDefault("features.unique_classes", 0)

	v.SetDefault("model.dropout_rate", 0.05)
	v.SetDefault("model.fnn_size", 128)
	v.SetDefault("model.seed", 1)

	v.SetDefault("training.batch_size", 128)
	v.SetDefault("training.lr", 1e-3)
	v.SetDefault("training.nb_epochs", 100)
	v.SetDefault("training.patience", -1)
	v.SetDefault("training.shuffle", true)

	v.SetDefault("scoring.lad_doa_thresh", 20.0)
	v.SetDefault("scoring.label_frames_per_block", 10)

	v.SetDefault("output.model_dir", "models/")
	v.SetDefault("output.dcase_output_dir", "results/")
	v.SetDefault("output.params_snapshot", true)
	v.SetDefault("output.curves", true)
	v.SetDefault("output.metrics", true)
	v.SetDefault("output.metrics_listen", "")
	v.SetDefault("output.sqlite.enabled", false)
	v.SetDefault("output.sqlite.path", "results/seld.db")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "0")

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/seld.log")
	v.SetDefault("logging.file_output.level", "debug")
	v.SetDefault("logging.module_levels", map[string]string{})
}
