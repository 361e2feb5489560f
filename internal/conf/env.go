// env.go - environment variable validation for SELD overrides
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// envBinding pairs an environment variable with a validation function.
type envBinding struct {
	EnvVar   string
	Validate func(string) error
}

// getEnvBindings returns the overrides whose values are checked before unmarshaling.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"SELD_DEBUG", validateEnvBool},
		{"SELD_MAIN_QUICK_TEST", validateEnvBool},
		{"SELD_MAIN_DETECT_ANOMALY", validateEnvBool},
		{"SELD_TRAINING_BATCH_SIZE", validateEnvPositiveInt},
		{"SELD_TRAINING_NB_EPOCHS", validateEnvPositiveInt},
		{"SELD_TRAINING_PATIENCE", validateEnvInt},
		{"SELD_TRAINING_LR", validateEnvPositiveFloat},
		{"SELD_MODEL_FNN_SIZE", validateEnvPositiveInt},
		{"SELD_MODEL_DROPOUT_RATE", validateEnvFloat},
	}
}

// validateEnvVars reports every malformed override at once.
func validateEnvVars() error {
	var problems []string
	for _, binding := range getEnvBindings() {
		value := os.Getenv(binding.EnvVar)
		if value == "" {
			continue
		}
		if err := binding.Validate(value); err != nil {
			problems = append(problems, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, value, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvInt(value string) error {
	_, err := strconv.Atoi(value)
	return err
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

func validateEnvFloat(value string) error {
	_, err := strconv.ParseFloat(value, 64)
	return err
}

func validateEnvPositiveFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	if f <= 0 {
		return fmt.Errorf("must be positive, got %g", f)
	}
	return nil
}
