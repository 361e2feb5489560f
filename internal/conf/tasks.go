package conf

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/viper"

	"github.com/tphakala/seld-go/internal/errors"
)

// taskParams overlays the defaults for each selectable parameter set.
var taskParams = map[string]map[string]any{
	// default quick test
	"1": {},
	// FOA full training
	"2": {
		"main.quick_test": false,
		"dataset.dataset": "foa",
	},
	// MIC full training
	"3": {
		"main.quick_test": false,
		"dataset.dataset": "mic",
	},
	// FOA smoke test
	"999": {
		"main.quick_test": true,
		"dataset.dataset": "foa",
	},
}

// TaskIDs lists the known parameter sets in sorted order.
func TaskIDs() []string {
	return slices.Sorted(maps.Keys(taskParams))
}

// applyTaskParams registers the overlay of taskID as defaults, so config
// files and environment variables still take precedence.
func applyTaskParams(v *viper.Viper, taskID string) error {
	overlay, ok := taskParams[taskID]
	if !ok {
		return errors.ConfigurationError(fmt.Errorf("unknown task id %q, expected one of %v", taskID, TaskIDs()))
	}
	for key, value := range overlay {
		v.SetDefault(key, value)
	}
	return nil
}
