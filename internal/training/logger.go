package training

import (
	"sync"

	"github.com/tphakala/seld-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the training package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("training")
	})
	return serviceLogger
}
