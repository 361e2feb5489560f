package scoring

import (
	"sync"

	"github.com/tphakala/seld-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the scoring package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("scoring")
	})
	return serviceLogger
}
