package feed

import (
	"sync"

	"github.com/tphakala/seld-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the feed package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("feed")
	})
	return serviceLogger
}
