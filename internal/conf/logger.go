package conf

import "github.com/tphakala/seld-go/internal/logger"

// GetLogger returns the config package logger.
// The logger is fetched from the global logger each time so it follows
// a central logger installed after package init.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
