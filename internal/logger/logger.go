package logger

import (
	"github.com/robinjoseph08/golib/logger"
)

// Logger is the process-wide logger. Packages without an injected logger
// (repositories, the RPC middleware) write through it.
var Logger = logger.New()

// SetupLogger rebuilds the global logger. Dev mode forces debug output.
func SetupLogger(level string, isDevMode bool) logger.Logger {
	if isDevMode {
		level = "debug"
	}
	if level == "" {
		level = "info"
	}
	Logger = logger.NewWithLevel(level)
	return Logger
}
