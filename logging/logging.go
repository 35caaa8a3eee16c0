package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger  = newConsoleLogger(os.Stderr, zerolog.InfoLevel)
	logFile *os.File
	mu      sync.Mutex
	isSetup bool
	debug   bool
)

func newConsoleLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SetupLogger routes all log output to logFilePath as JSON lines and enables debug output
func SetupLogger(logFilePath string) error {
	mu.Lock()
	defer mu.Unlock()

	if isSetup {
		return nil
	}

	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logger = zerolog.New(logFile).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	debug = true
	logger.Info().Msg("--- Digital Asset Downloader debug log started ---")

	isSetup = true
	return nil
}

// SetOutput replaces the console destination (used by tests and quiet runs)
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if isSetup {
		return
	}
	logger = newConsoleLogger(w, zerolog.InfoLevel)
}

// CloseLogger closes the log file
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logger.Info().Msg("--- Digital Asset Downloader debug log closed ---")
		logFile.Close()
		logFile = nil
		isSetup = false
		debug = false
		logger = newConsoleLogger(os.Stderr, zerolog.InfoLevel)
	}
}

// Logger returns the current logger for callers that want structured fields
func Logger() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// LogInfo logs an information message
func LogInfo(format string, args ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, args...)
}

// DebugLog logs a message if debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	mu.Lock()
	enabled, l := debug, logger
	mu.Unlock()

	if enabled {
		l.Debug().Msgf(format, args...)
	}
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	l := Logger()
	l.Error().Msgf(format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	l := Logger()
	l.Warn().Msgf(format, args...)
}

// LogItemProcessed logs the outcome of one work item
func LogItemProcessed(identifier, destination string, success bool, errMsg string) {
	l := Logger()
	if success {
		l.Debug().Str("identifier", identifier).Str("destination", destination).Msg("PROCESSED")
		return
	}
	l.Warn().Str("identifier", identifier).Str("destination", destination).Str("error", errMsg).Msg("FAILED")
}
