package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Init initializes the default logger writing to os.Stderr.
// Interactive terminals get the human-readable console writer; everything
// else (cron, systemd, CI) gets JSON lines. It ensures that the logger is
// initialized only once.
func Init() {
	once.Do(func() {
		level := parseLevel(os.Getenv("CITYBRIEF_LOG_LEVEL"))
		zerolog.SetGlobalLevel(level)

		if isatty.IsTerminal(os.Stderr.Fd()) {
			w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
			defaultLogger = zerolog.New(w).With().Timestamp().Logger()
		} else {
			defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		}
	})
}

// Get returns the initialized default logger.
// It calls Init() to ensure the logger is ready before returning it.
func Get() zerolog.Logger {
	Init()
	return defaultLogger
}

// With returns a sub-logger carrying a component field, for handing to
// long-lived services.
func With(component string) zerolog.Logger {
	return Get().With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Info logs an informational message using the default logger.
func Info(msg string) {
	l := Get()
	l.Info().Msg(msg)
}

// Warn logs a warning message using the default logger.
func Warn(msg string) {
	l := Get()
	l.Warn().Msg(msg)
}

// Error logs an error message using the default logger.
func Error(msg string, err error) {
	l := Get()
	l.Error().Err(err).Msg(msg)
}

// Debug logs a debug message using the default logger.
func Debug(msg string) {
	l := Get()
	l.Debug().Msg(msg)
}
