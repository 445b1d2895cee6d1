// Package log provides structured, colored logging for the wallet.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for the parts of the wallet that log on their own.
var (
	Wallet     zerolog.Logger
	Sync       zerolog.Logger
	Daemon     zerolog.Logger
	Transfer   zerolog.Logger
	FileSystem zerolog.Logger
)

const consoleTimeFormat = "15:04:05"

func init() {
	setLogger(NewConsoleLogger(os.Stdout, "info"))
}

// Init configures the global logger. The console gets colored output unless
// jsonOutput is set. A non-empty file additionally receives every entry as
// JSON.
func Init(level string, jsonOutput bool, file string) error {
	var console io.Writer = os.Stdout
	if !jsonOutput {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}
	}
	if file == "" {
		setLogger(newLogger(console, level))
		return nil
	}

	// Wallet logs can name addresses; keep them private to the owner.
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	setLogger(newLogger(zerolog.MultiLevelWriter(console, f), level))
	return nil
}

// SetOutput sends all logging to w as JSON. Tests use it to silence or
// capture output.
func SetOutput(w io.Writer, level string) {
	setLogger(NewJSONLogger(w, level))
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}, level)
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(w, level)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

// parseLevel accepts zerolog's level names. Anything unknown logs at info.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func setLogger(l zerolog.Logger) {
	Logger = l
	Wallet = WithComponent("wallet")
	Sync = WithComponent("sync")
	Daemon = WithComponent("daemon")
	Transfer = WithComponent("transfer")
	FileSystem = WithComponent("filesystem")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Benchmark logs how long an operation took, at debug level. Call the
// returned func when the operation ends.
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().
			Str("operation", name).
			Dur("duration", time.Since(start)).
			Msg("benchmark")
	}
}
