package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	enabled     = os.Getenv("REPOSYNC_DEBUG") != ""
	verboseMode = false
	quietMode   = false

	loggerMu sync.Mutex
	output   io.Writer = os.Stderr
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

// SetOutput redirects Logf and Logger output. Used by tests.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	output = w
}

func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		loggerMu.Lock()
		defer loggerMu.Unlock()
		fmt.Fprintf(output, format, args...)
	}
}

// Level maps the verbose/quiet switches onto a slog level.
func Level() slog.Level {
	switch {
	case Enabled():
		return slog.LevelDebug
	case quietMode:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Logger builds a text logger writing to stderr at Level().
func Logger() *slog.Logger {
	loggerMu.Lock()
	w := output
	loggerMu.Unlock()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: Level()}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
