package debug

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestEnabled(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     bool
	}{
		{"enabled with value", "1", true},
		{"enabled with any value", "true", true},
		{"disabled when empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldEnabled := enabled
			defer func() { enabled = oldEnabled }()

			enabled = tt.envValue != ""

			if got := Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogf(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		wantOutput string
	}{
		{"outputs when enabled", true, "test message: hello\n"},
		{"no output when disabled", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldEnabled := enabled
			defer func() {
				enabled = oldEnabled
				SetOutput(os.Stderr)
			}()
			enabled = tt.enabled

			var buf bytes.Buffer
			SetOutput(&buf)
			Logf("test message: %s\n", "hello")

			if got := buf.String(); got != tt.wantOutput {
				t.Errorf("Logf() output = %q, want %q", got, tt.wantOutput)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	oldEnabled, oldVerbose, oldQuiet := enabled, verboseMode, quietMode
	defer func() {
		enabled, verboseMode, quietMode = oldEnabled, oldVerbose, oldQuiet
	}()

	enabled = false
	SetVerbose(false)
	SetQuiet(false)
	if got := Level(); got != slog.LevelInfo {
		t.Errorf("Level() = %v, want info", got)
	}

	SetQuiet(true)
	if got := Level(); got != slog.LevelWarn {
		t.Errorf("Level() with quiet = %v, want warn", got)
	}
	if !IsQuiet() {
		t.Error("IsQuiet() = false after SetQuiet(true)")
	}

	SetVerbose(true)
	if got := Level(); got != slog.LevelDebug {
		t.Errorf("Level() with verbose = %v, want debug", got)
	}
}

func TestLoggerWritesToOutput(t *testing.T) {
	oldVerbose := verboseMode
	defer func() {
		verboseMode = oldVerbose
		SetOutput(os.Stderr)
	}()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Logger().Debug("account reconciled", "login", "acme")
	if !strings.Contains(buf.String(), "login=acme") {
		t.Errorf("logger output %q missing attribute", buf.String())
	}
}
