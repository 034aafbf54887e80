package ui

import (
	"os"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestShouldUseColor(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"NO_COLOR", map[string]string{"NO_COLOR": "1"}, false},
		{"NO_COLOR set but empty", map[string]string{"NO_COLOR": ""}, false},
		{"CLICOLOR=0", map[string]string{"CLICOLOR": "0"}, false},
		{"CLICOLOR_FORCE on a pipe", map[string]string{"CLICOLOR_FORCE": "1"}, true},
		{"NO_COLOR beats CLICOLOR_FORCE", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"NO_COLOR", "CLICOLOR", "CLICOLOR_FORCE"} {
				unsetEnv(t, key)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := ShouldUseColor(); got != tt.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIconFallsBackToASCII(t *testing.T) {
	t.Setenv("REPOSYNC_NO_EMOJI", "1")

	if ShouldUseEmoji() {
		t.Fatal("ShouldUseEmoji() = true with REPOSYNC_NO_EMOJI set")
	}
	tests := map[string]string{
		IconPass: "[ok]",
		IconWarn: "[!]",
		IconFail: "[x]",
		IconSkip: "-",
		"*":      "*",
	}
	for symbol, want := range tests {
		if got := Icon(symbol); got != want {
			t.Errorf("Icon(%q) = %q, want %q", symbol, got, want)
		}
	}
	if got := RenderFailIcon(); got != "[x]" {
		t.Errorf("RenderFailIcon() = %q, want %q", got, "[x]")
	}
}

func TestEnableColorRestoresProfile(t *testing.T) {
	unsetEnv(t, "NO_COLOR")
	unsetEnv(t, "CLICOLOR")
	t.Setenv("CLICOLOR_FORCE", "1")
	t.Cleanup(DisableColor)

	DisableColor()
	if got := lipgloss.ColorProfile(); got != termenv.Ascii {
		t.Fatalf("profile after DisableColor = %v, want Ascii", got)
	}
	EnableColor()
	if got := lipgloss.ColorProfile(); got == termenv.Ascii {
		t.Errorf("profile after EnableColor = Ascii, want a color profile")
	}
}
