package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

func init() {
	if !ShouldUseColor() {
		DisableColor()
	}
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor decides whether output is styled.
// Precedence: NO_COLOR, then CLICOLOR=0, then CLICOLOR_FORCE, then the TTY check.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji is false when REPOSYNC_NO_EMOJI is set or stdout is not a terminal.
func ShouldUseEmoji() bool {
	if os.Getenv("REPOSYNC_NO_EMOJI") != "" {
		return false
	}
	return IsTerminal()
}

// DisableColor renders every style as plain text, for --json callers, pipes
// and NO_COLOR.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// EnableColor restores the profile detected from the environment.
func EnableColor() {
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}
