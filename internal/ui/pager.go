package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// PagerOptions controls pager behavior
type PagerOptions struct {
	// NoPager disables pager for this command (--no-pager flag)
	NoPager bool
}

// shouldUsePager is false with --no-pager, REPOSYNC_NO_PAGER, or when stdout
// is not a TTY.
func shouldUsePager(opts PagerOptions) bool {
	if opts.NoPager {
		return false
	}
	if os.Getenv("REPOSYNC_NO_PAGER") != "" {
		return false
	}
	return IsTerminal()
}

// getPagerCommand checks REPOSYNC_PAGER, then PAGER, defaults to "less".
func getPagerCommand() string {
	if pager := os.Getenv("REPOSYNC_PAGER"); pager != "" {
		return pager
	}
	if pager := os.Getenv("PAGER"); pager != "" {
		return pager
	}
	return "less"
}

// getTerminalHeight returns 0 if stdout is not a TTY.
func getTerminalHeight() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	_, height, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return height
}

func contentHeight(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// ToPager pipes content to a pager when stdout is a terminal and the content
// does not fit on screen. Otherwise it writes to w.
func ToPager(w io.Writer, content string, opts PagerOptions) error {
	if !shouldUsePager(opts) {
		_, err := fmt.Fprint(w, content)
		return err
	}

	termHeight := getTerminalHeight()
	if termHeight > 0 && contentHeight(content) <= termHeight-1 {
		_, err := fmt.Fprint(w, content)
		return err
	}

	parts := strings.Fields(getPagerCommand())
	if len(parts) == 0 {
		_, err := fmt.Fprint(w, content)
		return err
	}

	cmd := exec.Command(parts[0], parts[1:]...) // #nosec G204 - pager command is user-configurable by design
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// -R: ANSI colors, -F: quit if one screen, -X: keep screen on exit
	if os.Getenv("LESS") == "" {
		cmd.Env = append(os.Environ(), "LESS=-RFX")
	} else {
		cmd.Env = os.Environ()
	}
	return cmd.Run()
}
