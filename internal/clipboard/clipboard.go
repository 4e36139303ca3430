// Package clipboard writes text to the system clipboard by shelling
// out to the platform's clipboard command. Write-only and best-effort:
// callers treat failures as a warning, never as a failed share.
package clipboard

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Writer is a write-only text clipboard.
type Writer interface {
	Copy(text string) error
}

// command pipes text into an external clipboard program.
type command struct {
	name string
	args []string
}

// New returns the clipboard for the current platform. The returned
// Writer reports an error from Copy when no clipboard program exists on
// the system.
func New() Writer {
	switch runtime.GOOS {
	case "darwin":
		return &command{name: "pbcopy"}
	case "windows":
		return &command{name: "clip"}
	default:
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			return &command{name: "wl-copy"}
		}

		return &command{name: "xclip", args: []string{"-selection", "clipboard"}}
	}
}

// Copy writes text to the clipboard.
func (c *command) Copy(text string) error {
	if _, err := exec.LookPath(c.name); err != nil {
		return fmt.Errorf("no clipboard command available: %w", err)
	}

	cmd := exec.Command(c.name, c.args...)
	cmd.Stdin = strings.NewReader(text)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running %s: %w (%s)", c.name, err, strings.TrimSpace(string(out)))
	}

	return nil
}
