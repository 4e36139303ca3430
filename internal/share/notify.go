package share

import (
	"fmt"
	"io"
	"log/slog"
)

// Notifier is the fire-and-forget status side channel: transient
// success and error toasts, plus an in-progress indicator whose done
// func the coordinator guarantees to call on every exit path.
type Notifier interface {
	Success(msg string)
	Error(msg string)

	// Busy shows an in-progress indicator and returns the func that
	// hides it. Calling done more than once is harmless.
	Busy(msg string) (done func())
}

// ConsoleNotifier is the CLI Notifier: human-readable lines on a writer
// (normally stderr), mirrored to the structured log.
type ConsoleNotifier struct {
	out    io.Writer
	logger *slog.Logger
}

// NewConsoleNotifier creates a ConsoleNotifier writing to out.
func NewConsoleNotifier(out io.Writer, logger *slog.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{out: out, logger: logger}
}

func (n *ConsoleNotifier) Success(msg string) {
	fmt.Fprintln(n.out, msg)
	n.logger.Info(msg)
}

func (n *ConsoleNotifier) Error(msg string) {
	fmt.Fprintln(n.out, "error: "+msg)
	n.logger.Error(msg)
}

func (n *ConsoleNotifier) Busy(msg string) func() {
	fmt.Fprintln(n.out, msg+"...")

	cleared := false

	return func() {
		if cleared {
			return
		}

		cleared = true
		n.logger.Debug("done", slog.String("status", msg))
	}
}
