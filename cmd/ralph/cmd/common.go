package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ralph-tui/ralph-tui/internal/control"
)

// OutputJSON writes the given value to stdout as indented JSON.
func OutputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withInterruptHandling derives a context that cancels on the first
// SIGINT/SIGTERM, giving the in-flight agent call and any git commit a
// chance to finish, and marks cp cancelled so the caller can distinguish a
// user-requested shutdown from any other context cancellation. A second
// signal force-kills the process immediately.
func withInterruptHandling(ctx context.Context) (context.Context, *control.ControlPlane, func()) {
	cp := control.New()
	derived, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			cp.Cancel()
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigCh:
			os.Exit(130)
		case <-done:
		}
	}()

	stop := func() {
		signal.Stop(sigCh)
		close(done)
		cancel()
	}
	return derived, cp, stop
}

// TruncateString removes newlines and truncates the string to maxLen.
func TruncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")

	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
