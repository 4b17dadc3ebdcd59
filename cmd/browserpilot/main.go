// File: cmd/browserpilot/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/browserpilot/cmd"
)

// main is the entry point of the application.
func main() {
	// A signal-aware context lets Ctrl+C stop the agent loop gracefully: the
	// current step finishes, the browser closes, and history is flushed.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
