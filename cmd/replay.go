// -- cmd/replay.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/browserpilot/internal/agent"
	"github.com/xkilldash9x/browserpilot/internal/browser/session"
	"github.com/xkilldash9x/browserpilot/internal/observability"
)

// newReplayCmd creates and configures the `replay` command.
func newReplayCmd() *cobra.Command {
	var (
		maxRetries   int
		skipFailures bool
		stepDelay    time.Duration
		headless     bool
	)

	replayCmd := &cobra.Command{
		Use:   "replay <history-file>",
		Short: "Re-executes a recorded run against the live site",
		Long: `Replay loads a recorded history file and re-executes its actions.
Elements are re-matched on the current page by their structural fingerprint,
so recorded runs survive layout shifts. No LLM is involved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			historyPath := args[0]

			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			env, err := session.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}

			// Replay never consults the oracle, so no LLM client is wired.
			a := agent.New("replay", env, nil, cfg.Agent(), logger)

			opts := agent.DefaultReplayOptions()
			if cmd.Flags().Changed("max-retries") {
				opts.MaxRetries = maxRetries
			}
			opts.SkipFailures = skipFailures
			if cmd.Flags().Changed("step-delay") {
				opts.DelayBetweenSteps = stepDelay
			}

			results, err := a.LoadAndRerun(ctx, historyPath, opts)
			if err != nil {
				closeBrowser(env, logger)
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("replay aborted")
				}
				return fmt.Errorf("replay failed: %w", err)
			}
			closeBrowser(env, logger)

			failures := 0
			for _, r := range results {
				if r.Failed() {
					failures++
				}
			}
			fmt.Printf("\nReplay finished: %d actions executed, %d failed.\n", len(results), failures)
			return nil
		},
	}

	replayCmd.Flags().IntVar(&maxRetries, "max-retries", 3, "Retries per recorded step before giving up.")
	replayCmd.Flags().BoolVar(&skipFailures, "skip-failures", false, "Continue with the next step when one keeps failing.")
	replayCmd.Flags().DurationVar(&stepDelay, "step-delay", 2*time.Second, "Pause between replayed steps.")
	replayCmd.Flags().BoolVar(&headless, "headless", true, "Run the browser without a window. (Overrides config/env)")

	return replayCmd
}
