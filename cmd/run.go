// -- cmd/run.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/agent"
	"github.com/xkilldash9x/browserpilot/internal/browser/session"
	"github.com/xkilldash9x/browserpilot/internal/llmclient"
	"github.com/xkilldash9x/browserpilot/internal/observability"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var (
		startURL    string
		maxSteps    int
		headless    bool
		useVision   bool
		historyFile string
	)

	runCmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Runs the agent against a natural-language task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			task := strings.Join(args, " ")

			// Flags override the resolved config.
			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}
			if cmd.Flags().Changed("vision") {
				cfg.SetBrowserUseVision(useVision)
			}
			if cmd.Flags().Changed("max-steps") {
				cfg.SetAgentMaxSteps(maxSteps)
			}
			if cmd.Flags().Changed("history-file") {
				cfg.SetAgentHistoryFile(historyFile)
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			router, err := llmclient.NewRouterFromConfig(cfg.Agent().LLM, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize LLM clients: %w", err)
			}
			defer router.Close()

			env, err := session.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}

			opts := []agent.Option{
				agent.WithOwnedEnvironment(),
				agent.WithVision(cfg.Browser().UseVision),
			}
			// Open the start page before the first step so the first
			// observation already shows the target instead of a blank tab.
			if startURL != "" {
				opts = append(opts, agent.WithInitialActions([]schemas.Action{
					{Type: schemas.ActionGoToURL, URL: startURL},
				}))
			}

			a := agent.New(task, env, router, cfg.Agent(), logger, opts...)

			history, err := a.Run(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by user signal.")
					return fmt.Errorf("run aborted")
				}
				return err
			}

			printRunSummary(history)
			return nil
		},
	}

	runCmd.Flags().StringVar(&startURL, "url", "", "URL to open before the first step.")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Maximum number of steps before giving up. (Overrides config/env)")
	runCmd.Flags().BoolVar(&headless, "headless", true, "Run the browser without a window. (Overrides config/env)")
	runCmd.Flags().BoolVar(&useVision, "vision", false, "Attach page screenshots to every decision. (Overrides config/env)")
	runCmd.Flags().StringVar(&historyFile, "history-file", "", "Path for the recorded run history. (Overrides config/env)")

	return runCmd
}

// printRunSummary writes the human-facing outcome of a run to stdout.
func printRunSummary(history *schemas.History) {
	fmt.Printf("\nRun finished after %d steps.\n", history.Len())
	if history.IsDone() {
		fmt.Println("Task completed.")
		if result := history.FinalResult(); result != "" {
			fmt.Printf("Result: %s\n", result)
		}
		return
	}

	fmt.Println("Task did not complete.")
	if errs := history.Errors(); len(errs) > 0 {
		fmt.Printf("Last error: %s\n", errs[len(errs)-1])
	}
}

// closeBrowser shuts an environment down with a bounded deadline.
func closeBrowser(env agent.Environment, logger *zap.Logger) {
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := env.Close(closeCtx); err != nil {
		logger.Warn("Error closing browser.", zap.Error(err))
	}
}
