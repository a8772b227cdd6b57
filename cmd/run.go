// cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

const shutdownTimeout = 15 * time.Second

func newRunCmd(factory componentFactory) *cobra.Command {
	var tasks []string
	var output string

	runCmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run the agent on one or more tasks",
		Long: `Runs the browser agent until each task is done, fails, or exhausts its step budget.
A task can be given as the argument or with --task, which may be repeated to run
several tasks concurrently in isolated browser sessions.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all := append(append([]string{}, args...), tasks...)
			if len(all) == 0 {
				return fmt.Errorf("no task given: pass a task as argument or with --task")
			}
			if output != "text" && output != "json" {
				return fmt.Errorf("unknown output format %q", output)
			}

			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runTasks(ctx, observability.GetLogger(), cfg, all, output, cmd.OutOrStdout(), factory)
		},
	}

	runCmd.Flags().StringArrayVarP(&tasks, "task", "t", nil, "Task for the agent (repeatable)")
	runCmd.Flags().StringVarP(&output, "output", "o", "text", "Result format: text or json")
	runCmd.Flags().Int("max-steps", 0, "Maximum steps per run")
	runCmd.Flags().String("strategy", "", "Prompt strategy: single or staged")
	runCmd.Flags().Int("concurrency", 0, "How many tasks run at once")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window")
	runCmd.Flags().Bool("use-vision", true, "Send screenshots to the model")
	runCmd.Flags().String("store", "", "History store: memory or postgres")
	return runCmd
}

// runTasks wires the components, runs every task and prints the outcomes. It
// fails when any run did not reach Done.
func runTasks(ctx context.Context, logger *zap.Logger, cfg config.Interface, tasks []string, output string, out io.Writer, factory componentFactory) error {
	settings, err := agent.SettingsFromConfig(cfg.Agent())
	if err != nil {
		return fmt.Errorf("invalid agent configuration: %w", err)
	}

	components, err := factory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Shutdown(ctx)

	catalog := agent.DefaultCatalog()
	newPipeline := func(ctx context.Context, i int) (*agent.Pipeline, func(), error) {
		driver, release, err := components.NewDriver(ctx)
		if err != nil {
			return nil, release, fmt.Errorf("failed to open browser session: %w", err)
		}
		p, err := agent.New(driver, components.LLM, catalog, settings, logger, agent.WithHistoryStore(components.Store))
		return p, release, err
	}

	logger.Info("Starting agent.",
		zap.Int("tasks", len(tasks)),
		zap.String("strategy", settings.Plan.String()),
		zap.Int("max_steps", settings.MaxSteps))

	results, runErr := agent.RunAll(ctx, tasks, cfg.Agent().Concurrency, newPipeline, logger)
	if err := writeResults(out, output, results); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	failed := 0
	for _, r := range results {
		if !r.Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs did not complete", failed, len(results))
	}
	return nil
}

// runSummary is the serialized form of a RunResult.
type runSummary struct {
	RunID           string `json:"run_id"`
	Task            string `json:"task"`
	State           string `json:"state"`
	Steps           int    `json:"steps"`
	BudgetExhausted bool   `json:"budget_exhausted,omitempty"`
	FinalResult     string `json:"final_result,omitempty"`
	Error           string `json:"error,omitempty"`
}

func summarize(r agent.RunResult) runSummary {
	s := runSummary{
		RunID:           r.RunID,
		Task:            r.Task,
		State:           string(r.State),
		Steps:           r.Steps,
		BudgetExhausted: r.BudgetExhausted,
		FinalResult:     r.FinalResult,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

func writeResults(out io.Writer, format string, results []agent.RunResult) error {
	summaries := make([]runSummary, len(results))
	for i, r := range results {
		summaries[i] = summarize(r)
	}

	if format == "json" {
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize results: %w", err)
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}

	var sb strings.Builder
	for _, s := range summaries {
		fmt.Fprintf(&sb, "Run %s [%s] after %d step(s)\n", s.RunID, s.State, s.Steps)
		fmt.Fprintf(&sb, "  Task:   %s\n", s.Task)
		switch {
		case s.FinalResult != "":
			fmt.Fprintf(&sb, "  Result: %s\n", s.FinalResult)
		case s.BudgetExhausted:
			sb.WriteString("  Result: step budget exhausted before the task was done\n")
		}
		if s.Error != "" {
			fmt.Fprintf(&sb, "  Error:  %s\n", s.Error)
		}
	}
	_, err := io.WriteString(out, sb.String())
	return err
}
