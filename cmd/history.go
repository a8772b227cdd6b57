// cmd/history.go
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

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

func newHistoryCmd(provider storeProvider) *cobra.Command {
	var runID string
	var output string

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show the recorded steps of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runHistory(ctx, observability.GetLogger(), cfg, runID, output, cmd.OutOrStdout(), provider)
		},
	}

	historyCmd.Flags().StringVar(&runID, "run-id", "", "ID of the run to show (required)")
	_ = historyCmd.MarkFlagRequired("run-id")
	historyCmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	return historyCmd
}

func runHistory(ctx context.Context, logger *zap.Logger, cfg config.Interface, runID, output string, out io.Writer, provider storeProvider) error {
	history, cleanup, err := provider.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	steps, err := history.ListSteps(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if len(steps) == 0 {
		return fmt.Errorf("no steps recorded for run %s", runID)
	}

	if output == "json" {
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(steps, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize history: %w", err)
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}
	_, err = io.WriteString(out, formatSteps(steps))
	return err
}

// formatSteps renders step records for a terminal.
func formatSteps(steps []schemas.StepRecord) string {
	var sb strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&sb, "Step %d  %s  (%s)\n", s.Step+1, s.URL, s.Duration.Round(time.Millisecond))
		if s.Evaluation != "" {
			fmt.Fprintf(&sb, "  Eval:   %s\n", s.Evaluation)
		}
		if s.Memory != "" {
			fmt.Fprintf(&sb, "  Memory: %s\n", s.Memory)
		}
		if s.NextGoal != "" {
			fmt.Fprintf(&sb, "  Goal:   %s\n", s.NextGoal)
		}
		for i, a := range s.Actions {
			fmt.Fprintf(&sb, "  Action %d: %s %v\n", i+1, a.Name, a.Params)
		}
		for i, r := range s.Results {
			switch {
			case r.Error != "":
				fmt.Fprintf(&sb, "  Result %d: error: %s\n", i+1, r.Error)
			case r.ExtractedContent != "":
				fmt.Fprintf(&sb, "  Result %d: %s\n", i+1, r.ExtractedContent)
			}
		}
		if s.Error != "" {
			fmt.Fprintf(&sb, "  Step error: %s\n", s.Error)
		}
	}
	return sb.String()
}
