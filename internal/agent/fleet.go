// internal/agent/fleet.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PipelineFactory builds an isolated pipeline for the i-th task. The returned
// cleanup function releases the pipeline's browser session and is always called.
type PipelineFactory func(ctx context.Context, i int) (*Pipeline, func(), error)

// RunAll runs every task on its own pipeline, at most concurrency at a time.
// Runs share nothing but the factory, so a failing run never affects the others.
// Results are returned in task order. The returned error is non-nil only when
// ctx was cancelled before every task could start.
func RunAll(ctx context.Context, tasks []string, concurrency int, factory PipelineFactory, logger *zap.Logger) ([]RunResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("fleet")

	results := make([]RunResult, len(tasks))
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	logger.Info("Starting runs.", zap.Int("tasks", len(tasks)), zap.Int("concurrency", concurrency))

	for i, task := range tasks {
		if err := groupCtx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			results[i] = runOne(groupCtx, i, task, factory, logger)
			return nil
		})
	}

	// Workers never return errors; a run's failure lives in its RunResult.
	_ = g.Wait()

	for i := range results {
		if results[i].State == "" {
			results[i] = RunResult{Task: tasks[i], State: StateFailed, Err: fmt.Errorf("run not started: %w", context.Cause(ctx))}
		}
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func runOne(ctx context.Context, i int, task string, factory PipelineFactory, logger *zap.Logger) RunResult {
	p, cleanup, err := factory(ctx, i)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		logger.Error("Failed to set up pipeline.", zap.Int("task_index", i), zap.Error(err))
		return RunResult{Task: task, State: StateFailed, Err: fmt.Errorf("failed to set up pipeline for task %d: %w", i, err)}
	}
	return p.Run(ctx, task)
}
