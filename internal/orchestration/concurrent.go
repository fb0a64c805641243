package orchestration

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/intelligencedev/queryfrontd/internal/agentruntime"
)

// Concurrent executes tasks in parallel under a shared workflow-level
// deadline (spec.md default 45s). All tasks start at once: DependsOn is not
// consulted, and internal/workflow's Registry does not reject concurrent
// workflows that declare dependencies. Tasks still running when the cap fires surface
// as agentruntime.StatusTimeout records; partial results are returned
// rather than an error, since a concurrent task's own failure is never
// fatal to the group.
func Concurrent(ctx context.Context, tasks []AgentTaskSpec, base agentruntime.Context, runtime *agentruntime.Runtime, cap time.Duration, recorder agentruntime.EventRecorder) Result {
	if cap <= 0 {
		cap = 45 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, cap)
	defer cancel()

	records := make([]agentruntime.AgentExecutionRecord, len(tasks))
	g, gctx := errgroup.WithContext(cctx)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			records[i] = runtime.Invoke(gctx, task.Agent, base, task.Model, recorder)
			return nil
		})
	}
	_ = g.Wait()

	return Result{Records: records, Failures: collectFailures(records)}
}
