package orchestration

import (
	"context"

	"github.com/intelligencedev/queryfrontd/internal/agentruntime"
)

// Sequential executes tasks in declared order. Each task sees base.Prior
// merged with the outputs of every task that ran before it, keyed by
// OutputsKey. A failing task marked Optional is recorded and skipped; a
// failing required task terminates the run and Result.Terminated is true.
func Sequential(ctx context.Context, tasks []AgentTaskSpec, base agentruntime.Context, runtime *agentruntime.Runtime, recorder agentruntime.EventRecorder) Result {
	prior := make(map[string]agentruntime.AgentOutput, len(base.Prior)+len(tasks))
	for k, v := range base.Prior {
		prior[k] = v
	}

	records := make([]agentruntime.AgentExecutionRecord, 0, len(tasks))
	for _, task := range tasks {
		invCtx := base
		invCtx.Prior = prior

		rec := runtime.Invoke(ctx, task.Agent, invCtx, task.Model, recorder)
		records = append(records, rec)

		if rec.Status != agentruntime.StatusSuccess {
			if !task.Optional {
				return Result{Records: records, Terminated: true, Failures: collectFailures(records)}
			}
			continue
		}
		if task.OutputsKey != "" {
			prior[task.OutputsKey] = rec.Output
		}
	}
	return Result{Records: records, Failures: collectFailures(records)}
}
