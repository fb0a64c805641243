// Package orchestration implements the three composition patterns from
// spec.md §4.8 — Sequential, Concurrent, Handoff — over a list of agent
// tasks and a shared invocation context. Errors within one agent never
// propagate as Go errors here; they are already captured into an
// agentruntime.AgentExecutionRecord by the time orchestration sees them.
package orchestration

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/intelligencedev/queryfrontd/internal/agentruntime"
)

// AgentTaskSpec is one task of a workflow: the agent to run, the model to
// price it against, and the key its output is filed under for later tasks
// to read out of Context.Prior. Optional tasks are recorded-and-skipped on
// failure instead of terminating the workflow (spec.md §4.8 default:
// required=true).
type AgentTaskSpec struct {
	AgentID    string
	Agent      agentruntime.Agent
	Model      string
	OutputsKey string
	Optional   bool
	DependsOn  []string // must be empty for Concurrent tasks
}

// Result is what Sequential and Concurrent return: the per-task execution
// records in invocation order, whether a required failure cut the workflow
// short, and an aggregated view of every non-success record (nil when none)
// for callers that want one diagnostic error rather than walking Records.
type Result struct {
	Records    []agentruntime.AgentExecutionRecord
	Terminated bool
	Failures   *multierror.Error
}

// LastSuccessfulOutput returns the text of the last successful record, used
// as the response when a workflow declares no synthesis step.
func (r Result) LastSuccessfulOutput() (agentruntime.AgentOutput, bool) {
	for i := len(r.Records) - 1; i >= 0; i-- {
		if r.Records[i].Status == agentruntime.StatusSuccess {
			return r.Records[i].Output, true
		}
	}
	return agentruntime.AgentOutput{}, false
}

// collectFailures wraps every non-success record's error into one
// *multierror.Error, in record order. Timeouts surface their context error
// under the failing agent's id.
func collectFailures(records []agentruntime.AgentExecutionRecord) *multierror.Error {
	var merr *multierror.Error
	for _, rec := range records {
		if rec.Status == agentruntime.StatusSuccess {
			continue
		}
		err := rec.Err
		if err == nil {
			err = fmt.Errorf("no error captured")
		}
		merr = multierror.Append(merr, fmt.Errorf("%s: %s: %w", rec.AgentID, rec.Status, err))
	}
	return merr
}
