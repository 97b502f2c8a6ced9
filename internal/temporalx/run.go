package temporalx

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/riverdock/contractdesk/internal/temporalx/solverun"
)

// StartRun kicks off one durable solve on tc and blocks for its result.
// workflowID should be stable per logical run (e.g. the caller's own
// request ID) so a retried client call against an already-running workflow
// attaches to it instead of starting a duplicate.
func StartRun(ctx context.Context, tc temporalsdkclient.Client, workflowID string, in solverun.RunInput) (solverun.RunOutput, error) {
	if tc == nil {
		return solverun.RunOutput{}, fmt.Errorf("temporalx: client is not configured")
	}
	cfg := LoadConfig()
	run, err := tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: cfg.TaskQueue,
	}, solverun.WorkflowName, in)
	if err != nil {
		return solverun.RunOutput{}, fmt.Errorf("temporalx: start workflow: %w", err)
	}

	var out solverun.RunOutput
	if err := run.Get(ctx, &out); err != nil {
		return solverun.RunOutput{}, err
	}
	return out, nil
}
