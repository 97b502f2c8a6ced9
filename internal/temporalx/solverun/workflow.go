package solverun

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow runs one durable solve: a single activity invocation wrapping
// solvepipeline.Pipeline.Run. Unlike the teacher's jobrun workflow, this
// has no multi-tick loop to drive: SolvePipeline's phases complete
// synchronously within one activity attempt, so durability here means
// "Temporal retries the whole solve if the worker process dies mid-run",
// not "resume from the last completed phase".
func Workflow(ctx workflow.Context, in RunInput) (RunOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var out RunOutput
	err := workflow.ExecuteActivity(ctx, ActivityName, in).Get(ctx, &out)
	return out, err
}
