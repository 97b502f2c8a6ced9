package temporalx

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/riverdock/contractdesk/internal/platform/envutil"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/temporalx/solverun"
)

// Runner hosts a Temporal worker polling cfg.TaskQueue for solverun
// workflows and activities, grounded on temporalworker/runner.go trimmed
// to contractdesk's single workflow.
type Runner struct {
	log  *logger.Logger
	tc   temporalsdkclient.Client
	acts *solverun.Activities
}

// NewRunner builds a Runner. tc must be non-nil (callers should skip
// starting durable-execution mode entirely when NewClient returned nil).
func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, acts *solverun.Activities) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporalx: client is not configured")
	}
	if acts == nil || acts.Pipeline == nil {
		return nil, fmt.Errorf("temporalx: worker missing a wired Pipeline")
	}
	return &Runner{log: log, tc: tc, acts: acts}, nil
}

// Start registers the solverun workflow/activity and polls cfg.TaskQueue
// until ctx is canceled.
func (r *Runner) Start(ctx context.Context) error {
	cfg := LoadConfig()
	concurrency := envutil.Int("TEMPORAL_WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}

	w := worker.New(r.tc, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	w.RegisterWorkflowWithOptions(solverun.Workflow, workflow.RegisterOptions{Name: solverun.WorkflowName})
	w.RegisterActivityWithOptions(r.acts.RunSolve, activity.RegisterOptions{Name: solverun.ActivityName})

	if err := w.Start(); err != nil {
		return fmt.Errorf("temporalx: worker start: %w", err)
	}
	if r.log != nil {
		r.log.Infow("temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}
