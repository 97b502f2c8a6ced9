package solverun

import (
	"context"

	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/solvepipeline"
)

// Pipeline is the subset of solvepipeline.Pipeline the activity depends on.
type Pipeline interface {
	Run(ctx context.Context, opts solvepipeline.Options) (audit.Record, error)
}

// Activities bundles the dependencies the solverun activity needs.
type Activities struct {
	Log      *logger.Logger
	Pipeline Pipeline
}

// RunSolve executes one solve via the wrapped in-process Pipeline. A
// NotReady result is a terminal business outcome, not a transient
// failure, so it is folded into RunOutput.Err and returned with a nil Go
// error: Temporal would otherwise retry a NotReady solve up to the
// workflow's retry limit to no effect, since
// the readiness state that caused it won't change just because the
// activity reran. Every other error (solver crash, context cancellation,
// unexpected panic recovered by the Temporal worker) is returned as a Go
// error so Temporal's normal activity retry policy applies.
func (a *Activities) RunSolve(ctx context.Context, in RunInput) (RunOutput, error) {
	rec, err := a.Pipeline.Run(ctx, toOptions(in))
	if err == nil {
		return RunOutput{Record: rec}, nil
	}

	if errs.KindOf(err) == errs.NotReady {
		if a.Log != nil {
			a.Log.Infow("solve run not ready; returning as terminal business result", "product_group", in.ProductGroup)
		}
		return RunOutput{Record: rec, Err: err.Error()}, nil
	}
	return RunOutput{Record: rec}, err
}
