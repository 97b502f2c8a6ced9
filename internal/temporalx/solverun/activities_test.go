package solverun

import (
	"context"
	"testing"

	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/solvepipeline"
)

type fakePipeline struct {
	rec audit.Record
	err error
}

func (f fakePipeline) Run(ctx context.Context, opts solvepipeline.Options) (audit.Record, error) {
	return f.rec, f.err
}

func TestRunSolveReturnsRecordOnSuccess(t *testing.T) {
	a := &Activities{Pipeline: fakePipeline{rec: audit.Record{RunID: "r1", ResultStatus: audit.ResultOptimal}}}
	out, err := a.RunSolve(context.Background(), RunInput{ProductGroup: "ammonia"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Record.ResultStatus != audit.ResultOptimal || out.Err != "" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestRunSolveFoldsNotReadyIntoOutputWithoutGoError(t *testing.T) {
	a := &Activities{Pipeline: fakePipeline{err: errs.NotReadyErr([]string{"review: 1 contract pending"})}}
	out, err := a.RunSolve(context.Background(), RunInput{ProductGroup: "ammonia"})
	if err != nil {
		t.Fatalf("want a nil Go error so Temporal doesn't retry a not_ready result, got %v", err)
	}
	if out.Err == "" {
		t.Fatalf("want the not_ready failure recorded on RunOutput.Err")
	}
}

func TestRunSolvePropagatesUnexpectedErrorsForRetry(t *testing.T) {
	a := &Activities{Pipeline: fakePipeline{err: errs.New(errs.SolverCrashed, "subprocess exited", nil)}}
	_, err := a.RunSolve(context.Background(), RunInput{ProductGroup: "ammonia"})
	if err == nil {
		t.Fatalf("want a solver_crashed failure to surface as a Go error so Temporal retries it")
	}
}
