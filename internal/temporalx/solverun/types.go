// Package solverun defines the Temporal workflow and activity that run one
// SolvePipeline solve durably: a worker crash mid-solve loses only the
// in-flight activity attempt, and the workflow's activity retry policy
// re-runs the solve from scratch rather than losing the request, grounded
// on temporalx/jobrun's workflow/activity split.
package solverun

import (
	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/solver"
	"github.com/riverdock/contractdesk/internal/solvepipeline"
)

const (
	WorkflowName  = "contractdesk_solve_run"
	ActivityName  = "contractdesk_solve_run_solve"
)

// RunInput is the durable-execution equivalent of solvepipeline.Options,
// restated with only JSON/gob-serialisable fields (Temporal payloads must
// round-trip through a data converter).
type RunInput struct {
	ProductGroup       string
	TraderID           string
	RunKind            audit.RunKind
	Variables          map[string]float64
	Mode               solvepipeline.Mode
	NScenarios         uint32
	Descriptor         solver.ModelDescriptor
	SkipContractsCheck bool
	AllowStaleSolve    bool
}

// RunOutput carries the finished audit record plus a business-level error
// string. A non-empty Err means the run stopped on a NotReady readiness
// gate, a terminal business outcome that is not retried. An infeasible
// solve completes normally with an empty Err and its status in Record;
// every other failure is returned as an activity error and retried.
type RunOutput struct {
	Record audit.Record
	Err    string
}

func toOptions(in RunInput) solvepipeline.Options {
	return solvepipeline.Options{
		ProductGroup:       in.ProductGroup,
		TraderID:           in.TraderID,
		RunKind:            in.RunKind,
		Variables:          in.Variables,
		Mode:               in.Mode,
		NScenarios:         in.NScenarios,
		Descriptor:         in.Descriptor,
		SkipContractsCheck: in.SkipContractsCheck,
		AllowStaleSolve:    in.AllowStaleSolve,
	}
}
