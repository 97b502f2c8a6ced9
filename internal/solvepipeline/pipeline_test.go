package solvepipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/bridge"
	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/readiness"
	"github.com/riverdock/contractdesk/internal/solver"
)

type fakeStore struct{ active []*domain.Contract }

func (f fakeStore) ListActiveSet(productGroup string) []*domain.Contract { return f.active }

type fakeGate struct{ result readiness.Result }

func (f fakeGate) Check(productGroup string) readiness.Result { return f.result }

type fakeBridge struct {
	calledWhatIf bool
	variables    map[string]float64
	err          error
}

func (f *fakeBridge) Apply(baseline map[string]float64, productGroup string, activeSet []*domain.Contract, whatIf bool) (bridge.Result, error) {
	f.calledWhatIf = whatIf
	if f.err != nil {
		return bridge.Result{}, f.err
	}
	return bridge.Result{Bounds: bridge.BoundResult{Variables: f.variables}}, nil
}

type fakeSolver struct {
	solveResult solver.SolveResult
	err         error
}

func (f fakeSolver) Solve(ctx context.Context, productGroup string, desc solver.ModelDescriptor, variables map[string]float64) (solver.SolveResult, error) {
	return f.solveResult, f.err
}

func (f fakeSolver) MonteCarlo(ctx context.Context, productGroup string, desc solver.ModelDescriptor, variables map[string]float64, n uint32) (solver.MonteCarloResult, error) {
	return solver.MonteCarloResult{}, f.err
}

type fakeAudit struct{ recorded []audit.Record }

func (f *fakeAudit) Append(rec audit.Record) { f.recorded = append(f.recorded, rec) }

func TestRunRecordsOptimalSolve(t *testing.T) {
	al := &fakeAudit{}
	br := &fakeBridge{variables: map[string]float64{"price": 335}}
	sv := fakeSolver{solveResult: solver.SolveResult{Status: solver.StatusOptimal, Profit: 100000}}
	p := New(logger.New(logger.ModeDev), fakeStore{}, nil, fakeGate{result: readiness.Result{Ready: true}}, br, sv, al)

	rec, err := p.Run(context.Background(), Options{ProductGroup: "ammonia"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ResultStatus != audit.ResultOptimal {
		t.Fatalf("want optimal, got %s", rec.ResultStatus)
	}
	if len(al.recorded) != 1 {
		t.Fatalf("want one audit record, got %d", len(al.recorded))
	}
	if !br.calledWhatIf {
		t.Fatalf("want the pipeline to bypass the bridge's own readiness gate (it already decided)")
	}
}

func TestRunRefusesOnFreshnessFailureWithoutAllowStale(t *testing.T) {
	al := &fakeAudit{}
	gate := fakeGate{result: readiness.Result{Ready: false, Issues: []readiness.Issue{{Level: readiness.LevelFreshness, Message: "stale"}}}}
	p := New(logger.New(logger.ModeDev), fakeStore{}, nil, gate, &fakeBridge{}, fakeSolver{}, al)

	_, err := p.Run(context.Background(), Options{ProductGroup: "ammonia"})
	if err == nil {
		t.Fatalf("want a NotReady error when freshness fails and stale solves aren't allowed")
	}
}

func TestRunProceedsOnReviewIssueAndRecordsBlocksSubmission(t *testing.T) {
	al := &fakeAudit{}
	gate := fakeGate{result: readiness.Result{Ready: false, Issues: []readiness.Issue{{Level: readiness.LevelReview, Message: "1 contract pending"}}}}
	sv := fakeSolver{solveResult: solver.SolveResult{Status: solver.StatusOptimal}}
	p := New(logger.New(logger.ModeDev), fakeStore{}, nil, gate, &fakeBridge{}, sv, al)

	rec, err := p.Run(context.Background(), Options{ProductGroup: "ammonia"})
	if err != nil {
		t.Fatalf("want the solve to still run despite a non-freshness readiness issue, got %v", err)
	}
	if !rec.BlocksSubmission {
		t.Fatalf("want blocks_submission=true")
	}
	if rec.ContractsStale {
		t.Fatalf("want contracts_stale=false for a review-only issue")
	}
}

func TestRunAllowsStaleSolveWhenExplicitlyRequested(t *testing.T) {
	al := &fakeAudit{}
	gate := fakeGate{result: readiness.Result{Ready: false, Issues: []readiness.Issue{{Level: readiness.LevelFreshness, Message: "stale"}}}}
	sv := fakeSolver{solveResult: solver.SolveResult{Status: solver.StatusOptimal}}
	p := New(logger.New(logger.ModeDev), fakeStore{}, nil, gate, &fakeBridge{}, sv, al)

	rec, err := p.Run(context.Background(), Options{ProductGroup: "ammonia", AllowStaleSolve: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.ContractsStale {
		t.Fatalf("want contracts_stale=true recorded on the audit")
	}
}

// fakeScanner simulates DeltaScan either succeeding or failing with a
// ScannerCrashed-style error, as if the subprocess died mid-scan.
type fakeScanner struct{ err error }

func (f fakeScanner) DeltaScan(ctx context.Context, productGroup string) error { return f.err }

func TestRunRecordsInfeasibleSolve(t *testing.T) {
	// Conflicting bounds: contract A requires inv_don >= 5000, contract B
	// requires inv_don <= 3000. The bridge still applies both bounds (it
	// never rejects a contract on its own), leaving the solver to report
	// the resulting empty feasible interval as infeasible.
	al := &fakeAudit{}
	contracts := []*domain.Contract{
		{ID: "a", Counterparty: "Koch", FileHash: "ha"},
		{ID: "b", Counterparty: "Cargill", FileHash: "hb"},
	}
	br := &fakeBridge{variables: map[string]float64{"inv_don": 5000}}
	sv := fakeSolver{solveResult: solver.SolveResult{Status: solver.StatusInfeasible}}
	p := New(logger.New(logger.ModeDev), fakeStore{active: contracts}, nil, fakeGate{result: readiness.Result{Ready: true}}, br, sv, al)

	rec, err := p.Run(context.Background(), Options{ProductGroup: "ammonia"})
	if err != nil {
		t.Fatalf("an infeasible solve is not a pipeline error, got %v", err)
	}
	if rec.ResultStatus != audit.ResultInfeasible {
		t.Fatalf("want infeasible, got %s", rec.ResultStatus)
	}
	if len(rec.Contracts) != 2 {
		t.Fatalf("want both conflicting contracts recorded on the audit, got %d", len(rec.Contracts))
	}
	if len(al.recorded) != 1 {
		t.Fatalf("want one audit record even though the solve was infeasible, got %d", len(al.recorded))
	}
}

func TestRunDowngradesToStaleSolveOnScannerCrash(t *testing.T) {
	al := &fakeAudit{}
	scanErr := errs.New(errs.ScannerCrashed, "subprocess exited", nil)
	scan := fakeScanner{err: scanErr}
	sv := fakeSolver{solveResult: solver.SolveResult{Status: solver.StatusOptimal, Profit: 100000}}
	p := New(logger.New(logger.ModeDev), fakeStore{}, scan, fakeGate{result: readiness.Result{Ready: true}}, &fakeBridge{}, sv, al)

	rec, err := p.Run(context.Background(), Options{ProductGroup: "ammonia"})
	if err != nil {
		t.Fatalf("a scanner crash downgrades to a stale solve rather than failing it, got %v", err)
	}
	if !rec.ContractsStale {
		t.Fatalf("want contracts_stale=true after a scanner crash")
	}
	if rec.ResultStatus != audit.ResultOptimal {
		t.Fatalf("want the solve to still complete, got %s", rec.ResultStatus)
	}
	found := false
	for _, issue := range rec.Issues {
		if strings.Contains(issue, string(errs.ScannerCrashed)) {
			found = true
		}
	}
	if !found {
		t.Fatalf("want the audit's issues to record the scanner_crashed reason, got %v", rec.Issues)
	}
	if len(al.recorded) != 1 {
		t.Fatalf("want one audit record, got %d", len(al.recorded))
	}
}

func TestRunReleasesProductGroupAfterCompletion(t *testing.T) {
	al := &fakeAudit{}
	sv := fakeSolver{solveResult: solver.SolveResult{Status: solver.StatusOptimal}}
	p := New(logger.New(logger.ModeDev), fakeStore{}, nil, fakeGate{result: readiness.Result{Ready: true}}, &fakeBridge{}, sv, al)

	done := make(chan struct{})
	go func() {
		_, _ = p.Run(context.Background(), Options{ProductGroup: "ammonia"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("first run never completed")
	}

	_, err := p.Run(context.Background(), Options{ProductGroup: "ammonia"})
	if err != nil {
		t.Fatalf("second run after the first completed should succeed, got %v", err)
	}
}
