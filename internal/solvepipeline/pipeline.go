// Package solvepipeline implements SolvePipeline: the strictly sequential
// run of a freshness check, ConstraintBridge projection, SolverPort
// invocation, and AuditLog record for one product group, serialised per
// product group and broadcasting its phases as it goes. Grounded on the
// teacher's orchestrator engine's phase-ticking and broadcast idiom
// (jobs/orchestrator/engine.go, realtime/bus/redis_bus.go) adapted from a
// durable multi-stage job to one in-process solve run.
package solvepipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/bridge"
	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/readiness"
	"github.com/riverdock/contractdesk/internal/solver"
)

// Event is one broadcast phase notification.
type Event string

const (
	EventStarted         Event = "started"
	EventIngesting       Event = "ingesting"
	EventIngestDone       Event = "ingest_done"
	EventContractsStale   Event = "contracts_stale"
	EventSolveDone        Event = "solve_done"
	EventPipelineError    Event = "pipeline_error"
)

// Notification is one broadcast value; Detail carries event-specific
// context (e.g. the phase name for pipeline_error).
type Notification struct {
	RunID        string
	ProductGroup string
	Event        Event
	Detail       string
	ContractsStale bool
	At           time.Time
}

// Mode selects what kind of solve to run.
type Mode int

const (
	ModeSolve Mode = iota
	ModeMonteCarlo
)

// Options parameterises one Run call.
type Options struct {
	ProductGroup        string
	TraderID            string
	RunKind             audit.RunKind
	Variables           map[string]float64 // trader-edited overrides, or nil for the live baseline
	Mode                Mode
	NScenarios          uint32
	Descriptor          solver.ModelDescriptor
	SkipContractsCheck  bool
	AllowStaleSolve     bool
}

// Store is the subset of store.Store the pipeline depends on.
type Store interface {
	ListActiveSet(productGroup string) []*domain.Contract
}

// Scanner is the subset of the ingestor's delta-scan surface the pipeline
// depends on to refresh contracts before a solve.
type Scanner interface {
	DeltaScan(ctx context.Context, productGroup string) error
}

// ReadinessGate is the subset of readiness.Gate the pipeline depends on.
type ReadinessGate interface {
	Check(productGroup string) readiness.Result
}

// Bridge is the subset of bridge.Bridge the pipeline depends on.
type Bridge interface {
	Apply(baseline map[string]float64, productGroup string, activeSet []*domain.Contract, whatIf bool) (bridge.Result, error)
}

// SolverPort is the subset of solver.Port the pipeline depends on.
type SolverPort interface {
	Solve(ctx context.Context, productGroup string, desc solver.ModelDescriptor, variables map[string]float64) (solver.SolveResult, error)
	MonteCarlo(ctx context.Context, productGroup string, desc solver.ModelDescriptor, variables map[string]float64, n uint32) (solver.MonteCarloResult, error)
}

// AuditLog is the subset of audit.Log the pipeline depends on.
type AuditLog interface {
	Append(rec audit.Record)
}

// Pipeline is the SolvePipeline.
type Pipeline struct {
	log       *logger.Logger
	store     Store
	scanner   Scanner // nil means no scanner is wired; the freshness phase is skipped
	readiness ReadinessGate
	bridge    Bridge
	solverPort SolverPort
	auditLog  AuditLog
	now       func() time.Time

	mu      sync.Mutex
	running map[string]chan struct{} // one in-flight gate per product group

	subMu sync.Mutex
	subs  map[chan Notification]struct{}
}

// New builds a Pipeline.
func New(log *logger.Logger, st Store, scan Scanner, gate ReadinessGate, br Bridge, sp SolverPort, al AuditLog) *Pipeline {
	return &Pipeline{
		log:        log.With("component", "solvepipeline"),
		store:      st,
		scanner:    scan,
		readiness:  gate,
		bridge:     br,
		solverPort: sp,
		auditLog:   al,
		now:        time.Now,
		running:    make(map[string]chan struct{}),
		subs:       make(map[chan Notification]struct{}),
	}
}

// Subscribe registers a cursor that receives every Notification this
// pipeline broadcasts, across all product groups.
func (p *Pipeline) Subscribe(buffer int) chan Notification {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Notification, buffer)
	p.subMu.Lock()
	p.subs[ch] = struct{}{}
	p.subMu.Unlock()
	return ch
}

// Unsubscribe removes ch and closes it.
func (p *Pipeline) Unsubscribe(ch chan Notification) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	if _, ok := p.subs[ch]; ok {
		delete(p.subs, ch)
		close(ch)
	}
}

func (p *Pipeline) broadcast(n Notification) {
	if n.At.IsZero() {
		n.At = p.now()
	}
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for ch := range p.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Run executes one solve for opts.ProductGroup end to end: freshness
// check, bound projection, solver invocation, and audit record. At most
// one Run is in flight per product group at a time; a second caller for
// the same group waits here until the first completes.
func (p *Pipeline) Run(ctx context.Context, opts Options) (audit.Record, error) {
	gate := p.acquire(opts.ProductGroup)
	defer p.release(opts.ProductGroup, gate)

	runID := uuid.NewString()
	phases := audit.PhaseTimestamps{StartedAt: p.now()}
	p.broadcast(Notification{RunID: runID, ProductGroup: opts.ProductGroup, Event: EventStarted})

	// scannerDowngraded tracks staleness caused by the scanner boundary
	// itself failing mid-check (ScannerUnavailable/ScannerCrashed), which
	// downgrades this solve to a stale-data solve automatically rather
	// than requiring the caller to pass AllowStaleSolve: the caller asked
	// for a live solve, the scanner just couldn't deliver one this time.
	contractsStale := false
	scannerDowngraded := false
	var scannerIssue string
	if p.scanner != nil && !opts.SkipContractsCheck {
		p.broadcast(Notification{RunID: runID, ProductGroup: opts.ProductGroup, Event: EventIngesting})
		if err := p.scanner.DeltaScan(ctx, opts.ProductGroup); err != nil {
			contractsStale = true
			scannerDowngraded = true
			scannerIssue = fmt.Sprintf("contracts_check: %v", err)
			p.broadcast(Notification{RunID: runID, ProductGroup: opts.ProductGroup, Event: EventContractsStale, Detail: err.Error(), ContractsStale: true})
		} else {
			p.broadcast(Notification{RunID: runID, ProductGroup: opts.ProductGroup, Event: EventIngestDone})
		}
	}
	phases.IngestionCompletedAt = p.now()

	select {
	case <-ctx.Done():
		return audit.Record{}, ctx.Err()
	default:
	}

	readinessResult := readiness.Result{Ready: true}
	if p.readiness != nil {
		readinessResult = p.readiness.Check(opts.ProductGroup)
	}
	phases.ContractsCheckedAt = p.now()

	freshnessFailed, blockingIssues := splitIssues(readinessResult.Issues)
	if freshnessFailed {
		contractsStale = true
	}
	if freshnessFailed && !scannerDowngraded && !opts.AllowStaleSolve {
		rec := p.recordError(runID, opts, phases, "readiness", errs.NotReadyErr(issueStrings(readinessResult.Issues)))
		return rec, errs.NotReadyErr(issueStrings(readinessResult.Issues))
	}

	activeSet := p.store.ListActiveSet(opts.ProductGroup)

	bridgeResult, err := p.bridge.Apply(opts.Variables, opts.ProductGroup, activeSet, true)
	if err != nil {
		rec := p.recordError(runID, opts, phases, "bridge", err)
		p.broadcast(Notification{RunID: runID, ProductGroup: opts.ProductGroup, Event: EventPipelineError, Detail: "bridge: " + err.Error()})
		return rec, err
	}

	select {
	case <-ctx.Done():
		return audit.Record{}, ctx.Err()
	default:
	}

	phases.SolveStartedAt = p.now()
	resultStatus, resultValues, solveErr := p.invokeSolver(ctx, opts, bridgeResult.Bounds.Variables)
	phases.CompletedAt = p.now()

	issues := issueStrings(readinessResult.Issues)
	if scannerIssue != "" {
		issues = append(issues, scannerIssue)
	}
	rec := audit.Record{
		RunID:            runID,
		ProductGroup:     opts.ProductGroup,
		TraderID:         opts.TraderID,
		RunKind:          opts.RunKind,
		Contracts:        contractSnapshots(activeSet),
		Variables:        variableSnapshots(bridgeResult.Bounds.Variables, phases.SolveStartedAt),
		ResultStatus:     resultStatus,
		Result:           resultValues,
		ContractsStale:   contractsStale,
		BlocksSubmission: len(blockingIssues) > 0,
		Issues:           issues,
		Phases:           phases,
	}
	if p.auditLog != nil {
		p.auditLog.Append(rec)
	}

	if solveErr != nil {
		p.broadcast(Notification{RunID: runID, ProductGroup: opts.ProductGroup, Event: EventPipelineError, Detail: "solve: " + solveErr.Error()})
		return rec, solveErr
	}

	p.broadcast(Notification{RunID: runID, ProductGroup: opts.ProductGroup, Event: EventSolveDone, ContractsStale: contractsStale})
	return rec, nil
}

func (p *Pipeline) invokeSolver(ctx context.Context, opts Options, variables map[string]float64) (audit.ResultStatus, map[string]float64, error) {
	if opts.Mode == ModeMonteCarlo {
		res, err := p.solverPort.MonteCarlo(ctx, opts.ProductGroup, opts.Descriptor, variables, opts.NScenarios)
		if err != nil {
			return audit.ResultError, nil, err
		}
		return statusOf(res.Status), monteCarloResultMap(res), nil
	}
	res, err := p.solverPort.Solve(ctx, opts.ProductGroup, opts.Descriptor, variables)
	if err != nil {
		return audit.ResultError, nil, err
	}
	return statusOf(res.Status), solveResultMap(res), nil
}

func (p *Pipeline) recordError(runID string, opts Options, phases audit.PhaseTimestamps, phase string, err error) audit.Record {
	phases.CompletedAt = p.now()
	rec := audit.Record{
		RunID:        runID,
		ProductGroup: opts.ProductGroup,
		TraderID:     opts.TraderID,
		RunKind:      opts.RunKind,
		ResultStatus: audit.ResultError,
		Issues:       []string{fmt.Sprintf("%s: %v", phase, err)},
		Phases:       phases,
	}
	if p.auditLog != nil {
		p.auditLog.Append(rec)
	}
	return rec
}

// acquire blocks until no Run is in flight for productGroup, then claims
// the slot.
func (p *Pipeline) acquire(productGroup string) chan struct{} {
	for {
		p.mu.Lock()
		prior, busy := p.running[productGroup]
		if !busy {
			gate := make(chan struct{})
			p.running[productGroup] = gate
			p.mu.Unlock()
			return gate
		}
		p.mu.Unlock()
		<-prior
	}
}

func (p *Pipeline) release(productGroup string, gate chan struct{}) {
	p.mu.Lock()
	delete(p.running, productGroup)
	p.mu.Unlock()
	close(gate)
}

func statusOf(s solver.Status) audit.ResultStatus {
	switch s {
	case solver.StatusOptimal:
		return audit.ResultOptimal
	case solver.StatusInfeasible:
		return audit.ResultInfeasible
	default:
		return audit.ResultError
	}
}

func solveResultMap(res solver.SolveResult) map[string]float64 {
	if res.Status != solver.StatusOptimal {
		return nil
	}
	return map[string]float64{
		"profit":    res.Profit,
		"tons":      res.Tons,
		"vessels":   res.Vessels,
		"cost":      res.Cost,
		"eff_barge": res.EffBarge,
	}
}

func monteCarloResultMap(res solver.MonteCarloResult) map[string]float64 {
	if res.Status != solver.StatusOptimal {
		return nil
	}
	return map[string]float64{
		"mean":   res.Mean,
		"stddev": res.StdDev,
		"p5":     res.P5,
		"p25":    res.P25,
		"p50":    res.P50,
		"p75":    res.P75,
		"p95":    res.P95,
		"min":    res.Min,
		"max":    res.Max,
	}
}

func contractSnapshots(contracts []*domain.Contract) []audit.ContractSnapshot {
	out := make([]audit.ContractSnapshot, len(contracts))
	for i, c := range contracts {
		out[i] = audit.ContractSnapshot{ID: c.ID, Version: c.Version, Counterparty: c.Counterparty, FileHash: c.FileHash}
	}
	return out
}

func variableSnapshots(variables map[string]float64, at time.Time) []audit.VariableSnapshot {
	out := make([]audit.VariableSnapshot, 0, len(variables))
	for name, v := range variables {
		out = append(out, audit.VariableSnapshot{Name: name, Value: v, SourcedAt: at})
	}
	return out
}

// splitIssues reports whether any issue is a freshness failure, and
// returns every issue that is not (the ones that block submission without
// forcing a stale-data refusal).
func splitIssues(issues []readiness.Issue) (freshnessFailed bool, blocking []readiness.Issue) {
	for _, iss := range issues {
		if iss.Level == readiness.LevelFreshness {
			freshnessFailed = true
			continue
		}
		blocking = append(blocking, iss)
	}
	return
}

func issueStrings(issues []readiness.Issue) []string {
	out := make([]string, len(issues))
	for i, iss := range issues {
		out[i] = fmt.Sprintf("%s: %s", iss.Level, iss.Message)
	}
	return out
}
