// Package audit implements the AuditLog: an immutable, append-only record
// of every solve, indexed by contract, trader, time range, and product
// group, grounded on the copy-on-write snapshot-registry style of
// internal/registry (atomic.Pointer swap under a single writer lock)
// rather than any one teacher file, since the teacher has no equivalent
// append-only ledger.
package audit

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riverdock/contractdesk/internal/platform/logger"
)

// RunKind distinguishes an unattended scheduled solve from one a trader
// triggered directly, the two legs compare_paths aligns.
type RunKind string

const (
	RunAuto   RunKind = "auto"
	RunTrader RunKind = "trader"
)

// ResultStatus mirrors the solver's response status, plus "error" for a
// crashed or otherwise-failed invocation that never reached the solver.
type ResultStatus string

const (
	ResultOptimal    ResultStatus = "optimal"
	ResultInfeasible ResultStatus = "infeasible"
	ResultError      ResultStatus = "error"
)

// ContractSnapshot freezes the identity of one contract as it stood when a
// solve consumed it.
type ContractSnapshot struct {
	ID           string
	Version      int
	Counterparty string
	FileHash     string
}

// VariableSnapshot freezes one solver variable's value and the timestamp
// of the contract clause (or default frame) it was sourced from.
type VariableSnapshot struct {
	Name       string
	Value      float64
	SourcedAt  time.Time
	SourceNote string // e.g. "PRICE/c123" or "frame_default"
}

// PhaseTimestamps are the five named points in one solve's lifecycle.
type PhaseTimestamps struct {
	StartedAt            time.Time
	ContractsCheckedAt    time.Time
	IngestionCompletedAt time.Time
	SolveStartedAt       time.Time
	CompletedAt          time.Time
}

// Record is one immutable AuditLog entry.
type Record struct {
	RunID         string
	ProductGroup  string
	TraderID      string
	RunKind       RunKind
	Contracts     []ContractSnapshot
	Variables     []VariableSnapshot
	ResultStatus  ResultStatus
	Result        map[string]float64 // flattened scalar solver outputs (profit, tons, vessels, cost, eff_barge)
	ContractsStale   bool
	BlocksSubmission bool
	Issues           []string
	Phases           PhaseTimestamps
}

// Log is the AuditLog: append-only, single-writer, snapshot-read.
type Log struct {
	log *logger.Logger

	writeMu sync.Mutex
	cur     atomic.Pointer[[]Record]

	byContract     map[string][]int
	byTrader       map[string][]int
	byProductGroup map[string][]int
}

// New builds an empty Log.
func New(log *logger.Logger) *Log {
	l := &Log{
		log:            log.With("component", "audit"),
		byContract:     make(map[string][]int),
		byTrader:       make(map[string][]int),
		byProductGroup: make(map[string][]int),
	}
	empty := []Record{}
	l.cur.Store(&empty)
	return l
}

// Append adds rec to the log. Records are never mutated or removed once
// appended; Append copies the current slice, appends, and swaps the
// pointer so concurrent readers never observe a half-written tail.
func (l *Log) Append(rec Record) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	prev := *l.cur.Load()
	next := make([]Record, len(prev)+1)
	copy(next, prev)
	next[len(prev)] = rec
	idx := len(prev)

	for _, cs := range rec.Contracts {
		l.byContract[cs.ID] = append(l.byContract[cs.ID], idx)
	}
	if rec.TraderID != "" {
		l.byTrader[rec.TraderID] = append(l.byTrader[rec.TraderID], idx)
	}
	l.byProductGroup[rec.ProductGroup] = append(l.byProductGroup[rec.ProductGroup], idx)

	l.cur.Store(&next)
}

func (l *Log) snapshot() []Record {
	return *l.cur.Load()
}

// All returns every record the log holds, in append order. Used to rebuild
// a secondary index (see internal/audit/index) from the authoritative log.
func (l *Log) All() []Record {
	return l.snapshot()
}

// ByContractID returns every record whose contracts include contractID, in
// append order.
func (l *Log) ByContractID(contractID string) []Record {
	all := l.snapshot()
	l.writeMu.Lock()
	idx := append([]int(nil), l.byContract[contractID]...)
	l.writeMu.Unlock()
	return pick(all, idx)
}

// ByTraderID returns every record rec.TraderID == traderID, in append order.
func (l *Log) ByTraderID(traderID string) []Record {
	all := l.snapshot()
	l.writeMu.Lock()
	idx := append([]int(nil), l.byTrader[traderID]...)
	l.writeMu.Unlock()
	return pick(all, idx)
}

// ByProductGroup returns every record for productGroup, in append order.
func (l *Log) ByProductGroup(productGroup string) []Record {
	all := l.snapshot()
	l.writeMu.Lock()
	idx := append([]int(nil), l.byProductGroup[productGroup]...)
	l.writeMu.Unlock()
	return pick(all, idx)
}

// ByTimeRange returns every record whose Phases.CompletedAt falls within
// [from, to), in append order.
func (l *Log) ByTimeRange(from, to time.Time) []Record {
	all := l.snapshot()
	out := make([]Record, 0)
	for _, r := range all {
		if !r.Phases.CompletedAt.Before(from) && r.Phases.CompletedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out
}

func pick(all []Record, idx []int) []Record {
	out := make([]Record, 0, len(idx))
	for _, i := range idx {
		if i < len(all) {
			out = append(out, all[i])
		}
	}
	return out
}

// TraderDecisionChain returns every solve a given trader ran, oldest
// first, as the sequence of decisions that led to the book's current
// state.
func (l *Log) TraderDecisionChain(traderID string) []Record {
	recs := l.ByTraderID(traderID)
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Phases.CompletedAt.Before(recs[j].Phases.CompletedAt)
	})
	return recs
}

// ProductGroupTimeline returns every solve for a product group, oldest
// first.
func (l *Log) ProductGroupTimeline(productGroup string) []Record {
	recs := l.ByProductGroup(productGroup)
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Phases.CompletedAt.Before(recs[j].Phases.CompletedAt)
	})
	return recs
}

// ComparePaths scores how closely a trader's manual run matches the
// automatic run it's being compared against: 1.0 means every scalar
// result field matched exactly; the score degrades linearly with relative
// difference, floored at 0.
func ComparePaths(autoRun, traderRun Record) float64 {
	if len(autoRun.Result) == 0 {
		return 0
	}
	var total, n float64
	for k, autoV := range autoRun.Result {
		traderV, ok := traderRun.Result[k]
		if !ok {
			continue
		}
		n++
		if autoV == 0 && traderV == 0 {
			total++
			continue
		}
		denom := math.Abs(autoV)
		if denom == 0 {
			denom = math.Abs(traderV)
		}
		diff := math.Abs(autoV-traderV) / denom
		score := 1 - diff
		if score < 0 {
			score = 0
		}
		total += score
	}
	if n == 0 {
		return 0
	}
	return total / n
}
