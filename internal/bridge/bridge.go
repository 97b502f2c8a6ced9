// Package bridge implements ConstraintBridge: projecting the approved,
// active set of contracts onto solver variable bounds and a penalty
// schedule, plus an open-book aggregation view. Every function here is a
// pure projection over its inputs; the bridge never mutates the store, no
// direct teacher analogue exists for the arithmetic itself (grounded on the
// pack's general preference for small pure "policy to number" functions
// over a single mutation).
package bridge

import (
	"fmt"
	"math"
	"sort"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/readiness"
)

// ReadinessChecker is the subset of readiness.Gate the bridge depends on.
type ReadinessChecker interface {
	Check(productGroup string) readiness.Result
}

// Decision records a non-trivial choice the bridge made while folding
// multiple clauses onto one parameter: which clause it applied and which it
// skipped, and why.
type Decision struct {
	Parameter string
	Applied   string // "<contract_id>/<clause_id>"
	Skipped   []string
	Reason    string
}

// BoundResult is the bridge's bound-projection output.
type BoundResult struct {
	Variables map[string]float64
	Decisions []Decision
}

// OpenBook is the bridge's open-book aggregation output.
type OpenBook struct {
	TotalPurchaseObligation float64
	TotalSaleObligation     float64
	NetOpenPosition         float64
	TotalPenaltyExposure    float64
}

// Result is the bridge's full output: bounds and penalty schedule are kept
// as separate fields per the system's design notes ("the bridge's output is
// a pair, not a merged blob") rather than folded together.
type Result struct {
	Bounds          BoundResult
	PenaltySchedule []domain.PenaltyScheduleEntry
	OpenBook        OpenBook
}

type paramClause struct {
	contract *domain.Contract
	clause   domain.Clause
}

// Bridge is the ConstraintBridge.
type Bridge struct {
	log       *logger.Logger
	frames    *FrameRegistry
	readiness ReadinessChecker
}

// New builds a Bridge bound to a frame registry and readiness checker.
func New(log *logger.Logger, frames *FrameRegistry, readinessGate ReadinessChecker) *Bridge {
	return &Bridge{log: log.With("component", "bridge"), frames: frames, readiness: readinessGate}
}

// Apply projects activeSet onto baseline's variables for productGroup,
// tightening only (never loosening) per clause operator, and derives the
// penalty schedule and open-book summary alongside it. whatIf bypasses the
// readiness gate for exploratory calls that must never reach live trading.
func (b *Bridge) Apply(baseline map[string]float64, productGroup string, activeSet []*domain.Contract, whatIf bool) (Result, error) {
	if !whatIf && b.readiness != nil {
		res := b.readiness.Check(productGroup)
		if !res.Ready {
			return Result{}, errs.NotReadyErr(issueMessages(res.Issues))
		}
	}

	frame, _ := b.frames.Frame(productGroup)
	variables := make(map[string]float64, len(frame.Defaults)+len(baseline))
	for k, v := range frame.Defaults {
		variables[k] = v
	}
	for k, v := range baseline {
		variables[k] = v
	}

	byParam := map[string][]paramClause{}
	for _, c := range activeSet {
		for _, cl := range c.Clauses {
			if !cl.IsBoundShaped() {
				continue
			}
			if _, resolvable := variables[cl.Parameter]; !resolvable {
				continue // applicability filter: not one of this product group's solver variables
			}
			byParam[cl.Parameter] = append(byParam[cl.Parameter], paramClause{contract: c, clause: cl})
		}
	}

	params := make([]string, 0, len(byParam))
	for p := range byParam {
		params = append(params, p)
	}
	sort.Strings(params)

	var decisions []Decision
	for _, param := range params {
		group := byParam[param]
		appliedIdx, skippedIdx, reason := resolveGroup(group)
		for _, i := range appliedIdx {
			variables[param] = applyOperator(variables[param], group[i].clause)
		}
		if len(skippedIdx) > 0 {
			d := Decision{Parameter: param, Reason: reason}
			for _, i := range appliedIdx {
				d.Applied = fmt.Sprintf("%s/%s", group[i].contract.ID, group[i].clause.ClauseID)
			}
			for _, i := range skippedIdx {
				d.Skipped = append(d.Skipped, fmt.Sprintf("%s/%s", group[i].contract.ID, group[i].clause.ClauseID))
			}
			decisions = append(decisions, d)
		}
	}

	schedule := penaltySchedule(activeSet)
	book := openBook(activeSet, schedule)

	return Result{
		Bounds:          BoundResult{Variables: variables, Decisions: decisions},
		PenaltySchedule: schedule,
		OpenBook:        book,
	}, nil
}

// resolveGroup decides which clauses in one parameter's group actually get
// applied: an equality clause always wins outright (ties broken by highest
// contract version, the most recently ingested); failing that, a genuine
// floor/ceiling conflict (max(>=) > min(<=)) is resolved the same way,
// applying only the winner; otherwise every clause in the group is folded.
func resolveGroup(group []paramClause) (applied, skipped []int, reason string) {
	var eqIdx, gteIdx, lteIdx []int
	for i, pc := range group {
		switch pc.clause.Operator {
		case domain.OpEQ:
			eqIdx = append(eqIdx, i)
		case domain.OpGTE:
			gteIdx = append(gteIdx, i)
		case domain.OpLTE:
			lteIdx = append(lteIdx, i)
		}
	}

	if len(eqIdx) > 0 {
		winner := latestOf(group, eqIdx)
		return []int{winner}, allExcept(len(group), winner), "equality clause takes precedence"
	}

	if len(gteIdx) > 0 && len(lteIdx) > 0 {
		maxGTE := maxValueOf(group, gteIdx)
		minLTE := minValueOf(group, lteIdx)
		if maxGTE > minLTE {
			winner := latestOf(group, append(append([]int{}, gteIdx...), lteIdx...))
			return []int{winner}, allExcept(len(group), winner), "conflicting floor/ceiling; applying most recently ingested clause only"
		}
	}

	all := make([]int, len(group))
	for i := range group {
		all[i] = i
	}
	return all, nil, ""
}

func latestOf(group []paramClause, idx []int) int {
	best := idx[0]
	for _, i := range idx[1:] {
		if group[i].contract.Version > group[best].contract.Version {
			best = i
		}
	}
	return best
}

func maxValueOf(group []paramClause, idx []int) float64 {
	max := group[idx[0]].clause.Value
	for _, i := range idx[1:] {
		if group[i].clause.Value > max {
			max = group[i].clause.Value
		}
	}
	return max
}

func minValueOf(group []paramClause, idx []int) float64 {
	min := group[idx[0]].clause.Value
	for _, i := range idx[1:] {
		if group[i].clause.Value < min {
			min = group[i].clause.Value
		}
	}
	return min
}

func allExcept(n, winner int) []int {
	out := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		if i != winner {
			out = append(out, i)
		}
	}
	return out
}

func applyOperator(current float64, cl domain.Clause) float64 {
	switch cl.Operator {
	case domain.OpGTE:
		return math.Max(current, cl.Value)
	case domain.OpLTE:
		return math.Min(current, cl.Value)
	case domain.OpEQ:
		return cl.Value
	case domain.OpBetween:
		v := math.Max(current, cl.Value)
		return math.Min(v, cl.ValueUpper)
	default:
		return current
	}
}

// penaltySchedule extracts the three named penalty rates from each active
// contract, emitting one entry per rate actually present.
func penaltySchedule(activeSet []*domain.Contract) []domain.PenaltyScheduleEntry {
	var out []domain.PenaltyScheduleEntry
	for _, c := range activeSet {
		openQty := 0.0
		if c.OpenPosition != nil {
			openQty = *c.OpenPosition
		}
		for _, cl := range c.Clauses {
			var pt domain.PenaltyType
			var rate float64
			switch cl.ClauseID {
			case "PENALTY_VOLUME_SHORTFALL":
				pt, rate = domain.PenaltyVolumeShortfall, cl.PenaltyPerUnit
			case "PENALTY_LATE_DELIVERY":
				pt, rate = domain.PenaltyLateDelivery, cl.PenaltyPerUnit
			case "DEMURRAGE":
				pt, rate = domain.PenaltyDemurrage, cl.Value
			default:
				continue
			}
			if rate == 0 {
				continue
			}
			out = append(out, domain.PenaltyScheduleEntry{
				Counterparty: c.Counterparty,
				PenaltyType:  pt,
				RatePerTon:   rate,
				OpenQty:      openQty,
				MaxExposure:  rate * openQty,
				Incoterm:     c.Incoterm,
				Direction:    c.CounterpartyType,
			})
		}
	}
	return out
}

// openBook sums per-direction open quantities across the active set.
func openBook(activeSet []*domain.Contract, schedule []domain.PenaltyScheduleEntry) OpenBook {
	var book OpenBook
	for _, c := range activeSet {
		if c.OpenPosition == nil {
			continue
		}
		switch c.CounterpartyType {
		case domain.Supplier:
			book.TotalPurchaseObligation += *c.OpenPosition
		case domain.Customer:
			book.TotalSaleObligation += *c.OpenPosition
		}
	}
	book.NetOpenPosition = book.TotalPurchaseObligation - book.TotalSaleObligation
	for _, e := range schedule {
		book.TotalPenaltyExposure += e.MaxExposure
	}
	return book
}

func issueMessages(issues []readiness.Issue) []string {
	out := make([]string, len(issues))
	for i, iss := range issues {
		out[i] = fmt.Sprintf("%s: %s", iss.Level, iss.Message)
	}
	return out
}
