// Package readiness implements the ReadinessGate: a four-level precondition
// check (extraction, review, activation, data freshness) gating live solves
// and bound projection, grounded on the multi-level-check-with-issues-list
// shape of TemplateValidator's Findings and the teacher's orchestrator
// stage-status reporting.
package readiness

import (
	"fmt"
	"sort"
	"time"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/validator"
)

// Level names one of the four checks.
type Level string

const (
	LevelExtraction Level = "extraction"
	LevelReview     Level = "review"
	LevelActivation Level = "activation"
	LevelFreshness  Level = "freshness"
)

// Issue is one failing check, with a human-readable message.
type Issue struct {
	Level   Level
	Message string
}

// Report is the detail behind a Result, broken out per level.
type Report struct {
	ProductGroup     string
	ContractsChecked int
	ExtractionOK     bool
	ReviewOK         bool
	ActivationOK     bool
	FreshnessOK      bool
}

// Result is ReadinessGate.Check's return value.
type Result struct {
	Ready  bool
	Issues []Issue
	Report Report
}

// FreshnessSource is one upstream variable source (market, weather, river
// level feed) the freshness level checks for staleness. Polling those
// sources is out of this system's scope; only the staleness comparison is.
type FreshnessSource struct {
	Name         string
	LastUpdated  time.Time
	MaxStaleness time.Duration
}

// FreshnessProvider supplies the current freshness sources for a product
// group. A nil provider is treated as "no sources configured", which always
// passes the freshness level.
type FreshnessProvider interface {
	Sources(productGroup string) []FreshnessSource
}

// Store is the subset of store.Store the gate depends on.
type Store interface {
	ListByProductGroup(productGroup string) []*domain.Contract
}

// Validator is the subset of validator.Validator the gate depends on.
type Validator interface {
	Validate(c *domain.Contract) (validator.Report, error)
}

// Gate is the ReadinessGate.
type Gate struct {
	log       *logger.Logger
	store     Store
	validator Validator
	freshness FreshnessProvider
	now       func() time.Time
}

// New builds a Gate. freshness may be nil.
func New(log *logger.Logger, store Store, v Validator, freshness FreshnessProvider) *Gate {
	return &Gate{
		log:       log.With("component", "readiness"),
		store:     store,
		validator: v,
		freshness: freshness,
		now:       time.Now,
	}
}

// Check runs all four levels for productGroup.
func (g *Gate) Check(productGroup string) Result {
	now := g.now()
	heads := currentHeads(g.store.ListByProductGroup(productGroup))

	var issues []Issue

	extractionOK := true
	for _, c := range heads {
		rep, err := g.validator.Validate(c)
		if err != nil {
			extractionOK = false
			issues = append(issues, Issue{Level: LevelExtraction, Message: fmt.Sprintf("%s: %v", c.ID, err)})
			continue
		}
		if rep.BlocksSubmission {
			extractionOK = false
			missing := countMissingRequired(rep)
			issues = append(issues, Issue{Level: LevelExtraction, Message: fmt.Sprintf("%s: %d missing required clause(s)", c.ID, missing)})
		}
	}

	reviewOK := true
	pending := 0
	for _, c := range heads {
		if c.Status != domain.StatusApproved {
			reviewOK = false
			pending++
		}
	}
	if !reviewOK {
		issues = append(issues, Issue{Level: LevelReview, Message: fmt.Sprintf("review: %d contract pending", pending)})
	}

	activationOK := true
	for _, c := range heads {
		if c.Status != domain.StatusApproved {
			continue
		}
		if !c.SAPValidated {
			activationOK = false
			issues = append(issues, Issue{Level: LevelActivation, Message: fmt.Sprintf("%s: not SAP-validated", c.ID)})
		}
		if c.OpenPosition == nil {
			activationOK = false
			issues = append(issues, Issue{Level: LevelActivation, Message: fmt.Sprintf("%s: open position unset", c.ID)})
		}
		if c.ExpiryDate.IsZero() || !c.ExpiryDate.After(now) {
			activationOK = false
			issues = append(issues, Issue{Level: LevelActivation, Message: fmt.Sprintf("%s: expired", c.ID)})
		}
	}

	freshnessOK := true
	if g.freshness != nil {
		for _, src := range g.freshness.Sources(productGroup) {
			if now.Sub(src.LastUpdated) > src.MaxStaleness {
				freshnessOK = false
				issues = append(issues, Issue{Level: LevelFreshness, Message: fmt.Sprintf("%s stale: last updated %s", src.Name, src.LastUpdated)})
			}
		}
	}

	ready := extractionOK && reviewOK && activationOK && freshnessOK
	return Result{
		Ready:  ready,
		Issues: issues,
		Report: Report{
			ProductGroup:     productGroup,
			ContractsChecked: len(heads),
			ExtractionOK:     extractionOK,
			ReviewOK:         reviewOK,
			ActivationOK:     activationOK,
			FreshnessOK:      freshnessOK,
		},
	}
}

func countMissingRequired(rep validator.Report) int {
	n := 0
	for _, f := range rep.Findings {
		if f.Kind == validator.FindingMissingRequired {
			n++
		}
	}
	return n
}

// currentHeads reduces a product group's full version history to one
// candidate per canonical key: its highest-version contract, excluding keys
// whose head is terminally rejected (nothing live to gate there).
func currentHeads(contracts []*domain.Contract) []*domain.Contract {
	byKey := map[domain.CanonicalKey]*domain.Contract{}
	for _, c := range contracts {
		key := c.CanonicalKey()
		cur, ok := byKey[key]
		if !ok || c.Version > cur.Version {
			byKey[key] = c
		}
	}
	keys := make([]domain.CanonicalKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].NormalizedCounterparty+keys[i].ProductGroup < keys[j].NormalizedCounterparty+keys[j].ProductGroup
	})
	out := make([]*domain.Contract, 0, len(keys))
	for _, k := range keys {
		c := byKey[k]
		if c.Status == domain.StatusRejected {
			continue
		}
		out = append(out, c)
	}
	return out
}
