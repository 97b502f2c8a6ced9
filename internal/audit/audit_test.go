package audit

import (
	"testing"
	"time"

	"github.com/riverdock/contractdesk/internal/platform/logger"
)

func TestAppendIndexesByContractTraderAndProductGroup(t *testing.T) {
	log := New(logger.New(logger.ModeDev))
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	log.Append(Record{
		RunID: "r1", ProductGroup: "ammonia", TraderID: "alice", RunKind: RunTrader,
		Contracts: []ContractSnapshot{{ID: "c1", Version: 1, Counterparty: "Koch", FileHash: "h1"}},
		Phases:    PhaseTimestamps{CompletedAt: t0},
	})
	log.Append(Record{
		RunID: "r2", ProductGroup: "urea", TraderID: "bob", RunKind: RunAuto,
		Contracts: []ContractSnapshot{{ID: "c2", Version: 1, Counterparty: "Yara", FileHash: "h2"}},
		Phases:    PhaseTimestamps{CompletedAt: t0.Add(time.Hour)},
	})

	if got := log.ByContractID("c1"); len(got) != 1 || got[0].RunID != "r1" {
		t.Fatalf("want one record for c1, got %v", got)
	}
	if got := log.ByTraderID("bob"); len(got) != 1 || got[0].RunID != "r2" {
		t.Fatalf("want one record for bob, got %v", got)
	}
	if got := log.ByProductGroup("ammonia"); len(got) != 1 {
		t.Fatalf("want one record for ammonia, got %v", got)
	}
}

func TestByTimeRangeIsHalfOpen(t *testing.T) {
	log := New(logger.New(logger.ModeDev))
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log.Append(Record{RunID: "r1", ProductGroup: "ammonia", Phases: PhaseTimestamps{CompletedAt: t0}})
	log.Append(Record{RunID: "r2", ProductGroup: "ammonia", Phases: PhaseTimestamps{CompletedAt: t0.Add(time.Hour)}})

	got := log.ByTimeRange(t0, t0.Add(time.Hour))
	if len(got) != 1 || got[0].RunID != "r1" {
		t.Fatalf("want only r1 in [t0, t0+1h), got %v", got)
	}
}

func TestComparePathsScoresExactMatchAsOne(t *testing.T) {
	auto := Record{Result: map[string]float64{"profit": 100000, "tons": 5000}}
	trader := Record{Result: map[string]float64{"profit": 100000, "tons": 5000}}
	if got := ComparePaths(auto, trader); got != 1 {
		t.Fatalf("want alignment score 1, got %v", got)
	}
}

func TestComparePathsDegradesWithDivergence(t *testing.T) {
	auto := Record{Result: map[string]float64{"profit": 100000}}
	trader := Record{Result: map[string]float64{"profit": 50000}}
	if got := ComparePaths(auto, trader); got >= 1 || got < 0 {
		t.Fatalf("want a score in [0,1) for a diverging run, got %v", got)
	}
}

func TestTraderDecisionChainIsOrderedOldestFirst(t *testing.T) {
	log := New(logger.New(logger.ModeDev))
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log.Append(Record{RunID: "later", TraderID: "alice", ProductGroup: "ammonia", Phases: PhaseTimestamps{CompletedAt: t0.Add(time.Hour)}})
	log.Append(Record{RunID: "earlier", TraderID: "alice", ProductGroup: "ammonia", Phases: PhaseTimestamps{CompletedAt: t0}})

	chain := log.TraderDecisionChain("alice")
	if len(chain) != 2 || chain[0].RunID != "earlier" || chain[1].RunID != "later" {
		t.Fatalf("want chronological order, got %v", chain)
	}
}
