package index

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/platform/dbctx"
	"github.com/riverdock/contractdesk/internal/platform/logger"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	x := New(db, logger.New(logger.ModeDev))
	if err := x.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return x
}

func TestRecordAndQueryByDimensions(t *testing.T) {
	x := newTestIndex(t)
	dbc := dbctx.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := audit.Record{
		RunID: "r1", ProductGroup: "ammonia", TraderID: "alice", RunKind: audit.RunTrader,
		ResultStatus: audit.ResultOptimal,
		Contracts:    []audit.ContractSnapshot{{ID: "c1", Version: 1, Counterparty: "Koch", FileHash: "h1"}},
		Result:       map[string]float64{"profit": 100000},
		Phases:       audit.PhaseTimestamps{StartedAt: t0, CompletedAt: t0.Add(time.Minute)},
	}
	if err := x.Record(dbc, rec); err != nil {
		t.Fatalf("record: %v", err)
	}

	byContract, err := x.ByContractID(dbc, "c1")
	if err != nil || len(byContract) != 1 || byContract[0] != "r1" {
		t.Fatalf("want [r1] for c1, got %v err %v", byContract, err)
	}

	byTrader, err := x.ByTraderID(dbc, "alice")
	if err != nil || len(byTrader) != 1 {
		t.Fatalf("want one row for alice, got %v err %v", byTrader, err)
	}

	byGroup, err := x.ByProductGroup(dbc, "ammonia")
	if err != nil || len(byGroup) != 1 {
		t.Fatalf("want one row for ammonia, got %v err %v", byGroup, err)
	}

	byRange, err := x.ByTimeRange(dbc, t0, t0.Add(time.Hour))
	if err != nil || len(byRange) != 1 {
		t.Fatalf("want one row in range, got %v err %v", byRange, err)
	}
}

func TestRebuildReplacesContents(t *testing.T) {
	x := newTestIndex(t)
	dbc := dbctx.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := x.Record(dbc, audit.Record{RunID: "stale", ProductGroup: "ammonia", Phases: audit.PhaseTimestamps{CompletedAt: t0}}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	fresh := []audit.Record{
		{RunID: "fresh1", ProductGroup: "urea", Phases: audit.PhaseTimestamps{CompletedAt: t0}},
	}
	if err := x.Rebuild(dbc, fresh); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	byGroup, err := x.ByProductGroup(dbc, "ammonia")
	if err != nil || len(byGroup) != 0 {
		t.Fatalf("want ammonia cleared after rebuild, got %v err %v", byGroup, err)
	}
	byGroup, err = x.ByProductGroup(dbc, "urea")
	if err != nil || len(byGroup) != 1 {
		t.Fatalf("want urea repopulated after rebuild, got %v err %v", byGroup, err)
	}
}
