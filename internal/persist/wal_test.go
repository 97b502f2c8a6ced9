package persist

import (
	"os"
	"testing"
	"time"

	"github.com/riverdock/contractdesk/internal/audit"
	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/store"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dir, err := os.MkdirTemp("", "contractdesk-wal-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	a, err := New(logger.New(logger.ModeDev), Config{Dir: dir, BufferSize: 8})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestEnqueueContractMutationAndVerifyAll(t *testing.T) {
	a := newTestAdapter(t)

	ev := store.ChangeEvent{
		Topic:      store.TopicIngest,
		ContractID: "c1",
		Contract:   &domain.Contract{ID: "c1", Counterparty: "Koch", ProductGroup: "ammonia", FileHash: "h1"},
		At:         time.Now(),
	}
	if err := a.EnqueueContractMutation(ev); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := a.VerifyAll(); err != nil {
		t.Fatalf("verify_all: %v", err)
	}
}

func TestRestoreReplaysContractsAndAuditRecords(t *testing.T) {
	a := newTestAdapter(t)

	c := &domain.Contract{ID: "c1", Counterparty: "Koch", ProductGroup: "ammonia", FileHash: "h1", Version: 1}
	if err := a.EnqueueContractMutation(store.ChangeEvent{Topic: store.TopicIngest, ContractID: "c1", Contract: c}); err != nil {
		t.Fatalf("enqueue contract: %v", err)
	}
	rec := audit.Record{RunID: "r1", ProductGroup: "ammonia", Phases: audit.PhaseTimestamps{CompletedAt: time.Now()}}
	if err := a.EnqueueAuditRecord(rec); err != nil {
		t.Fatalf("enqueue audit: %v", err)
	}

	feed := store.NewChangeFeed()
	st := store.New(logger.New(logger.ModeDev), feed)
	log := audit.New(logger.New(logger.ModeDev))

	if err := a.Restore(st, log); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, ok := st.Get("c1")
	if !ok || got.Counterparty != "Koch" {
		t.Fatalf("want c1 restored into the store, got %v ok=%v", got, ok)
	}
	if recs := log.ByProductGroup("ammonia"); len(recs) != 1 {
		t.Fatalf("want one restored audit record, got %v", recs)
	}
}

func TestVerifyAllDetectsTamperedFrame(t *testing.T) {
	a := newTestAdapter(t)
	if err := a.EnqueueAuditRecord(audit.Record{RunID: "r1", ProductGroup: "ammonia"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := a.logFilesSorted()
	if err != nil || len(files) != 1 {
		t.Fatalf("want one log file, got %v err %v", files, err)
	}
	raw, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("want non-empty log file")
	}
	raw[len(raw)-1] ^= 0xFF // flip a bit in the trailing digest
	if err := os.WriteFile(files[0], raw, 0o644); err != nil {
		t.Fatalf("rewrite log file: %v", err)
	}

	if err := a.VerifyAll(); err == nil {
		t.Fatalf("want a hash chain mismatch after tampering")
	}
}
