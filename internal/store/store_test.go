package store

import (
	"testing"
	"time"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/platform/logger"
)

func newTestStore() (*Store, *ChangeFeed) {
	feed := NewChangeFeed()
	return New(logger.New(logger.ModeDev), feed), feed
}

func baseContract(hash string) *domain.Contract {
	return &domain.Contract{
		SourceFileName: "Koch_FOB_2026.docx",
		SourceFormat:   domain.FormatDOCX,
		FileHash:       hash,
		RemoteItemID:   "item1",
		Counterparty:   "Koch Fertilizer",
		ProductGroup:   "urea",
		TemplateType:   domain.TemplatePurchase,
		Incoterm:       domain.FOB,
	}
}

func TestIngestFirstVersionIsV1(t *testing.T) {
	s, _ := newTestStore()
	out, err := s.Ingest(baseContract("h1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.NewVersion || out.Contract.Version != 1 {
		t.Fatalf("want new v1, got %+v", out)
	}
	if out.Contract.Status != domain.StatusDraft {
		t.Fatalf("want draft status on first ingest, got %s", out.Contract.Status)
	}
}

func TestReingestSameHashIsNoOp(t *testing.T) {
	s, _ := newTestStore()
	first, _ := s.Ingest(baseContract("h1"))

	out, err := s.Ingest(baseContract("h1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.NewVersion {
		t.Fatal("re-ingesting identical bytes must not create a new version")
	}
	if out.Contract.ID != first.Contract.ID {
		t.Fatal("no-op re-ingest should resolve to the same contract")
	}
	if out.Contract.VerificationStatus != domain.Verified {
		t.Fatalf("want verified after re-ingest, got %s", out.Contract.VerificationStatus)
	}
}

func TestIngestChangedHashSupersedesDraftHead(t *testing.T) {
	s, _ := newTestStore()
	first, _ := s.Ingest(baseContract("h1"))

	second, err := s.Ingest(baseContract("h2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.NewVersion || second.Contract.Version != 2 {
		t.Fatalf("want new v2, got %+v", second)
	}
	if second.Contract.PreviousHash != "h1" {
		t.Fatalf("want previous_hash chained to h1, got %s", second.Contract.PreviousHash)
	}

	prior, ok := s.Get(first.Contract.ID)
	if !ok {
		t.Fatal("expected the v1 contract to still be retrievable")
	}
	if prior.Status != domain.StatusSuperseded {
		t.Fatalf("want v1 superseded by v2 arrival (draft head), got %s", prior.Status)
	}
}

func TestApprovalSupersedesPreviouslyApprovedVersion(t *testing.T) {
	s, _ := newTestStore()
	first, _ := s.Ingest(baseContract("h1"))
	if err := s.UpdateReview(first.Contract.ID, ReviewPatch{Status: domain.StatusApproved, ReviewedBy: "legal1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, _ := s.Ingest(baseContract("h2"))
	// h1's head was approved, so ingest does not auto-supersede it; it
	// waits for the new version's approval.
	firstSnapshot, _ := s.Get(first.Contract.ID)
	if firstSnapshot.Status != domain.StatusApproved {
		t.Fatalf("approved head should survive a new draft arriving, got %s", firstSnapshot.Status)
	}

	if err := s.UpdateReview(second.Contract.ID, ReviewPatch{Status: domain.StatusApproved, ReviewedBy: "legal1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstSnapshot, _ = s.Get(first.Contract.ID)
	if firstSnapshot.Status != domain.StatusSuperseded {
		t.Fatalf("approving v2 must supersede the previously approved v1, got %s", firstSnapshot.Status)
	}
}

func TestListActiveSetFiltersOnFourConditions(t *testing.T) {
	s, _ := newTestStore()
	c := baseContract("h1")
	out, _ := s.Ingest(c)

	active := s.ListActiveSet("urea")
	if len(active) != 0 {
		t.Fatal("a draft contract with no expiry/open position must not be active")
	}

	openQty := 5000.0
	future := time.Now().Add(365 * 24 * time.Hour)
	_ = s.UpdateReview(out.Contract.ID, ReviewPatch{Status: domain.StatusApproved, SAPValidated: boolPtr(true)})
	s.mu.Lock()
	s.byID[out.Contract.ID].ExpiryDate = future
	s.byID[out.Contract.ID].OpenPosition = &openQty
	s.mu.Unlock()

	active = s.ListActiveSet("urea")
	if len(active) != 1 {
		t.Fatalf("expected 1 active contract once all four conditions hold, got %d", len(active))
	}
}

func TestListAllSpansProductGroups(t *testing.T) {
	s, _ := newTestStore()
	s.Ingest(baseContract("h1"))
	other := baseContract("h2")
	other.ProductGroup = "ammonia"
	other.RemoteItemID = "item2"
	s.Ingest(other)

	all := s.ListAll()
	if len(all) != 2 {
		t.Fatalf("want both contracts across product groups, got %d", len(all))
	}
}

func TestChangeFeedDeliversIngestEvent(t *testing.T) {
	s, feed := newTestStore()
	sub := feed.Subscribe(4)
	defer feed.Unsubscribe(sub)

	s.Ingest(baseContract("h1"))

	select {
	case ev := <-sub.Events():
		if ev.Topic != TopicIngest {
			t.Fatalf("want ingest topic, got %s", ev.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ingest event")
	}
}

func boolPtr(b bool) *bool { return &b }
