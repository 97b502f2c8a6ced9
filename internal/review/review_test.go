package review

import (
	"testing"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/store"
)

func newTestWorkflow(t *testing.T, contracts ...*domain.Contract) (*Workflow, *store.Store) {
	log := logger.New(logger.ModeDev)
	feed := store.NewChangeFeed()
	st := store.New(log, feed)
	for _, c := range contracts {
		if _, err := st.Ingest(c); err != nil {
			t.Fatalf("seed ingest failed: %v", err)
		}
	}
	return New(log, st), st
}

func TestSubmitByTraderOnly(t *testing.T) {
	c := &domain.Contract{ID: "c1", Counterparty: "Koch", ProductGroup: "ammonia", FileHash: "h1", Status: domain.StatusDraft}
	wf, st := newTestWorkflow(t, c)

	if err := wf.Submit("c1", RoleLegal, ""); err == nil {
		t.Fatalf("want legal forbidden from submitting")
	}
	if err := wf.Submit("c1", RoleTrader, "ready"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := st.Get("c1")
	if got.Status != domain.StatusPendingReview {
		t.Fatalf("want pending_review, got %s", got.Status)
	}
}

func TestApproveSupersedesPriorApproved(t *testing.T) {
	v1 := &domain.Contract{ID: "v1", Counterparty: "Koch", ProductGroup: "ammonia", FileHash: "h1", Status: domain.StatusApproved}
	wf, st := newTestWorkflow(t, v1)

	v2 := &domain.Contract{Counterparty: "Koch", ProductGroup: "ammonia", FileHash: "h2", Status: domain.StatusDraft}
	outcome, err := st.Ingest(v2)
	if err != nil {
		t.Fatalf("ingest v2: %v", err)
	}
	if err := wf.Submit(outcome.Contract.ID, RoleTrader, ""); err != nil {
		t.Fatalf("submit v2: %v", err)
	}
	if err := wf.Approve(outcome.Contract.ID, RoleLegal, "looks good"); err != nil {
		t.Fatalf("approve v2: %v", err)
	}

	oldHead, _ := st.Get("v1")
	if oldHead.Status != domain.StatusSuperseded {
		t.Fatalf("want v1 superseded, got %s", oldHead.Status)
	}
	newHead, _ := st.Get(outcome.Contract.ID)
	if newHead.Status != domain.StatusApproved {
		t.Fatalf("want v2 approved, got %s", newHead.Status)
	}
}

func TestRejectIsTerminal(t *testing.T) {
	c := &domain.Contract{ID: "c1", Counterparty: "Koch", ProductGroup: "ammonia", FileHash: "h1", Status: domain.StatusPendingReview}
	wf, st := newTestWorkflow(t, c)

	if err := wf.Reject("c1", RoleLegal, "bad terms"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := st.Get("c1")
	if got.Status != domain.StatusRejected {
		t.Fatalf("want rejected, got %s", got.Status)
	}
	if err := wf.Approve("c1", RoleLegal, ""); err == nil {
		t.Fatalf("want rejected to be terminal")
	}
}

func TestRequestSAPRevalidationAnyState(t *testing.T) {
	c := &domain.Contract{ID: "c1", Counterparty: "Koch", ProductGroup: "ammonia", FileHash: "h1", Status: domain.StatusDraft}
	wf, st := newTestWorkflow(t, c)

	if err := wf.RequestSAPRevalidation("c1", RoleOperations, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := st.Get("c1")
	if !got.SAPValidated {
		t.Fatalf("want sap_validated true")
	}
	if got.Status != domain.StatusDraft {
		t.Fatalf("SAP revalidation should not move review status, got %s", got.Status)
	}
}
