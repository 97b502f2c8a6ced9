// Package review implements ReviewWorkflow: the role-gated state machine
// that moves a Contract from draft through pending_review to approved or
// rejected, grounded on the teacher's StageStatus enum-and-transition style
// (jobs/orchestrator/state.go) adapted from a job stage to a contract's
// review lifecycle.
package review

import (
	"fmt"
	"time"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/store"
)

// Role names the caller identity a transition is gated by.
type Role string

const (
	RoleTrader     Role = "trader"
	RoleLegal      Role = "legal"
	RoleOperations Role = "operations"
)

// Store is the subset of store.Store the workflow depends on.
type Store interface {
	Get(id string) (*domain.Contract, bool)
	UpdateReview(id string, patch store.ReviewPatch) error
}

// Workflow is the ReviewWorkflow.
type Workflow struct {
	log   *logger.Logger
	store Store
	now   func() time.Time
}

// New builds a Workflow bound to store.
func New(log *logger.Logger, st Store) *Workflow {
	return &Workflow{log: log.With("component", "review"), store: st, now: time.Now}
}

// Submit moves a contract draft -> pending_review. Only a trader may submit.
func (w *Workflow) Submit(contractID string, by Role, notes string) error {
	return w.transition(contractID, by, []Role{RoleTrader}, domain.StatusDraft, domain.StatusPendingReview, notes)
}

// Approve moves a contract pending_review -> approved. Only legal may
// approve. The store enforces the single-active invariant transactionally:
// approving a new version automatically supersedes the currently-approved
// version for the same canonical key as one committed operation.
func (w *Workflow) Approve(contractID string, by Role, notes string) error {
	return w.transition(contractID, by, []Role{RoleLegal}, domain.StatusPendingReview, domain.StatusApproved, notes)
}

// Reject moves a contract pending_review -> rejected. Only legal may
// reject. Rejection is terminal; re-ingestion creates a fresh draft with a
// new version, never a resurrection of the rejected one.
func (w *Workflow) Reject(contractID string, by Role, notes string) error {
	return w.transition(contractID, by, []Role{RoleLegal}, domain.StatusPendingReview, domain.StatusRejected, notes)
}

// RequestSAPRevalidation may be called by operations at any contract state;
// it only patches the SAPValidated flag, never the review status.
func (w *Workflow) RequestSAPRevalidation(contractID string, by Role, validated bool) error {
	if by != RoleOperations {
		return errs.New(errs.InvariantViolated, fmt.Sprintf("role %s may not request SAP revalidation", by), nil)
	}
	c, ok := w.store.Get(contractID)
	if !ok {
		return errs.New(errs.InvariantViolated, fmt.Sprintf("unknown contract id %s", contractID), nil)
	}
	v := validated
	return w.store.UpdateReview(contractID, store.ReviewPatch{Status: c.Status, SAPValidated: &v})
}

func (w *Workflow) transition(contractID string, by Role, allowed []Role, from, to domain.ReviewStatus, notes string) error {
	if !roleAllowed(by, allowed) {
		return errs.New(errs.InvariantViolated, fmt.Sprintf("role %s may not move a contract %s -> %s", by, from, to), nil)
	}
	c, ok := w.store.Get(contractID)
	if !ok {
		return errs.New(errs.InvariantViolated, fmt.Sprintf("unknown contract id %s", contractID), nil)
	}
	if c.Status != from {
		return errs.New(errs.InvariantViolated, fmt.Sprintf("contract %s is %s, not %s", contractID, c.Status, from), nil)
	}
	return w.store.UpdateReview(contractID, store.ReviewPatch{
		Status:      to,
		ReviewedBy:  string(by),
		ReviewedAt:  w.now(),
		ReviewNotes: notes,
	})
}

func roleAllowed(by Role, allowed []Role) bool {
	for _, r := range allowed {
		if by == r {
			return true
		}
	}
	return false
}

// BlocksSubmission is an error naming the required clauses whose absence
// blocks a submission. Submit runs no clause check and never returns it;
// nothing in this package constructs it.
type BlocksSubmission struct {
	MissingRequired []string
}

func (e BlocksSubmission) Error() string {
	return fmt.Sprintf("blocked: %d missing required clause(s)", len(e.MissingRequired))
}
