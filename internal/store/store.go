// Package store implements ContractStore: a versioned in-memory store with
// secondary indices, a single-active invariant per canonical key, and a
// topic-keyed change feed. All mutations are serialised by one write mutex
// so the single-active invariant can never race with itself, grounded on
// the publish-a-whole-state-atomically idiom used by the teacher's job
// orchestrator.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
)

// VerificationPatch patches a contract's verification fields without
// touching anything else.
type VerificationPatch struct {
	VerificationStatus domain.VerificationStatus
	LastVerifiedAt     time.Time
}

// ReviewPatch patches a contract's review fields without touching
// anything else.
type ReviewPatch struct {
	Status       domain.ReviewStatus
	ReviewedBy   string
	ReviewedAt   time.Time
	ReviewNotes  string
	SAPValidated *bool
}

// Store is the ContractStore.
type Store struct {
	log *logger.Logger

	mu sync.RWMutex // guards all maps below; held briefly, write path is still single-writer by convention (see writeMu)

	byID           map[string]*domain.Contract
	byCanonicalKey map[domain.CanonicalKey][]string // contract ids, append-only per key (includes superseded)
	byProductGroup map[string]map[string]struct{}
	byRemoteItemID map[string]string
	byFileHash     map[string]string

	writeMu sync.Mutex // serialises mutating operations; the single writer named in the design

	feed *ChangeFeed
}

// New builds an empty Store.
func New(log *logger.Logger, feed *ChangeFeed) *Store {
	return &Store{
		log:            log.With("component", "store"),
		byID:           make(map[string]*domain.Contract),
		byCanonicalKey: make(map[domain.CanonicalKey][]string),
		byProductGroup: make(map[string]map[string]struct{}),
		byRemoteItemID: make(map[string]string),
		byFileHash:     make(map[string]string),
		feed:           feed,
	}
}

// IngestOutcome distinguishes a brand-new version from a same-bytes no-op.
type IngestOutcome struct {
	Contract  *domain.Contract
	NewVersion bool
}

// Ingest applies the single-active invariant and version chaining for c's
// canonical key. If an existing version with the same file_hash already
// exists at the head of this canonical key's chain, ingest is a no-op: it
// updates last_verified_at and returns the existing contract without
// creating a new version (the round-trip/idempotence property named in the
// system's testable properties).
func (s *Store) Ingest(c *domain.Contract) (IngestOutcome, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	key := c.CanonicalKey()
	head := s.headOf(key)

	if head != nil && head.FileHash == c.FileHash && c.FileHash != "" {
		head.LastVerifiedAt = time.Now()
		head.VerificationStatus = domain.Verified
		return IngestOutcome{Contract: head.Clone(), NewVersion: false}, nil
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if head != nil {
		c.Version = head.Version + 1
		c.PreviousHash = head.FileHash
		if head.Status != domain.StatusApproved {
			s.transitionLocked(head, domain.StatusSuperseded, "", time.Time{}, "")
		}
		// If head is approved, supersession is deferred to ReviewWorkflow's
		// approval of the new version (see review package).
	} else {
		c.Version = 1
		c.PreviousHash = ""
	}
	if c.Status == "" {
		c.Status = domain.StatusDraft
	}

	s.indexLocked(c)
	s.publish(ChangeEvent{Topic: TopicIngest, ContractID: c.ID, Contract: c.Clone()})
	return IngestOutcome{Contract: c.Clone(), NewVersion: true}, nil
}

// Restore indexes a contract snapshot exactly as given, bypassing version
// chaining and the single-active invariant: both were already enforced
// once, by the writer that produced the mutation this snapshot replays.
// Used only by the persist adapter to reconstruct a store from its durable
// log; never called on a live store serving traffic.
func (s *Store) Restore(c *domain.Contract) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.indexLocked(c.Clone())
}

// headOf returns the most recent version (by Version) for key, or nil.
func (s *Store) headOf(key domain.CanonicalKey) *domain.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCanonicalKey[key]
	var head *domain.Contract
	for _, id := range ids {
		c := s.byID[id]
		if c == nil {
			continue
		}
		if head == nil || c.Version > head.Version {
			head = c
		}
	}
	return head
}

func (s *Store) indexLocked(c *domain.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[c.ID] = c
	key := c.CanonicalKey()
	s.byCanonicalKey[key] = append(s.byCanonicalKey[key], c.ID)
	if s.byProductGroup[c.ProductGroup] == nil {
		s.byProductGroup[c.ProductGroup] = make(map[string]struct{})
	}
	s.byProductGroup[c.ProductGroup][c.ID] = struct{}{}
	if c.RemoteItemID != "" {
		s.byRemoteItemID[c.RemoteItemID] = c.ID
	}
	if c.FileHash != "" {
		s.byFileHash[c.FileHash] = c.ID
	}
}

// Get returns a snapshot copy of the contract with id, or ok=false.
func (s *Store) Get(id string) (*domain.Contract, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// FindByRemoteItemID returns the contract currently indexed under a
// remote item id, used by the Ingestor to classify a scan result.
func (s *Store) FindByRemoteItemID(remoteItemID string) (*domain.Contract, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byRemoteItemID[remoteItemID]
	if !ok {
		return nil, false
	}
	return s.byID[id].Clone(), true
}

// FindByFileHash returns the contract currently indexed under a file
// hash.
func (s *Store) FindByFileHash(hash string) (*domain.Contract, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFileHash[hash]
	if !ok {
		return nil, false
	}
	return s.byID[id].Clone(), true
}

// ListByProductGroup returns every contract version (including superseded)
// in a product group.
func (s *Store) ListByProductGroup(productGroup string) []*domain.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byProductGroup[productGroup]
	out := make([]*domain.Contract, 0, len(ids))
	for id := range ids {
		out = append(out, s.byID[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListAll returns every contract version the store holds, across every
// product group, used to build the scanner's known-hash set for a
// deduplicated delta scan.
func (s *Store) ListAll() []*domain.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Contract, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListActiveSet returns the approved, non-expired, SAP-validated contracts
// in productGroup with an open position set.
func (s *Store) ListActiveSet(productGroup string) []*domain.Contract {
	now := time.Now()
	all := s.ListByProductGroup(productGroup)
	out := make([]*domain.Contract, 0, len(all))
	for _, c := range all {
		if c.IsActive(now) {
			out = append(out, c)
		}
	}
	return out
}

// UpdateVerification applies patch to the contract with id.
func (s *Store) UpdateVerification(id string, patch VerificationPatch) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	c, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return errs.New(errs.InvariantViolated, fmt.Sprintf("unknown contract id %s", id), nil)
	}
	c.VerificationStatus = patch.VerificationStatus
	if !patch.LastVerifiedAt.IsZero() {
		c.LastVerifiedAt = patch.LastVerifiedAt
	}
	snapshot := c.Clone()
	s.mu.Unlock()

	s.publish(ChangeEvent{Topic: TopicVerification, ContractID: id, Contract: snapshot})
	return nil
}

// UpdateReview applies patch to the contract with id, enforcing the
// single-active invariant when patch moves status to approved: the
// currently-approved contract for the same canonical key (if any) is
// superseded as part of the same committed operation.
func (s *Store) UpdateReview(id string, patch ReviewPatch) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	c, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return errs.New(errs.InvariantViolated, fmt.Sprintf("unknown contract id %s", id), nil)
	}

	var supersededID string
	if patch.Status == domain.StatusApproved {
		key := c.CanonicalKey()
		for _, otherID := range s.byCanonicalKey[key] {
			if otherID == id {
				continue
			}
			other := s.byID[otherID]
			if other != nil && other.Status == domain.StatusApproved {
				other.Status = domain.StatusSuperseded
				supersededID = otherID
				break
			}
		}
	}

	s.transitionLocked(c, patch.Status, patch.ReviewedBy, patch.ReviewedAt, patch.ReviewNotes)
	if patch.SAPValidated != nil {
		c.SAPValidated = *patch.SAPValidated
	}
	snapshot := c.Clone()
	var supersededSnapshot *domain.Contract
	if supersededID != "" {
		supersededSnapshot = s.byID[supersededID].Clone()
	}
	s.mu.Unlock()

	s.publish(ChangeEvent{Topic: TopicReview, ContractID: id, Contract: snapshot})
	if supersededSnapshot != nil {
		s.publish(ChangeEvent{Topic: TopicReview, ContractID: supersededSnapshot.ID, Contract: supersededSnapshot})
	}
	return nil
}

// transitionLocked mutates c's review fields in place. Caller holds s.mu.
func (s *Store) transitionLocked(c *domain.Contract, status domain.ReviewStatus, reviewedBy string, reviewedAt time.Time, notes string) {
	c.Status = status
	if reviewedBy != "" {
		c.ReviewedBy = reviewedBy
	}
	if !reviewedAt.IsZero() {
		c.ReviewedAt = reviewedAt
	}
	if notes != "" {
		c.ReviewNotes = notes
	}
}

func (s *Store) publish(ev ChangeEvent) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(ev)
}
