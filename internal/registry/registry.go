// Package registry implements the TemplateRegistry: the canonical clause
// inventory, family signatures, and per-template requirement lists, held
// behind a copy-on-write snapshot so reads never block on writers and a new
// registration becomes visible to all readers atomically.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/platform/logger"
)

// snapshot is the full, immutable state published by a write. Readers only
// ever see one of these at a time; a registration swaps the pointer, it
// never mutates fields in place.
type snapshot struct {
	canonicalClauses map[string]domain.ClauseRequirement // clause_id -> baseline requirement shape
	families         map[string]domain.FamilySignature
	templates        map[domain.TemplateKey]domain.Template
	paramClassMembers map[string][]string // parameter_class -> concrete parameter keys
}

// Registry is the TemplateRegistry. The zero value is not usable; use New.
type Registry struct {
	log *logger.Logger

	cur atomic.Pointer[snapshot]
	// writeMu serialises registrations; it is never held by a reader.
	writeMu sync.Mutex
}

// New builds a Registry seeded with the 30 canonical clauses, 7 family
// signatures, and the baseline templates described in the system's data
// model.
func New(log *logger.Logger) *Registry {
	r := &Registry{log: log.With("component", "registry")}
	r.cur.Store(seedSnapshot())
	return r
}

// canonical_clauses returns the registry's canonical clause inventory at
// the moment of the call.
func (r *Registry) CanonicalClauses() map[string]domain.ClauseRequirement {
	s := r.cur.Load()
	out := make(map[string]domain.ClauseRequirement, len(s.canonicalClauses))
	for k, v := range s.canonicalClauses {
		out[k] = v
	}
	return out
}

// family_signatures returns the registry's family signature table at the
// moment of the call.
func (r *Registry) FamilySignatures() map[string]domain.FamilySignature {
	s := r.cur.Load()
	out := make(map[string]domain.FamilySignature, len(s.families))
	for k, v := range s.families {
		out[k] = v
	}
	return out
}

// get_template looks up the Template for a (contract_type, incoterm) pair.
// ok is false if no template is registered for that pair.
func (r *Registry) GetTemplate(contractType domain.TemplateType, incoterm domain.Incoterm) (domain.Template, bool) {
	s := r.cur.Load()
	t, ok := s.templates[domain.TemplateKey{ContractType: contractType, Incoterm: incoterm}]
	return t, ok
}

// required_clauses returns the required-level requirements for a
// (contract_type, incoterm) pair.
func (r *Registry) RequiredClauses(contractType domain.TemplateType, incoterm domain.Incoterm) []domain.ClauseRequirement {
	t, ok := r.GetTemplate(contractType, incoterm)
	if !ok {
		return nil
	}
	return t.RequiredClauses()
}

// parameter_class_members maps a requirement's parameter class to the
// concrete solver-variable parameter keys that satisfy it. An empty class
// name has no members; TemplateValidator treats a requirement with an
// empty parameter class as satisfied by any parameter.
func (r *Registry) ParameterClassMembers(parameterClass string) []string {
	if parameterClass == "" {
		return nil
	}
	s := r.cur.Load()
	members := s.paramClassMembers[parameterClass]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

// RegisterClause adds or replaces a canonical clause requirement shape.
// The new state becomes visible to all readers atomically; in-flight reads
// of the prior snapshot are unaffected, so a batch parser mid-paragraph
// never observes a torn registry.
func (r *Registry) RegisterClause(id string, req domain.ClauseRequirement) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	prev := r.cur.Load()
	next := prev.shallowCopy()
	next.canonicalClauses[id] = req
	r.cur.Store(next)
	r.log.Infow("registered canonical clause", "clause_id", id)
}

// RegisterFamily adds or replaces a family signature.
func (r *Registry) RegisterFamily(sig domain.FamilySignature) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	prev := r.cur.Load()
	next := prev.shallowCopy()
	next.families[sig.FamilyID] = sig
	r.cur.Store(next)
	r.log.Infow("registered family signature", "family_id", sig.FamilyID)
}

// RegisterTemplate adds or replaces a Template.
func (r *Registry) RegisterTemplate(t domain.Template) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	prev := r.cur.Load()
	next := prev.shallowCopy()
	next.templates[t.Key] = t
	r.cur.Store(next)
	r.log.Infow("registered template", "contract_type", t.Key.ContractType, "incoterm", t.Key.Incoterm)
}

// RegisterParameterClass binds a parameter class name to its concrete
// parameter key members.
func (r *Registry) RegisterParameterClass(class string, members []string) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	prev := r.cur.Load()
	next := prev.shallowCopy()
	next.paramClassMembers[class] = append([]string(nil), members...)
	r.cur.Store(next)
}

func (s *snapshot) shallowCopy() *snapshot {
	next := &snapshot{
		canonicalClauses:  make(map[string]domain.ClauseRequirement, len(s.canonicalClauses)),
		families:          make(map[string]domain.FamilySignature, len(s.families)),
		templates:         make(map[domain.TemplateKey]domain.Template, len(s.templates)),
		paramClassMembers: make(map[string][]string, len(s.paramClassMembers)),
	}
	for k, v := range s.canonicalClauses {
		next.canonicalClauses[k] = v
	}
	for k, v := range s.families {
		next.families[k] = v
	}
	for k, v := range s.templates {
		next.templates[k] = v
	}
	for k, v := range s.paramClassMembers {
		next.paramClassMembers[k] = v
	}
	return next
}
