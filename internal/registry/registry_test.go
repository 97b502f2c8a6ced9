package registry

import (
	"sync"
	"testing"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/platform/logger"
)

func testLogger() *logger.Logger { return logger.New(logger.ModeDev) }

func TestSeedHasThirtyCanonicalClauses(t *testing.T) {
	r := New(testLogger())
	clauses := r.CanonicalClauses()
	if len(clauses) < 30 {
		t.Fatalf("want >= 30 canonical clauses, got %d", len(clauses))
	}
}

func TestSeedHasSevenFamilies(t *testing.T) {
	r := New(testLogger())
	fams := r.FamilySignatures()
	if len(fams) != 7 {
		t.Fatalf("want 7 family signatures, got %d", len(fams))
	}
}

func TestGetTemplateFOBPurchase(t *testing.T) {
	r := New(testLogger())
	tmpl, ok := r.GetTemplate(domain.TemplatePurchase, domain.FOB)
	if !ok {
		t.Fatal("expected purchase/FOB template to be registered")
	}
	req := tmpl.RequiredClauses()
	if len(req) != 6 {
		t.Fatalf("want 6 required clauses for purchase/FOB, got %d", len(req))
	}
}

func TestParameterClassMembers(t *testing.T) {
	r := New(testLogger())
	members := r.ParameterClassMembers("PRICE_CLASS")
	if len(members) != 1 || members[0] != "price" {
		t.Fatalf("unexpected members: %v", members)
	}
	if got := r.ParameterClassMembers(""); got != nil {
		t.Fatalf("empty class should have no members, got %v", got)
	}
}

func TestRegisterClauseIsAtomicallyVisible(t *testing.T) {
	r := New(testLogger())
	before := r.CanonicalClauses()
	if _, ok := before["CUSTOM_CLAUSE"]; ok {
		t.Fatal("CUSTOM_CLAUSE should not pre-exist")
	}
	r.RegisterClause("CUSTOM_CLAUSE", domain.ClauseRequirement{ClauseType: "CUSTOM_CLAUSE", Level: domain.LevelOptional})
	after := r.CanonicalClauses()
	if _, ok := after["CUSTOM_CLAUSE"]; !ok {
		t.Fatal("CUSTOM_CLAUSE should be visible after registration")
	}
	// the snapshot taken before the write must remain untouched (no torn reads).
	if _, ok := before["CUSTOM_CLAUSE"]; ok {
		t.Fatal("prior snapshot must not be mutated by a later write")
	}
}

func TestConcurrentReadsDuringWrite(t *testing.T) {
	r := New(testLogger())
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = r.CanonicalClauses()
					_ = r.FamilySignatures()
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		r.RegisterFamily(domain.FamilySignature{FamilyID: "test_family"})
	}
	close(stop)
	wg.Wait()
}
