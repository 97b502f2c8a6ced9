package clauseparser

import (
	"reflect"
	"testing"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/registry"
)

func newTestParser() *Parser {
	log := logger.New(logger.ModeDev)
	reg := registry.New(log)
	return New(log, reg)
}

func TestParsePriceClauseCleanExtraction(t *testing.T) {
	p := newTestParser()
	text := "5. Price: US$ 335/MT FOB Donaldsonville"
	res := p.Parse(text)

	if len(res.Clauses) != 1 {
		t.Fatalf("want 1 clause, got %d: %+v", len(res.Clauses), res.Clauses)
	}
	c := res.Clauses[0]
	if c.ClauseID != "PRICE" {
		t.Fatalf("want PRICE, got %s", c.ClauseID)
	}
	if c.Value != 335 {
		t.Fatalf("want value 335, got %v", c.Value)
	}
	if c.Unit != "$/ton" {
		t.Fatalf("want unit $/ton, got %q", c.Unit)
	}
	if c.SectionRef != "Section 5" {
		t.Fatalf("want section_ref 'Section 5', got %q", c.SectionRef)
	}
}

func TestParseIsPureFunctionOfInput(t *testing.T) {
	p := newTestParser()
	text := "5. Price: US$ 335/MT FOB Donaldsonville\n\n6. Demurrage: minimum US$ 12,500 per day"
	r1 := p.Parse(text)
	r2 := p.Parse(text)
	if len(r1.Clauses) != len(r2.Clauses) {
		t.Fatalf("parse must be deterministic, got %d vs %d clauses", len(r1.Clauses), len(r2.Clauses))
	}
	for i := range r1.Clauses {
		if !reflect.DeepEqual(r1.Clauses[i], r2.Clauses[i]) {
			t.Fatalf("parse output differs across identical calls at index %d", i)
		}
	}
}

func TestMoreSpecificClauseWinsNoDuplication(t *testing.T) {
	p := newTestParser()
	// "demurrage" anchor should win over a generic "default and remedies" style
	// paragraph that also happens to mention remedies in passing.
	text := "Demurrage: the buyer shall pay demurrage at a rate of minimum US$ 15,000 per day as the sole remedy for delay."
	res := p.Parse(text)
	if len(res.Clauses) != 1 {
		t.Fatalf("want exactly 1 clause (no duplication), got %d: %+v", len(res.Clauses), res.Clauses)
	}
	if res.Clauses[0].ClauseID != "DEMURRAGE" {
		t.Fatalf("want DEMURRAGE to win, got %s", res.Clauses[0].ClauseID)
	}
}

func TestLowConfidenceWhenNumericExtractionFails(t *testing.T) {
	p := newTestParser()
	text := "Demurrage: to be agreed between the parties in a side letter."
	res := p.Parse(text)
	if len(res.Warnings) != 1 {
		t.Fatalf("want 1 warning, got %d", len(res.Warnings))
	}
	if len(res.Clauses) != 1 || res.Clauses[0].Confidence != domain.ConfidenceLow {
		t.Fatalf("want a low-confidence clause alongside the warning, got %+v", res.Clauses)
	}
}

func TestEveryClauseHasValidConfidenceAndUnitInvariant(t *testing.T) {
	p := newTestParser()
	text := "5. Price: US$ 335/MT FOB Donaldsonville\n\n6. Demurrage: minimum US$ 12,500 per day\n\n7. Loading Rate: maximum 5,000 MT/day"
	res := p.Parse(text)
	for _, c := range res.Clauses {
		switch c.Confidence {
		case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
		default:
			t.Fatalf("invalid confidence %q on clause %s", c.Confidence, c.ClauseID)
		}
		if c.Value != 0 && c.Unit == "" {
			t.Fatalf("clause %s has a value but no unit", c.ClauseID)
		}
	}
}

func TestEmbeddedPenaltySubClauses(t *testing.T) {
	p := newTestParser()
	text := "Default and Remedies: in the event of a volume shortfall penalty of US$ 10 per ton shall apply, capped at US$ 50,000."
	res := p.Parse(text)
	var found bool
	for _, c := range res.Clauses {
		if c.ClauseID == "PENALTY_VOLUME_SHORTFALL" {
			found = true
			if c.PenaltyPerUnit != 10 {
				t.Fatalf("want penalty_per_unit 10, got %v", c.PenaltyPerUnit)
			}
		}
	}
	if !found {
		t.Fatal("expected an embedded PENALTY_VOLUME_SHORTFALL clause")
	}
}

func TestDedupKeepsHighestConfidence(t *testing.T) {
	clauses := []domain.Clause{
		{ClauseID: "PRICE", Parameter: "price", Operator: domain.OpEQ, Value: 335, Confidence: domain.ConfidenceLow, SectionRef: "Section 1"},
		{ClauseID: "PRICE", Parameter: "price", Operator: domain.OpEQ, Value: 335, Confidence: domain.ConfidenceHigh, SectionRef: "Section 2"},
	}
	out := dedup(clauses)
	if len(out) != 1 {
		t.Fatalf("want 1 deduped clause, got %d", len(out))
	}
	if out[0].Confidence != domain.ConfidenceHigh {
		t.Fatalf("want the high-confidence clause to survive, got %v", out[0].Confidence)
	}
}

func TestFamilyDetection(t *testing.T) {
	p := newTestParser()
	text := "This is a FOB vessel purchase contract. Bill of lading required. Laytime and demurrage apply per the charter party."
	fam, ok := p.DetectFamily(text, 1)
	if !ok {
		t.Fatal("expected a family to be detected")
	}
	if fam.FamilyID != "vessel_purchase_fob" {
		t.Fatalf("want vessel_purchase_fob, got %s", fam.FamilyID)
	}
}
