package validator

import (
	"testing"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/registry"
)

func newTestValidator(strict bool) *Validator {
	log := logger.New(logger.ModeDev)
	reg := registry.New(log)
	return New(log, reg, strict)
}

func fobContractWithClauses(clauses ...domain.Clause) *domain.Contract {
	return &domain.Contract{
		TemplateType: domain.TemplatePurchase,
		Incoterm:     domain.FOB,
		Clauses:      clauses,
	}
}

func TestValidateAllRequiredMet(t *testing.T) {
	v := newTestValidator(false)
	c := fobContractWithClauses(
		domain.Clause{ClauseID: "PRICE", Parameter: "price", Operator: domain.OpEQ, Value: 335, Unit: "$/ton", Confidence: domain.ConfidenceHigh},
		domain.Clause{ClauseID: "QUANTITY_TOLERANCE", Parameter: "qty_tolerance_pct", Operator: domain.OpEQ, Value: 5, Unit: "%", Confidence: domain.ConfidenceHigh},
		domain.Clause{ClauseID: "DELIVERY_PERIOD", Confidence: domain.ConfidenceHigh},
		domain.Clause{ClauseID: "LOADING_RATE", Parameter: "loading_rate", Operator: domain.OpEQ, Value: 5000, Unit: "MT/day", Confidence: domain.ConfidenceHigh},
		domain.Clause{ClauseID: "DEMURRAGE", Parameter: "demurrage_rate", Operator: domain.OpEQ, Value: 12500, Unit: "$/day", Confidence: domain.ConfidenceHigh},
		domain.Clause{ClauseID: "PAYMENT", Confidence: domain.ConfidenceHigh},
	)
	report, err := v.Validate(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RequiredMet != 6 || report.RequiredTotal != 6 {
		t.Fatalf("want 6/6 required met, got %d/%d", report.RequiredMet, report.RequiredTotal)
	}
	if report.BlocksSubmission {
		t.Fatal("should not block submission when all required clauses are present")
	}
}

func TestValidateMissingRequiredBlocks(t *testing.T) {
	v := newTestValidator(false)
	c := fobContractWithClauses(
		domain.Clause{ClauseID: "PRICE", Parameter: "price", Operator: domain.OpEQ, Value: 335, Unit: "$/ton", Confidence: domain.ConfidenceHigh},
	)
	report, err := v.Validate(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.BlocksSubmission {
		t.Fatal("missing required clauses must block submission")
	}
}

func TestSuspiciousValueNeverFatal(t *testing.T) {
	v := newTestValidator(false)
	c := fobContractWithClauses(
		domain.Clause{ClauseID: "PRICE", Parameter: "price", Operator: domain.OpEQ, Value: 5, Unit: "$/ton", Confidence: domain.ConfidenceHigh},
	)
	report, err := v.Validate(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, f := range report.Findings {
		if f.Kind == FindingValueSuspicious {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a value_suspicious finding for price=5 (below 10%% of min)")
	}
}

func TestConflictDetection(t *testing.T) {
	v := newTestValidator(false)
	c := fobContractWithClauses(
		domain.Clause{ClauseID: "PRICE", Parameter: "inv_don", Operator: domain.OpGTE, Value: 5000, Unit: "MT"},
		domain.Clause{ClauseID: "PRICE", Parameter: "inv_don", Operator: domain.OpLTE, Value: 3000, Unit: "MT"},
	)
	report, err := v.Validate(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, f := range report.Findings {
		if f.Kind == FindingConflict {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a conflict finding for inv_don >= 5000 and <= 3000")
	}
}

func TestStrictModeExcludesLowConfidenceFromSatisfaction(t *testing.T) {
	vStrict := newTestValidator(true)
	c := fobContractWithClauses(
		domain.Clause{ClauseID: "PRICE", Parameter: "price", Operator: domain.OpEQ, Value: 335, Unit: "$/ton", Confidence: domain.ConfidenceLow},
	)
	report, err := vStrict.Validate(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range report.Findings {
		if f.Kind == FindingMissingRequired && f.ClauseType == "PRICE" {
			return
		}
	}
	t.Fatal("strict mode should not count a low-confidence PRICE clause toward satisfaction")
}

func TestTemplateUnknownError(t *testing.T) {
	v := newTestValidator(false)
	c := &domain.Contract{TemplateType: "bogus_type", Incoterm: "bogus_incoterm"}
	_, err := v.Validate(c)
	if err == nil {
		t.Fatal("expected a template-unknown error")
	}
}
