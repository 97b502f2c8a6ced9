package clauseparser

import (
	"strings"

	"github.com/riverdock/contractdesk/internal/domain"
)

// extractEmbeddedPenalties runs a second pass inside every
// DEFAULT_AND_REMEDIES clause's source text looking for embedded penalty
// sub-clauses, emitting them as separate Clauses alongside the parent.
func extractEmbeddedPenalties(clauses []domain.Clause) []domain.Clause {
	out := make([]domain.Clause, 0, len(clauses))
	for _, c := range clauses {
		out = append(out, c)
		if c.ClauseID != "DEFAULT_AND_REMEDIES" {
			continue
		}
		lower := strings.ToLower(c.SourceText)
		if m := tryEmbeddedPenalty(c, lower, "PENALTY_VOLUME_SHORTFALL", []string{"volume shortfall", "shortfall penalty", "under-delivery penalty"}); m != nil {
			out = append(out, *m)
		}
		if m := tryEmbeddedPenalty(c, lower, "PENALTY_LATE_DELIVERY", []string{"late delivery penalty", "delay penalty", "late shipment penalty"}); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func tryEmbeddedPenalty(parent domain.Clause, lower string, clauseID string, anchors []string) *domain.Clause {
	if !anchorPresent(lower, anchors) {
		return nil
	}
	nums := allNumbers(stripLeadingHeadingNumber(parent.SourceText))
	if len(nums) == 0 {
		return nil
	}
	unit := detectUnit(lower)
	confidence := domain.ConfidenceHigh
	if unit == "" {
		unit = "$/ton"
		confidence = domain.ConfidenceMedium
	}
	cap := 0.0
	if len(nums) > 1 {
		cap = nums[1]
	}
	return &domain.Clause{
		ClauseID:       clauseID,
		Category:       "penalty",
		SourceText:     parent.SourceText,
		SectionRef:     parent.SectionRef,
		Confidence:     confidence,
		Unit:           unit,
		PenaltyPerUnit: nums[0],
		PenaltyCap:     cap,
		AnchorsMatched: matchedAnchors(lower, anchors),
	}
}
