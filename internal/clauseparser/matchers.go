package clauseparser

import (
	"fmt"
	"strings"

	"github.com/riverdock/contractdesk/internal/domain"
)

// MatchResult is one matcher's verdict on a paragraph. A nil Clause and an
// empty Warning means the matcher did not claim the paragraph (the parser
// tries the next, less specific matcher). A non-nil Clause and a non-empty
// Warning may both be set: a clause-like paragraph whose numeric extraction
// failed still produces a low-confidence clause alongside its warning, per
// the parser's documented behaviour.
type MatchResult struct {
	Clause  *domain.Clause
	Warning string
}

// Matcher is a pure function from one paragraph to a MatchResult, bound to
// one canonical clause id and a specificity rank that orders the pipeline.
type Matcher struct {
	ClauseID    string
	Category    string
	Specificity int
	Anchors     []string
	Fn          func(paragraph, lower, sectionRef string) MatchResult
}

func matchedAnchors(lower string, anchors []string) []string {
	var out []string
	for _, a := range anchors {
		if strings.Contains(lower, a) {
			out = append(out, a)
		}
	}
	return out
}

// boundMatcher builds a Matcher for a clause type that carries a
// numeric, operator-bound parameter (price, rate, tolerance, etc).
func boundMatcher(clauseID, category string, anchors []string, parameter, defaultUnit string, specificity int) Matcher {
	return Matcher{
		ClauseID: clauseID, Category: category, Specificity: specificity, Anchors: anchors,
		Fn: func(paragraph, lower, sectionRef string) MatchResult {
			nums := allNumbers(stripLeadingHeadingNumber(paragraph))
			anchored := matchedAnchors(lower, anchors)
			if len(nums) == 0 {
				low := domain.ConfidenceLow
				return MatchResult{
					Clause: &domain.Clause{
						ClauseID: clauseID, Category: category, SourceText: paragraph,
						SectionRef: sectionRef, Confidence: low, Parameter: parameter,
						AnchorsMatched: anchored,
					},
					Warning: fmt.Sprintf("%s: anchor matched but no numeric value found", clauseID),
				}
			}

			op, hasOp := detectOperator(lower)
			unit := detectUnit(lower)
			unitDefaulted := unit == ""
			if unitDefaulted {
				unit = defaultUnit
			}
			period, _ := detectPeriod(lower)

			var value, valueUpper float64
			opDefaulted := !hasOp
			if !hasOp {
				op = domain.OpEQ
			}
			if op == domain.OpBetween {
				if len(nums) < 2 {
					return MatchResult{
						Clause: &domain.Clause{
							ClauseID: clauseID, Category: category, SourceText: paragraph,
							SectionRef: sectionRef, Confidence: domain.ConfidenceLow, Parameter: parameter,
							AnchorsMatched: anchored,
						},
						Warning: fmt.Sprintf("%s: between clause missing a second bound", clauseID),
					}
				}
				value, valueUpper = nums[0], nums[1]
			} else {
				value = nums[0]
			}

			confidence := domain.ConfidenceHigh
			if unitDefaulted || opDefaulted {
				confidence = domain.ConfidenceMedium
			}

			return MatchResult{Clause: &domain.Clause{
				ClauseID:       clauseID,
				Category:       category,
				SourceText:     paragraph,
				SectionRef:     sectionRef,
				Confidence:     confidence,
				Parameter:      parameter,
				Operator:       op,
				Value:          value,
				ValueUpper:     valueUpper,
				Unit:           unit,
				Period:         period,
				AnchorsMatched: anchored,
			}}
		},
	}
}

// penaltyMatcher builds a Matcher for one of the two named penalty clause
// types: rate-per-ton plus an optional cap, no bound operator.
func penaltyMatcher(clauseID string, anchors []string, specificity int) Matcher {
	return Matcher{
		ClauseID: clauseID, Category: "penalty", Specificity: specificity, Anchors: anchors,
		Fn: func(paragraph, lower, sectionRef string) MatchResult {
			nums := allNumbers(stripLeadingHeadingNumber(paragraph))
			anchored := matchedAnchors(lower, anchors)
			if len(nums) == 0 {
				return MatchResult{
					Clause: &domain.Clause{
						ClauseID: clauseID, Category: "penalty", SourceText: paragraph,
						SectionRef: sectionRef, Confidence: domain.ConfidenceLow, AnchorsMatched: anchored,
					},
					Warning: fmt.Sprintf("%s: anchor matched but no rate found", clauseID),
				}
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
			return MatchResult{Clause: &domain.Clause{
				ClauseID:       clauseID,
				Category:       "penalty",
				SourceText:     paragraph,
				SectionRef:     sectionRef,
				Confidence:     confidence,
				Unit:           unit,
				PenaltyPerUnit: nums[0],
				PenaltyCap:     cap,
				AnchorsMatched: anchored,
			}}
		},
	}
}

// narrativeMatcher builds a Matcher for a clause type with no numeric
// bound: its presence, not its figures, is what TemplateValidator checks.
func narrativeMatcher(clauseID, category string, anchors []string, specificity int) Matcher {
	return Matcher{
		ClauseID: clauseID, Category: category, Specificity: specificity, Anchors: anchors,
		Fn: func(paragraph, lower, sectionRef string) MatchResult {
			return MatchResult{Clause: &domain.Clause{
				ClauseID:       clauseID,
				Category:       category,
				SourceText:     paragraph,
				SectionRef:     sectionRef,
				Confidence:     domain.ConfidenceHigh,
				AnchorsMatched: matchedAnchors(lower, anchors),
			}}
		},
	}
}

// buildMatchers returns the fixed ordered pipeline. Specificity values only
// need to order relative to each other; absolute magnitude is irrelevant.
func buildMatchers() []Matcher {
	return []Matcher{
		boundMatcher("DEMURRAGE", "commercial", []string{"demurrage"}, "demurrage_rate", "$/day", 100),
		boundMatcher("LAYTIME", "commercial", []string{"laytime"}, "laytime_days", "days", 95),
		penaltyMatcher("PENALTY_VOLUME_SHORTFALL", []string{"volume shortfall", "shortfall penalty", "under-delivery penalty"}, 90),
		penaltyMatcher("PENALTY_LATE_DELIVERY", []string{"late delivery penalty", "delay penalty", "late shipment penalty"}, 90),
		boundMatcher("LOADING_RATE", "commercial", []string{"loading rate"}, "loading_rate", "MT/day", 85),
		boundMatcher("QUANTITY_TOLERANCE", "commercial", []string{"tolerance", "more or less", "mol"}, "qty_tolerance_pct", "%", 80),
		boundMatcher("PRICE", "commercial", []string{"price", "us$", "usd", "$"}, "price", "$/ton", 75),
		narrativeMatcher("PAYMENT", "commercial", []string{"payment", "letter of credit", "net ", "invoice"}, 70),
		narrativeMatcher("DELIVERY_PERIOD", "commercial", []string{"delivery period", "shipment period", "laycan", "delivery window"}, 65),
		narrativeMatcher("WEIGHT_QUALITY", "commercial", []string{"weight and quality", "certificate of analysis", "independent surveyor"}, 60),
		narrativeMatcher("INSURANCE", "legal", []string{"insurance", "marine cargo policy"}, 58),
		narrativeMatcher("INCOTERMS", "commercial", []string{"incoterms", "fob", "cfr", "cif", "dap", "ddp", "fca", "exw"}, 55),
		narrativeMatcher("PRODUCT_AND_SPECS", "commercial", []string{"specification", "product:", "grade", "purity"}, 50),
		narrativeMatcher("ORIGIN", "commercial", []string{"origin:", "country of origin"}, 48),
		narrativeMatcher("DESTINATION", "commercial", []string{"destination:", "discharge port", "port of discharge"}, 47),
		narrativeMatcher("NOMINATION", "commercial", []string{"nomination", "vessel nomination"}, 46),
		narrativeMatcher("SHIPPING_TERMS", "commercial", []string{"shipping terms", "bill of lading"}, 45),
		narrativeMatcher("VESSEL_APPROVAL", "commercial", []string{"vessel approval", "vetting"}, 44),
		narrativeMatcher("FORCE_MAJEURE", "legal", []string{"force majeure"}, 40),
		narrativeMatcher("GOVERNING_LAW", "legal", []string{"governing law", "governed by the laws"}, 38),
		narrativeMatcher("ARBITRATION", "legal", []string{"arbitration", "icc rules"}, 37),
		narrativeMatcher("SANCTIONS", "legal", []string{"sanctions"}, 36),
		narrativeMatcher("ASSIGNMENT", "legal", []string{"assignment", "assign this agreement"}, 35),
		narrativeMatcher("TITLE_RISK", "legal", []string{"title and risk", "passage of title", "risk of loss"}, 34),
		narrativeMatcher("NOTICES", "legal", []string{"notices", "notice shall be"}, 33),
		narrativeMatcher("CONFIDENTIALITY", "legal", []string{"confidentiality", "confidential information"}, 32),
		narrativeMatcher("TERMINATION", "legal", []string{"termination", "terminate this agreement"}, 31),
		narrativeMatcher("TRADE_RULES", "legal", []string{"trade rules", "fosfa", "gafta"}, 30),
		narrativeMatcher("ENVIRONMENTAL", "legal", []string{"environmental", "emissions"}, 29),
		narrativeMatcher("DEFAULT_AND_REMEDIES", "legal", []string{"default", "remedies", "remedy"}, 10),
	}
}
