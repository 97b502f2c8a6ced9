package clauseparser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/riverdock/contractdesk/internal/domain"
)

// numberRegex tolerates thousand separators (commas) and decimals, with an
// optional leading currency symbol or code captured separately by callers.
var numberRegex = regexp.MustCompile(`-?\d{1,3}(?:,\d{3})+(?:\.\d+)?|-?\d+(?:\.\d+)?`)

// leadingHeadingNumber matches a section-number prefix ("5. ") so numeric
// extraction over a paragraph's body never mistakes the heading number for
// an extracted figure.
var leadingHeadingNumber = regexp.MustCompile(`^\d+\.\s+`)

// stripLeadingHeadingNumber removes a leading section-number prefix, if
// present, before numeric extraction runs over a paragraph's body.
func stripLeadingHeadingNumber(s string) string {
	return leadingHeadingNumber.ReplaceAllString(s, "")
}

// currencyRegex pulls the symbol/code immediately preceding a number.
var currencyRegex = regexp.MustCompile(`(?i)(US\$|USD|\$|EUR|€|GBP|£)\s*`)

// firstNumber returns the first numeric literal in s, parsed as a float64
// with thousand separators stripped, and true if one was found.
func firstNumber(s string) (float64, bool) {
	m := numberRegex.FindString(s)
	if m == "" {
		return 0, false
	}
	clean := strings.ReplaceAll(m, ",", "")
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// allNumbers returns every numeric literal in s in order.
func allNumbers(s string) []float64 {
	matches := numberRegex.FindAllString(s, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		clean := strings.ReplaceAll(m, ",", "")
		v, err := strconv.ParseFloat(clean, 64)
		if err == nil {
			out = append(out, v)
		}
	}
	return out
}

// unitTable maps lowercase phrases found near a number to a canonical unit
// string.
var unitTable = []struct {
	phrase string
	unit   string
}{
	{"$/mt", "$/ton"},
	{"$/ton", "$/ton"},
	{"per mt", "$/ton"},
	{"per ton", "$/ton"},
	{"/mt", "$/ton"},
	{"/ton", "$/ton"},
	{"mt/day", "MT/day"},
	{"tons/day", "MT/day"},
	{"metric tons", "MT"},
	{"%", "%"},
	{"percent", "%"},
	{"days", "days"},
	{"day", "days"},
}

// detectUnit scans lower for a known unit phrase, returning "" if none
// matched.
func detectUnit(lower string) string {
	for _, u := range unitTable {
		if strings.Contains(lower, u.phrase) {
			return u.unit
		}
	}
	return ""
}

// operatorKeywords maps phrases to the operator they indicate. Order
// matters: longer/more specific phrases are checked first by the caller
// iterating this slice in order.
var operatorKeywords = []struct {
	phrase string
	op     domain.Operator
}{
	{"not to exceed", domain.OpLTE},
	{"no more than", domain.OpLTE},
	{"at most", domain.OpLTE},
	{"maximum", domain.OpLTE},
	{"up to", domain.OpLTE},
	{"at least", domain.OpGTE},
	{"no less than", domain.OpGTE},
	{"minimum", domain.OpGTE},
	{"between", domain.OpBetween},
}

// detectOperator scans lower for an operator keyword phrase.
func detectOperator(lower string) (domain.Operator, bool) {
	for _, k := range operatorKeywords {
		if strings.Contains(lower, k.phrase) {
			return k.op, true
		}
	}
	return "", false
}

// periodKeywords maps phrases to the Period they indicate.
var periodKeywords = []struct {
	phrase string
	period domain.Period
}{
	{"per annum", domain.PeriodAnnual},
	{"annual", domain.PeriodAnnual},
	{"annually", domain.PeriodAnnual},
	{"quarterly", domain.PeriodQuarterly},
	{"per quarter", domain.PeriodQuarterly},
	{"monthly", domain.PeriodMonthly},
	{"per month", domain.PeriodMonthly},
	{"spot", domain.PeriodSpot},
}

func detectPeriod(lower string) (domain.Period, bool) {
	for _, k := range periodKeywords {
		if strings.Contains(lower, k.phrase) {
			return k.period, true
		}
	}
	return "", false
}

func detectCurrency(s string) string {
	m := currencyRegex.FindString(s)
	return strings.ToUpper(strings.TrimSpace(m))
}
