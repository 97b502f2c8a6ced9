package validator

import (
	"fmt"
	"sort"

	"github.com/riverdock/contractdesk/internal/domain"
)

// valueRange is the plausible [min, max] band for one solver parameter; a
// value outside [0.1*min, 10*max] is flagged suspicious, never fatal.
type valueRange struct {
	Min float64
	Max float64
}

// defaultRanges seeds the per-parameter sanity bands named in the system's
// component design (ammonia buy price between $100 and $1200/ton is the
// worked example; the others are drawn from the same commercial frame).
func defaultRanges() map[string]valueRange {
	return map[string]valueRange{
		"price":             {Min: 100, Max: 1200},
		"qty_tolerance_pct": {Min: 1, Max: 10},
		"loading_rate":      {Min: 500, Max: 10000},
		"demurrage_rate":    {Min: 1000, Max: 50000},
		"laytime_days":      {Min: 1, Max: 30},
	}
}

// isSuspicious reports whether cl's value falls outside [0.1*min, 10*max]
// for its parameter's configured range. Parameters with no configured
// range are never flagged.
func (v *Validator) isSuspicious(cl domain.Clause) (bool, string) {
	r, ok := v.ranges[cl.Parameter]
	if !ok {
		return false, ""
	}
	lower := 0.1 * r.Min
	upper := 10 * r.Max
	for _, val := range []float64{cl.Value, cl.ValueUpper} {
		if val == 0 {
			continue
		}
		if val < lower || val > upper {
			return true, fmt.Sprintf("%s=%.2f outside plausible band [%.2f, %.2f]", cl.Parameter, val, lower, upper)
		}
	}
	return false, ""
}

// detectConflicts flags, for any parameter with both >= and <= clauses, a
// conflict if max(>= values) > min(<= values).
func detectConflicts(clauses []domain.Clause) []Finding {
	byParam := map[string][]domain.Clause{}
	for _, c := range clauses {
		if !c.IsBoundShaped() {
			continue
		}
		byParam[c.Parameter] = append(byParam[c.Parameter], c)
	}

	var out []Finding
	params := make([]string, 0, len(byParam))
	for p := range byParam {
		params = append(params, p)
	}
	sort.Strings(params)

	for _, param := range params {
		group := byParam[param]
		var maxGTE float64
		var minLTE float64
		hasGTE, hasLTE := false, false
		for _, c := range group {
			switch c.Operator {
			case domain.OpGTE:
				if !hasGTE || c.Value > maxGTE {
					maxGTE = c.Value
				}
				hasGTE = true
			case domain.OpLTE:
				if !hasLTE || c.Value < minLTE {
					minLTE = c.Value
				}
				hasLTE = true
			}
		}
		if hasGTE && hasLTE && maxGTE > minLTE {
			out = append(out, Finding{
				Kind:        FindingConflict,
				Parameter:   param,
				Description: fmt.Sprintf("%s: floor %.2f exceeds ceiling %.2f", param, maxGTE, minLTE),
			})
		}
	}
	return out
}
