package clauseparser

import (
	"sort"

	"github.com/riverdock/contractdesk/internal/domain"
)

var confidenceRank = map[domain.Confidence]int{
	domain.ConfidenceHigh:   3,
	domain.ConfidenceMedium: 2,
	domain.ConfidenceLow:    1,
}

// dedup groups clauses by (parameter, operator, value, clause type),
// keeping the highest-confidence clause in each group; ties break by
// lowest section_ref. Clauses with no bound parameter (narrative, penalty)
// carry an empty parameter and operator and a zero value in their key, so
// they group by clause type alone: two clauses of the same type (e.g. a
// restated boilerplate clause) collapse to one, while the key's ClauseID
// component keeps clauses of different types apart.
func dedup(clauses []domain.Clause) []domain.Clause {
	groups := make(map[domain.DedupKey][]domain.Clause)
	var order []domain.DedupKey
	for _, c := range clauses {
		k := c.DedupKey()
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	out := make([]domain.Clause, 0, len(order))
	for _, k := range order {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool {
			ri, rj := confidenceRank[group[i].Confidence], confidenceRank[group[j].Confidence]
			if ri != rj {
				return ri > rj
			}
			return group[i].SectionRef < group[j].SectionRef
		})
		out = append(out, group[0])
	}
	return out
}
