// Package clauseparser implements ClauseParser: deterministic,
// specificity-ordered pattern matching from normalised contract text to
// structured Clauses with a confidence level, plus family auto-detection.
package clauseparser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/riverdock/contractdesk/internal/domain"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/registry"
)

// Warning is one paragraph the parser could not turn into a clause but that
// looked clause-like, surfaced for human review.
type Warning struct {
	SectionRef string
	Reason     string
}

// Parser is the ClauseParser. It holds no mutable state between calls:
// Parse is a pure function of its input text, and DetectFamily reads the
// registry snapshot taken at call time (see the registry package for the
// atomicity guarantee).
type Parser struct {
	log      *logger.Logger
	registry *registry.Registry
	matchers []Matcher // sorted by descending specificity
}

// New builds a Parser bound to reg. The matcher table is fixed at
// construction and does not consult reg; DetectFamily reads reg's family
// signatures on every call, so a runtime family registration is visible at
// the next DetectFamily call.
func New(log *logger.Logger, reg *registry.Registry) *Parser {
	p := &Parser{log: log.With("component", "clauseparser"), registry: reg}
	p.matchers = buildMatchers()
	sort.SliceStable(p.matchers, func(i, j int) bool {
		return p.matchers[i].Specificity > p.matchers[j].Specificity
	})
	return p
}

// Result is the ClauseParser's output: both ordered by section_ref.
type Result struct {
	Clauses  []domain.Clause
	Warnings []Warning
}

// Parse normalises text, splits it into paragraphs with derived section
// references, runs the ordered matcher pipeline over each, extracts
// embedded penalty sub-clauses from any DEFAULT_AND_REMEDIES clause, and
// deduplicates the result. Family detection is not part of Parse; see
// DetectFamily.
func (p *Parser) Parse(text string) Result {
	paragraphs := splitParagraphs(text)

	var clauses []domain.Clause
	var warnings []Warning

	for _, para := range paragraphs {
		lower := strings.ToLower(para.Text)
		for _, m := range p.matchers {
			if !anchorPresent(lower, m.Anchors) {
				continue
			}
			res := m.Fn(para.Text, lower, para.SectionRef)
			if res.Clause == nil && res.Warning == "" {
				continue // this matcher didn't claim the paragraph; try the next, less specific one
			}
			if res.Clause != nil {
				clauses = append(clauses, *res.Clause)
			}
			if res.Warning != "" {
				warnings = append(warnings, Warning{SectionRef: para.SectionRef, Reason: res.Warning})
			}
			break // more specific matcher claimed it; no duplication from less specific ones
		}
	}

	clauses = extractEmbeddedPenalties(clauses)
	clauses = dedup(clauses)

	sort.SliceStable(clauses, func(i, j int) bool { return clauses[i].SectionRef < clauses[j].SectionRef })
	sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].SectionRef < warnings[j].SectionRef })

	return Result{Clauses: clauses, Warnings: warnings}
}

// DetectFamily scores every registered family by counting detect_anchors
// occurrences in text and returns the highest scorer above threshold. ok is
// false if nothing clears the threshold.
func (p *Parser) DetectFamily(text string, threshold int) (domain.FamilySignature, bool) {
	lower := strings.ToLower(text)
	families := p.registry.FamilySignatures()

	var best domain.FamilySignature
	bestScore := -1
	// stable iteration order for deterministic tie-breaking: sort family ids.
	ids := make([]string, 0, len(families))
	for id := range families {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fam := families[id]
		score := 0
		for _, anchor := range fam.DetectAnchors {
			score += strings.Count(lower, strings.ToLower(anchor))
		}
		if score > bestScore {
			bestScore = score
			best = fam
		}
	}
	if bestScore < threshold {
		return domain.FamilySignature{}, false
	}
	return best, true
}

type paragraphUnit struct {
	Text       string
	SectionRef string
}

var (
	numberedHeadingOnly = regexp.MustCompile(`^\d+\.\s+[A-Za-z][A-Za-z /&-]{0,50}$`)
	numberedLead        = regexp.MustCompile(`^(\d+)\.\s`)
	letteredLead        = regexp.MustCompile(`^\(?([a-zA-Z])\)?\.\s`)
	romanLead           = regexp.MustCompile(`^\(?([ivxIVX]{1,6})\)\.?\s`)
)

// splitParagraphs normalises smart quotes, collapses whitespace, splits on
// blank-line paragraph boundaries, merges a standalone numbered heading
// into the following body paragraph, and derives each paragraph's
// section_ref from its leading heading pattern or a sequential fallback.
func splitParagraphs(text string) []paragraphUnit {
	text = foldSmartQuotesLocal(text)
	rawChunks := splitBlankSeparated(text)

	var merged []string
	for i := 0; i < len(rawChunks); i++ {
		c := rawChunks[i]
		if numberedHeadingOnly.MatchString(c) && i+1 < len(rawChunks) {
			merged = append(merged, c+": "+rawChunks[i+1])
			i++
			continue
		}
		merged = append(merged, c)
	}

	out := make([]paragraphUnit, 0, len(merged))
	seq := 0
	for _, c := range merged {
		seq++
		out = append(out, paragraphUnit{Text: c, SectionRef: deriveSectionRef(c, seq)})
	}
	return out
}

func deriveSectionRef(p string, seq int) string {
	if m := numberedLead.FindStringSubmatch(p); m != nil {
		return "Section " + m[1]
	}
	if m := letteredLead.FindStringSubmatch(p); m != nil {
		return "Section " + m[1]
	}
	if m := romanLead.FindStringSubmatch(p); m != nil {
		return "Section " + m[1]
	}
	return fmt.Sprintf("Para %d", seq)
}

// splitBlankSeparated splits text into blank-line-delimited blocks, joining
// the lines within each block with a single space (wrapped lines become
// one logical paragraph).
func splitBlankSeparated(text string) []string {
	rawBlocks := regexp.MustCompile(`\n\s*\n`).Split(text, -1)
	out := make([]string, 0, len(rawBlocks))
	for _, b := range rawBlocks {
		lines := strings.Split(b, "\n")
		var kept []string
		for _, l := range lines {
			l = strings.TrimSpace(l)
			if l != "" {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, strings.Join(kept, " "))
	}
	return out
}

var smartQuoteFold = map[rune]rune{
	'‘': '\'', '’': '\'', '“': '"', '”': '"', '–': '-', '—': '-',
}

func foldSmartQuotesLocal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := smartQuoteFold[r]; ok {
			b.WriteRune(rep)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func anchorPresent(lower string, anchors []string) bool {
	if len(anchors) == 0 {
		return true
	}
	for _, a := range anchors {
		if strings.Contains(lower, a) {
			return true
		}
	}
	return false
}
