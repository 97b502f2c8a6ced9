package extractor

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`[ \t]+`)
	blankLinesRun = regexp.MustCompile(`\n{3,}`)
	smartQuotes   = map[rune]rune{
		'‘': '\'', '’': '\'',
		'“': '"', '”': '"',
		'–': '-', '—': '-',
	}
)

// normalize collapses carriage returns into newlines, folds smart quotes
// to their ASCII equivalents, collapses runs of horizontal whitespace, and
// caps blank-line runs at one, matching the extractor's documented output
// contract.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = foldSmartQuotes(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func foldSmartQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := smartQuotes[r]; ok {
			b.WriteRune(rep)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
