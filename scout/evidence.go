package scout

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"studyrag/types"
)

// ConsolidatePages merges page ranges whose distance (next start minus
// current end) is below gap. Overlapping ranges always merge.
func ConsolidatePages(ranges []types.PageRange, gap int) []types.PageRange {
	if len(ranges) == 0 {
		return []types.PageRange{}
	}

	sorted := make([]types.PageRange, 0, len(ranges))
	for _, r := range ranges {
		if r[1] < r[0] {
			r[0], r[1] = r[1], r[0]
		}
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	out := []types.PageRange{sorted[0]}
	for _, r := range sorted[1:] {
		cur := &out[len(out)-1]
		if r[0] <= cur[1] || r[0]-cur[1] < gap {
			if r[1] > cur[1] {
				cur[1] = r[1]
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// SinglePages turns page numbers into one-page ranges.
func SinglePages(pages ...int) []types.PageRange {
	out := make([]types.PageRange, len(pages))
	for i, p := range pages {
		out[i] = types.PageRange{p, p}
	}
	return out
}

var problemPattern = regexp.MustCompile(`(?i)\b(problem|exercise|challenge)s?\s+(\d+(?:\.\d+)*)`)

// ExtractProblems finds problem, exercise and challenge identifiers in the
// chunks, in chunk order, keeping the first occurrence of each label per file.
func ExtractProblems(chunks []types.ScoredChunk, snippetLen int) []types.ProblemRef {
	refs := []types.ProblemRef{}
	seen := make(map[string]struct{})

	for _, c := range chunks {
		for _, m := range problemPattern.FindAllStringSubmatchIndex(c.Text, -1) {
			kind := strings.ToLower(c.Text[m[2]:m[3]])
			label := strings.ToUpper(kind[:1]) + kind[1:] + " " + c.Text[m[4]:m[5]]

			key := c.FileID + "\x00" + label
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			refs = append(refs, types.ProblemRef{
				FileID:  c.FileID,
				Page:    c.PageStart,
				Label:   label,
				Snippet: snippet(c.Text[m[0]:], snippetLen),
			})
		}
	}
	return refs
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "..."
}

var phrasePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+){1,3}\b`)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"chapter": {}, "each": {}, "example": {}, "exercise": {}, "figure": {}, "for": {}, "from": {},
	"given": {}, "he": {}, "her": {}, "his": {}, "if": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"let": {}, "note": {}, "of": {}, "on": {}, "or": {}, "our": {}, "problem": {}, "section": {},
	"see": {}, "she": {}, "so": {}, "table": {}, "that": {}, "the": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "those": {}, "thus": {}, "to": {}, "we": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "while": {}, "with": {}, "you": {}, "your": {},
}

func isStopWord(w string) bool {
	_, ok := stopWords[strings.ToLower(w)]
	return ok
}

// ExtractKeyTerms collects 2-4 word capitalized phrases, trims stop-words
// from both ends and returns up to max phrases by descending frequency.
// Ties keep first appearance order.
func ExtractKeyTerms(chunks []types.ScoredChunk, max int) []string {
	counts := make(map[string]int)
	var order []string

	for _, c := range chunks {
		for _, m := range phrasePattern.FindAllString(c.Text, -1) {
			words := strings.Fields(m)
			for len(words) > 0 && isStopWord(words[0]) {
				words = words[1:]
			}
			for len(words) > 0 && isStopWord(words[len(words)-1]) {
				words = words[:len(words)-1]
			}
			if len(words) < 2 {
				continue
			}
			term := strings.Join(words, " ")
			if _, ok := counts[term]; !ok {
				order = append(order, term)
			}
			counts[term]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if max > 0 && len(order) > max {
		order = order[:max]
	}
	if order == nil {
		return []string{}
	}
	return order
}
