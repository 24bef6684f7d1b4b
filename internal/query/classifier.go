package query

import "strings"

// Type is the query intent that picks which backends to consult.
type Type string

const (
	// TypeSemantic means "where is X" style lookups, vector search.
	TypeSemantic Type = "semantic"
	// TypeStructural means call/dependency questions, graph store.
	TypeStructural Type = "structural"
	// TypeTemporal means history questions, analysis history.
	TypeTemporal Type = "temporal"
	// TypeAnalytical means quality/metric questions, graph store.
	TypeAnalytical Type = "analytical"
	// TypeCombined consults every backend.
	TypeCombined Type = "combined"
)

var semanticKeywords = keywordSet(
	"where", "find", "locate", "search", "show", "list", "get",
	"how", "count", "contains", "has", "includes",
)

var structuralKeywords = keywordSet(
	"call", "calls", "caller", "callee", "called",
	"depend", "depends", "dependency", "dependencies",
	"chain", "path", "impact", "affect", "ripple", "break", "circular",
	"import", "imports", "imported",
	"usage", "uses", "used", "reference", "references",
	"hierarchy", "relation", "relationship", "relationships",
)

var temporalKeywords = keywordSet(
	"before", "did", "history", "previous", "last", "past",
	"solved", "tried", "attempt", "remember", "encounter",
)

var analyticalKeywords = keywordSet(
	"quality", "complexity", "issue", "smell", "critical",
	"important", "report", "analyze", "metric", "insight",
)

func keywordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Classify buckets a query by keyword hits. Equal top scores across
// several buckets give TypeCombined; no hits default to TypeSemantic.
func Classify(query string) Type {
	words := tokenize(query)

	scores := map[Type]int{
		TypeSemantic:   countHits(words, semanticKeywords),
		TypeStructural: countHits(words, structuralKeywords),
		TypeTemporal:   countHits(words, temporalKeywords),
		TypeAnalytical: countHits(words, analyticalKeywords),
	}

	max := 0
	for _, score := range scores {
		if score > max {
			max = score
		}
	}
	if max == 0 {
		return TypeSemantic
	}

	var matched []Type
	for _, t := range []Type{TypeSemantic, TypeStructural, TypeTemporal, TypeAnalytical} {
		if scores[t] == max {
			matched = append(matched, t)
		}
	}
	if len(matched) > 1 {
		return TypeCombined
	}
	return matched[0]
}

// tokenize lowercases and splits the query, trimming punctuation so
// "this?" matches "this".
func tokenize(query string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?'\"()")
		if w != "" {
			words[w] = true
		}
	}
	return words
}

func countHits(words, keywords map[string]bool) int {
	n := 0
	for w := range words {
		if keywords[w] {
			n++
		}
	}
	return n
}
