// Package retrieval ranks knowledge articles against an incoming query
// for prompt injection.
//
// Two rankers are provided: a keyword-overlap ranker that needs no
// external services, and a chromem-go vector index that ranks by
// embedding similarity when an embedder is configured. Both are
// deterministic for a fixed article set, which keeps retrieval idempotent
// between ingests.
package retrieval

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

// KeywordRanker ranks articles by keyword overlap with the query.
// Stateless and dependency-free; the fallback when no embedding index is
// configured.
type KeywordRanker struct{}

// NewKeywordRanker creates a keyword ranker.
func NewKeywordRanker() *KeywordRanker {
	return &KeywordRanker{}
}

// Rank returns at most k candidates ordered by descending keyword
// overlap with the query. Zero-overlap articles are excluded; ties break
// by most recently updated article.
func (r *KeywordRanker) Rank(_ context.Context, query string, candidates []*memory.Article, k int) ([]*memory.Article, error) {
	queryWords := tokenize(query)

	type scored struct {
		article *memory.Article
		overlap int
	}

	ranked := make([]scored, 0, len(candidates))
	for _, a := range candidates {
		overlap := intersectionSize(queryWords, tokenize(a.Title+" "+a.Body))
		if overlap == 0 {
			continue
		}
		ranked = append(ranked, scored{article: a, overlap: overlap})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].overlap != ranked[j].overlap {
			return ranked[i].overlap > ranked[j].overlap
		}
		return ranked[i].article.UpdatedAt.After(ranked[j].article.UpdatedAt)
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}

	out := make([]*memory.Article, len(ranked))
	for i, s := range ranked {
		out[i] = s.article
	}
	return out, nil
}

var _ memory.Ranker = (*KeywordRanker)(nil)

// stopwords excluded from overlap scoring.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "of": {}, "on": {}, "or": {}, "she": {}, "that": {},
	"the": {}, "their": {}, "they": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"who": {}, "why": {}, "with": {}, "you": {},
}

var wordPattern = regexp.MustCompile(`[a-z0-9']+`)

// tokenize lowercases text into a keyword set, dropping stopwords.
func tokenize(text string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stopwords[w]; skip {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// intersectionSize returns the number of words both sets share.
func intersectionSize(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
