package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/oracle"
)

// gateInstruction is the oracle instruction for one relevance judgment.
const gateInstruction = `You are a topic classifier for a knowledge base.

You are given a knowledge article and a new summary of recent conversation.
Judge whether the new information belongs to the article's topic.

Respond with exactly one line:
  RELEVANT <confidence>
or
  IRRELEVANT <confidence>

where <confidence> is a number between 0.0 and 1.0. No other text.`

// Decision is the outcome of gating one rollup against the article set.
type Decision struct {
	// ArticleID is the chosen article, empty when a new article should be
	// created.
	ArticleID string

	// Confidence is the winning judgment's confidence, zero for new
	// articles.
	Confidence float64

	// Degraded is set when candidates existed but every oracle judgment
	// failed, forcing the conservative create-new fallback.
	Degraded bool
}

// CreateNew reports whether the decision is to mint a new article.
func (d Decision) CreateNew() bool {
	return d.ArticleID == ""
}

// GateConfig controls candidate prefiltering.
type GateConfig struct {
	// MaxCandidates bounds oracle calls per decision; the keyword
	// prefilter keeps only the highest-overlap articles.
	MaxCandidates int
}

// Gate assigns rollups to articles using the oracle as a binary relevance
// classifier over an open-ended candidate set.
//
// Gate is a pure decision function: it never mutates the rollup or any
// article. The hierarchy applies the result.
type Gate struct {
	oracle oracle.Client
	config GateConfig
	logger *zap.Logger
}

// NewGate creates a gating classifier.
func NewGate(client oracle.Client, cfg GateConfig, logger *zap.Logger) (*Gate, error) {
	if client == nil {
		return nil, fmt.Errorf("oracle client cannot be nil")
	}
	if cfg.MaxCandidates < 1 {
		return nil, fmt.Errorf("max candidates must be at least 1, got %d", cfg.MaxCandidates)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gate{
		oracle: client,
		config: cfg,
		logger: logger,
	}, nil
}

// Gate decides which article the rollup belongs to.
//
// Policy:
//   - exactly one relevant candidate: that article wins
//   - several relevant: highest confidence, ties broken by most recently
//     updated article
//   - none relevant (including zero articles): create new
//   - an oracle failure on one candidate counts as not relevant for that
//     candidate; if every candidate fails, create new with Degraded set
//
// Returns an error only when the context is cancelled.
func (g *Gate) Gate(ctx context.Context, rollup *Rollup, articles []*Article) (Decision, error) {
	if rollup == nil {
		return Decision{}, fmt.Errorf("rollup cannot be nil")
	}
	if len(articles) == 0 {
		return Decision{}, nil
	}

	candidates := prefilterCandidates(rollup.Summary, articles, g.config.MaxCandidates)

	type judged struct {
		article    *Article
		confidence float64
	}

	var relevant []judged
	failures := 0

	for _, a := range candidates {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}

		input := fmt.Sprintf("Article title: %s\n\nArticle body:\n%s\n\nNew summary:\n%s",
			a.Title, a.Body, rollup.Summary)

		resp, err := g.oracle.Complete(ctx, gateInstruction, input)
		if err != nil {
			// Conservative: an unevaluated candidate is not relevant.
			// Preferring a new article over a wrong merge keeps committed
			// articles clean.
			failures++
			g.logger.Warn("gate judgment failed, treating candidate as not relevant",
				zap.String("rollup_id", rollup.ID),
				zap.String("article_id", a.ID),
				zap.Error(err))
			continue
		}

		ok, confidence := parseJudgment(resp)
		if !ok {
			continue
		}
		relevant = append(relevant, judged{article: a, confidence: confidence})
	}

	if len(relevant) == 0 {
		degraded := failures > 0 && failures == len(candidates)
		if degraded {
			g.logger.Warn("all gate candidates failed to evaluate, creating new article",
				zap.String("rollup_id", rollup.ID),
				zap.Int("candidates", len(candidates)))
		}
		return Decision{Degraded: degraded}, nil
	}

	// Highest confidence wins; ties break by most recently updated
	// article. The sort is stable against the deterministic candidate
	// order, so repeated gating of the same state picks the same winner.
	sort.SliceStable(relevant, func(i, j int) bool {
		if relevant[i].confidence != relevant[j].confidence {
			return relevant[i].confidence > relevant[j].confidence
		}
		return relevant[i].article.UpdatedAt.After(relevant[j].article.UpdatedAt)
	})

	winner := relevant[0]
	return Decision{ArticleID: winner.article.ID, Confidence: winner.confidence}, nil
}

// judgmentPattern matches "RELEVANT 0.85" style responses, leniently.
var judgmentPattern = regexp.MustCompile(`(?i)\b(IRRELEVANT|RELEVANT|YES|NO)\b[^0-9]*([01]?\.?[0-9]*)`)

// parseJudgment extracts the binary verdict and confidence from an oracle
// response. Missing confidence defaults to 0.5; malformed responses are
// treated as not relevant.
func parseJudgment(resp string) (relevant bool, confidence float64) {
	m := judgmentPattern.FindStringSubmatch(resp)
	if m == nil {
		return false, 0
	}

	verdict := strings.ToUpper(m[1])
	relevant = verdict == "RELEVANT" || verdict == "YES"
	if !relevant {
		return false, 0
	}

	confidence = 0.5
	if m[2] != "" {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil && v >= 0 && v <= 1 {
			confidence = v
		}
	}
	return true, confidence
}

// prefilterCandidates ranks articles by keyword overlap with the summary
// and keeps the top limit. Overlap is a cheap bound on oracle calls, not a
// final judgment; ties keep the more recently updated article first.
func prefilterCandidates(summary string, articles []*Article, limit int) []*Article {
	type scored struct {
		article *Article
		overlap int
	}

	summaryWords := keywords(summary)
	ranked := make([]scored, 0, len(articles))
	for _, a := range articles {
		ranked = append(ranked, scored{
			article: a,
			overlap: overlapCount(summaryWords, keywords(a.Title+" "+a.Body)),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].overlap != ranked[j].overlap {
			return ranked[i].overlap > ranked[j].overlap
		}
		return ranked[i].article.UpdatedAt.After(ranked[j].article.UpdatedAt)
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]*Article, len(ranked))
	for i, s := range ranked {
		out[i] = s.article
	}
	return out
}

// stopwords excluded from keyword overlap scoring.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "his": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"its": {}, "of": {}, "on": {}, "or": {}, "she": {}, "that": {},
	"the": {}, "their": {}, "they": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "with": {}, "you": {},
}

var wordPattern = regexp.MustCompile(`[a-z0-9']+`)

// keywords lowercases and tokenizes text, dropping stopwords.
func keywords(text string) map[string]struct{} {
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

// overlapCount returns the size of the intersection of two keyword sets.
func overlapCount(a, b map[string]struct{}) int {
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
