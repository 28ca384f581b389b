package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/oracle"
)

// mergeInstruction is the oracle instruction for folding a rollup into an
// existing article. The conflict clause is injected per policy.
const mergeInstruction = `You are a knowledge base editor.

You are given the current body of a knowledge article and a new summary of
recent conversation on the same topic. Produce the updated article body.

Requirements:
1. Integrate the new facts into the existing body
2. De-duplicate: state each fact once
3. Preserve established facts not contradicted by the new material
4. %s
5. Keep the body as plain prose, organized and concise

Respond with ONLY the updated body text, no preamble.`

// composeInstruction derives a fresh article body from a rollup summary.
const composeInstruction = `You are a knowledge base editor.

Turn the following conversation summary into the initial body of a
knowledge article on its topic. State the facts plainly, one topic only.

Respond with ONLY the article body text, no preamble.`

// titleInstruction derives an article title from its body.
const titleInstruction = `Produce a short title (at most eight words) naming
the topic of the following knowledge article body.

Respond with ONLY the title, no preamble and no quotation marks.`

// conflictClauses maps each policy to its merge instruction clause.
var conflictClauses = map[config.ConflictPolicy]string{
	config.ConflictRecencyWins: "On contradiction, the newer statement wins: overwrite the contradicted fact with the new one",
	config.ConflictKeepBoth:    "On contradiction, keep both statements, noting which is more recent",
	config.ConflictFlag:        "On contradiction, keep the established fact and append a CONFLICT note quoting the new statement",
}

// Merger folds rollups into articles via oracle-driven rewrites.
type Merger struct {
	oracle oracle.Client
	policy config.ConflictPolicy
	logger *zap.Logger
}

// NewMerger creates an article merger with the given conflict policy.
func NewMerger(client oracle.Client, policy config.ConflictPolicy, logger *zap.Logger) (*Merger, error) {
	if client == nil {
		return nil, fmt.Errorf("oracle client cannot be nil")
	}
	if _, ok := conflictClauses[policy]; !ok {
		return nil, fmt.Errorf("unknown conflict policy %q", policy)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Merger{
		oracle: client,
		policy: policy,
		logger: logger,
	}, nil
}

// Merge produces the article's updated body integrating the rollup.
//
// Merge does not mutate the article; the hierarchy applies body, rollup
// link, and timestamp as one commit after the response is validated. On
// oracle failure the error surfaces and the rollup stays ungated.
func (m *Merger) Merge(ctx context.Context, article *Article, rollup *Rollup) (string, error) {
	if article == nil {
		return "", fmt.Errorf("article cannot be nil")
	}
	if rollup == nil {
		return "", fmt.Errorf("rollup cannot be nil")
	}

	instruction := fmt.Sprintf(mergeInstruction, conflictClauses[m.policy])
	input := fmt.Sprintf("Current article body:\n%s\n\nNew summary:\n%s", article.Body, rollup.Summary)

	body, err := m.oracle.Complete(ctx, instruction, input)
	if err != nil {
		return "", fmt.Errorf("merge rollup %s into article %s: %w", rollup.ID, article.ID, err)
	}

	m.logger.Info("article merge produced",
		zap.String("article_id", article.ID),
		zap.String("rollup_id", rollup.ID),
		zap.Int("body_chars", len(body)))

	return body, nil
}

// Compose mints a new article from a rollup summary alone.
//
// The body comes from one oracle call; the title from a best-effort second
// call that falls back to a truncated summary line rather than blocking
// article creation.
func (m *Merger) Compose(ctx context.Context, rollup *Rollup) (*Article, error) {
	if rollup == nil {
		return nil, fmt.Errorf("rollup cannot be nil")
	}

	body, err := m.oracle.Complete(ctx, composeInstruction, rollup.Summary)
	if err != nil {
		return nil, fmt.Errorf("compose article from rollup %s: %w", rollup.ID, err)
	}

	title, err := m.oracle.Complete(ctx, titleInstruction, body)
	if err != nil {
		title = fallbackTitle(rollup.Summary)
		m.logger.Warn("title generation failed, using summary prefix",
			zap.String("rollup_id", rollup.ID),
			zap.String("title", title),
			zap.Error(err))
	}

	return &Article{
		ID:        uuid.New().String(),
		Title:     title,
		Body:      body,
		RollupIDs: []string{rollup.ID},
		UpdatedAt: time.Now(),
	}, nil
}

// fallbackTitle truncates the first summary line to a usable title.
func fallbackTitle(summary string) string {
	line := strings.TrimSpace(summary)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	const maxTitle = 60
	if len(line) > maxTitle {
		line = strings.TrimRight(line[:maxTitle], " ") + "…"
	}
	if line == "" {
		line = "Untitled topic"
	}
	return line
}
