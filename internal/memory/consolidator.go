package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/oracle"
)

// summarizeInstruction is the oracle instruction for rollup creation.
const summarizeInstruction = `You are a memory compression engine for a conversational agent.

Produce a concise summary of this conversation segment. The summary must:
1. Preserve every durable fact (names, dates, preferences, decisions)
2. Drop greetings, filler, and repetition
3. Attribute facts to their speaker where it matters
4. Read as plain prose, a few sentences at most

Respond with ONLY the summary text, no preamble.`

// ConsolidatorConfig controls when pending logs are rolled up.
type ConsolidatorConfig struct {
	// MaxPendingLogs triggers consolidation at this pending count.
	MaxPendingLogs int

	// MaxPendingTokens triggers consolidation at this estimated token
	// count. Zero disables the token trigger.
	MaxPendingTokens int
}

// Consolidator batches pending logs and compresses them into rollups via
// the oracle.
type Consolidator struct {
	oracle oracle.Client
	config ConsolidatorConfig
	logger *zap.Logger
}

// NewConsolidator creates a consolidator.
func NewConsolidator(client oracle.Client, cfg ConsolidatorConfig, logger *zap.Logger) (*Consolidator, error) {
	if client == nil {
		return nil, fmt.Errorf("oracle client cannot be nil")
	}
	if cfg.MaxPendingLogs < 1 {
		return nil, fmt.Errorf("max pending logs must be at least 1, got %d", cfg.MaxPendingLogs)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Consolidator{
		oracle: client,
		config: cfg,
		logger: logger,
	}, nil
}

// ShouldConsolidate reports whether the pending batch has reached either
// configured threshold.
func (c *Consolidator) ShouldConsolidate(pending []*LogEntry) bool {
	if len(pending) == 0 {
		return false
	}
	if len(pending) >= c.config.MaxPendingLogs {
		return true
	}
	if c.config.MaxPendingTokens > 0 {
		total := 0
		for _, e := range pending {
			total += estimateTokens(e.Text)
		}
		if total >= c.config.MaxPendingTokens {
			return true
		}
	}
	return false
}

// MaybeConsolidate compresses the pending batch into a rollup when a
// threshold is met. Returns (nil, nil) below threshold.
//
// The rollup references exactly the given log IDs; the caller commits log
// consumption atomically with the rollup. On oracle failure no rollup is
// produced and the logs remain pending.
func (c *Consolidator) MaybeConsolidate(ctx context.Context, pending []*LogEntry) (*Rollup, error) {
	if !c.ShouldConsolidate(pending) {
		return nil, nil
	}

	var b strings.Builder
	ids := make([]string, len(pending))
	for i, e := range pending {
		ids[i] = e.ID
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Text)
	}

	summary, err := c.oracle.Complete(ctx, summarizeInstruction, b.String())
	if err != nil {
		c.logger.Warn("consolidation summary failed, logs remain pending",
			zap.Int("pending", len(pending)),
			zap.Error(err))
		return nil, fmt.Errorf("summarize %d logs: %w", len(pending), err)
	}

	rollup := &Rollup{
		ID:           uuid.New().String(),
		SourceLogIDs: ids,
		Summary:      summary,
		CreatedAt:    time.Now(),
	}

	c.logger.Info("rollup created",
		zap.String("rollup_id", rollup.ID),
		zap.Int("source_logs", len(ids)),
		zap.Int("summary_chars", len(summary)))

	return rollup, nil
}

// estimateTokens approximates token count as len/4, the same rough
// 4-chars-per-token heuristic the summarization targets use.
func estimateTokens(text string) int {
	return len(text) / 4
}
