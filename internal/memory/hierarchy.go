package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/memoryd/internal/memory"

// Ranker orders candidate articles by relevance to a query, returning at
// most k of them, most relevant first. Implementations must be
// deterministic for a fixed article set so retrieval is idempotent
// between ingests.
type Ranker interface {
	Rank(ctx context.Context, query string, candidates []*Article, k int) ([]*Article, error)
}

// Indexer is implemented by rankers that maintain their own index of
// article content. The hierarchy notifies it after every article commit.
type Indexer interface {
	IndexArticle(ctx context.Context, article *Article) error
}

// Stats is a compact snapshot of collection sizes for status reporting.
type Stats struct {
	PendingLogs  int `json:"pending_logs"`
	ArchivedLogs int `json:"archived_logs"`
	Rollups      int `json:"rollups"`
	Articles     int `json:"articles"`
	UngatedQueue int `json:"ungated_queue"`
}

// Hierarchy is the mutable aggregate owning logs, rollups, and articles.
//
// One mutex serializes the whole ingest pipeline: gating reads article
// state that the merge step then mutates, so interleaving two ingestions
// would let both gate against a stale article snapshot and lose updates.
type Hierarchy struct {
	logger *zap.Logger

	consolidator *Consolidator
	gate         *Gate
	merger       *Merger
	ranker       Ranker
	topK         int

	tracer trace.Tracer
	meter  metric.Meter

	turnsIngested metric.Int64Counter
	rollupsMade   metric.Int64Counter
	gateDecisions metric.Int64Counter
	mergesApplied metric.Int64Counter
	degradations  metric.Int64Counter

	mu       sync.Mutex
	logs     *LogStore
	rollups  []*Rollup
	articles []*Article
	// ungated holds rollups whose gate/merge exhausted the oracle retry
	// budget. They are re-gated ahead of new consolidation work.
	ungated []*Rollup
}

// HierarchyOption configures a Hierarchy.
type HierarchyOption func(*Hierarchy)

// WithTopK sets the default retrieval result count.
func WithTopK(k int) HierarchyOption {
	return func(h *Hierarchy) {
		if k > 0 {
			h.topK = k
		}
	}
}

// NewHierarchy creates an empty hierarchy.
//
// The ranker is required: retrieval has no meaning without one. Use the
// retrieval package's keyword ranker when no embedding index is
// configured.
func NewHierarchy(consolidator *Consolidator, gate *Gate, merger *Merger, ranker Ranker, logger *zap.Logger, opts ...HierarchyOption) (*Hierarchy, error) {
	if consolidator == nil {
		return nil, fmt.Errorf("consolidator cannot be nil")
	}
	if gate == nil {
		return nil, fmt.Errorf("gate cannot be nil")
	}
	if merger == nil {
		return nil, fmt.Errorf("merger cannot be nil")
	}
	if ranker == nil {
		return nil, fmt.Errorf("ranker cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hierarchy{
		logger:       logger,
		consolidator: consolidator,
		gate:         gate,
		merger:       merger,
		ranker:       ranker,
		topK:         3,
		tracer:       otel.Tracer(instrumentationName),
		meter:        otel.Meter(instrumentationName),
		logs:         NewLogStore(),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.initMetrics()

	return h, nil
}

// initMetrics initializes OpenTelemetry counters. Metric creation
// failures degrade to logging; they never block the pipeline.
func (h *Hierarchy) initMetrics() {
	var err error

	h.turnsIngested, err = h.meter.Int64Counter(
		"memoryd.hierarchy.turns_ingested_total",
		metric.WithDescription("Total conversation turns appended to the log store"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		h.logger.Warn("failed to create turns counter", zap.Error(err))
	}

	h.rollupsMade, err = h.meter.Int64Counter(
		"memoryd.hierarchy.rollups_total",
		metric.WithDescription("Total rollups created by consolidation"),
		metric.WithUnit("{rollup}"),
	)
	if err != nil {
		h.logger.Warn("failed to create rollups counter", zap.Error(err))
	}

	h.gateDecisions, err = h.meter.Int64Counter(
		"memoryd.hierarchy.gate_decisions_total",
		metric.WithDescription("Total gating decisions labeled by outcome (existing, new)"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		h.logger.Warn("failed to create gate counter", zap.Error(err))
	}

	h.mergesApplied, err = h.meter.Int64Counter(
		"memoryd.hierarchy.merges_total",
		metric.WithDescription("Total article merges committed"),
		metric.WithUnit("{merge}"),
	)
	if err != nil {
		h.logger.Warn("failed to create merges counter", zap.Error(err))
	}

	h.degradations, err = h.meter.Int64Counter(
		"memoryd.hierarchy.degradations_total",
		metric.WithDescription("Total degraded pipeline outcomes labeled by stage"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		h.logger.Warn("failed to create degradations counter", zap.Error(err))
	}
}

// Ingest appends one turn and runs the consolidate-gate-merge pipeline to
// completion before returning, so callers observe a consistent state.
//
// An oracle failure that exhausts its retry budget surfaces as an error
// wrapping oracle.ErrUnavailable; committed state is never corrupted. A
// rollup that was created but could not be gated stays queued and is
// re-gated on the next ingest.
func (h *Hierarchy) Ingest(ctx context.Context, role, text string) error {
	ctx, span := h.tracer.Start(ctx, "Hierarchy.Ingest")
	defer span.End()

	parsedRole, err := ParseRole(role)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.logs.Append(parsedRole, text); err != nil {
		return err
	}
	h.addCount(ctx, h.turnsIngested, 1)

	// Re-gate queued rollups before consolidating new work so article
	// assignment keeps rollup order.
	if err := h.drainUngatedLocked(ctx); err != nil {
		return err
	}

	rollup, err := h.consolidator.MaybeConsolidate(ctx, h.logs.Pending())
	if err != nil {
		h.addCount(ctx, h.degradations, 1, attribute.String("stage", "consolidate"))
		return err
	}
	if rollup == nil {
		return nil
	}

	// Commit rollup and log consumption as one step: no window where
	// logs appear both pending and consumed.
	if err := h.logs.Consume(len(rollup.SourceLogIDs)); err != nil {
		return fmt.Errorf("consume logs for rollup %s: %w", rollup.ID, err)
	}
	h.rollups = append(h.rollups, rollup)
	h.addCount(ctx, h.rollupsMade, 1)

	if err := h.gateAndCommitLocked(ctx, rollup); err != nil {
		h.ungated = append(h.ungated, rollup)
		return err
	}

	return nil
}

// drainUngatedLocked retries gating for queued rollups. Stops at the
// first failure, leaving the remainder queued. Caller holds h.mu.
func (h *Hierarchy) drainUngatedLocked(ctx context.Context) error {
	for len(h.ungated) > 0 {
		rollup := h.ungated[0]
		if err := h.gateAndCommitLocked(ctx, rollup); err != nil {
			return fmt.Errorf("re-gate queued rollup %s: %w", rollup.ID, err)
		}
		h.ungated = h.ungated[1:]
		h.logger.Info("queued rollup gated", zap.String("rollup_id", rollup.ID))
	}
	return nil
}

// gateAndCommitLocked assigns a rollup to an article and commits the
// merge or creation. Caller holds h.mu.
//
// The article mutation (body, rollup link, timestamp) is applied as one
// commit after the oracle response is validated, never incrementally.
func (h *Hierarchy) gateAndCommitLocked(ctx context.Context, rollup *Rollup) error {
	decision, err := h.gate.Gate(ctx, rollup, h.articles)
	if err != nil {
		return err
	}
	if decision.Degraded {
		h.addCount(ctx, h.degradations, 1, attribute.String("stage", "gate"))
	}

	if decision.CreateNew() {
		article, err := h.merger.Compose(ctx, rollup)
		if err != nil {
			return err
		}
		h.articles = append(h.articles, article)
		h.addCount(ctx, h.gateDecisions, 1, attribute.String("outcome", "new"))
		h.logger.Info("article created",
			zap.String("article_id", article.ID),
			zap.String("rollup_id", rollup.ID),
			zap.String("title", article.Title))
		h.indexArticle(ctx, article)
		return nil
	}

	article := h.findArticleLocked(decision.ArticleID)
	if article == nil {
		return fmt.Errorf("gate chose unknown article %s", decision.ArticleID)
	}

	body, err := h.merger.Merge(ctx, article, rollup)
	if err != nil {
		return err
	}

	article.Body = body
	article.RollupIDs = append(article.RollupIDs, rollup.ID)
	article.UpdatedAt = time.Now()

	h.addCount(ctx, h.gateDecisions, 1, attribute.String("outcome", "existing"))
	h.addCount(ctx, h.mergesApplied, 1)
	h.logger.Info("article updated",
		zap.String("article_id", article.ID),
		zap.String("rollup_id", rollup.ID),
		zap.Float64("gate_confidence", decision.Confidence))
	h.indexArticle(ctx, article)
	return nil
}

// indexArticle notifies an index-maintaining ranker of an article commit.
// Indexing is best-effort: a failure degrades retrieval quality, not the
// committed state.
func (h *Hierarchy) indexArticle(ctx context.Context, article *Article) {
	indexer, ok := h.ranker.(Indexer)
	if !ok {
		return
	}
	if err := indexer.IndexArticle(ctx, article.clone()); err != nil {
		h.addCount(ctx, h.degradations, 1, attribute.String("stage", "index"))
		h.logger.Warn("article indexing failed",
			zap.String("article_id", article.ID),
			zap.Error(err))
	}
}

// findArticleLocked returns the article with the given ID, or nil.
func (h *Hierarchy) findArticleLocked(id string) *Article {
	for _, a := range h.articles {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Retrieve returns at most k articles relevant to the query, most
// relevant first, ties broken by recency. Read-only: calling Retrieve
// twice with no intervening Ingest returns the same ordered result.
//
// k <= 0 selects the configured default.
func (h *Hierarchy) Retrieve(ctx context.Context, query string, k int) ([]*Article, error) {
	ctx, span := h.tracer.Start(ctx, "Hierarchy.Retrieve")
	defer span.End()

	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	if k <= 0 {
		k = h.topK
	}

	// Copy candidates under the lock, rank outside it.
	h.mu.Lock()
	candidates := make([]*Article, 0, len(h.articles))
	for _, a := range h.articles {
		candidates = append(candidates, a.clone())
	}
	h.mu.Unlock()

	if len(candidates) == 0 {
		return nil, nil
	}

	ranked, err := h.ranker.Rank(ctx, query, candidates, k)
	if err != nil {
		return nil, fmt.Errorf("rank articles: %w", err)
	}
	return ranked, nil
}

// Stats returns collection sizes.
func (h *Hierarchy) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return Stats{
		PendingLogs:  h.logs.PendingCount(),
		ArchivedLogs: len(h.logs.archived),
		Rollups:      len(h.rollups),
		Articles:     len(h.articles),
		UngatedQueue: len(h.ungated),
	}
}

// addCount increments a counter if it was created successfully.
func (h *Hierarchy) addCount(ctx context.Context, counter metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attrs...))
}
