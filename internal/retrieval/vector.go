package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

// Embedder generates a vector embedding for a single text. Satisfied by
// the embeddings package's service.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndexConfig holds configuration for the chromem article index.
type VectorIndexConfig struct {
	// Path is the directory for persistent storage. Empty keeps the
	// index purely in memory.
	Path string

	// Collection is the chromem collection name.
	// Default: "memoryd_articles".
	Collection string
}

// applyDefaults sets default values for unset fields.
func (c *VectorIndexConfig) applyDefaults() {
	if c.Collection == "" {
		c.Collection = "memoryd_articles"
	}
}

// VectorIndex ranks articles by embedding similarity using chromem-go, an
// embeddable pure-Go vector database. The index lives in-process;
// external vector index services are deliberately out of scope.
//
// Implements both memory.Ranker and memory.Indexer: the hierarchy feeds
// it every article commit, and ranking queries the maintained index.
type VectorIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	logger     *zap.Logger
}

// NewVectorIndex creates a chromem-backed article index.
func NewVectorIndex(cfg VectorIndexConfig, embedder Embedder, logger *zap.Logger) (*VectorIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("creating index directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	logger.Info("vector index initialized",
		zap.String("collection", cfg.Collection),
		zap.String("path", cfg.Path),
		zap.Int("documents", collection.Count()))

	return &VectorIndex{
		db:         db,
		collection: collection,
		embedder:   embedder,
		logger:     logger,
	}, nil
}

// IndexArticle adds or replaces the article's content in the index.
// Re-adding an existing ID upserts, so merges keep the index current.
func (v *VectorIndex) IndexArticle(ctx context.Context, article *memory.Article) error {
	if article == nil {
		return fmt.Errorf("article cannot be nil")
	}

	doc := chromem.Document{
		ID:      article.ID,
		Content: article.Title + "\n" + article.Body,
		Metadata: map[string]string{
			"title":      article.Title,
			"updated_at": article.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		},
	}
	err := v.collection.AddDocument(ctx, doc)
	recordIndexResult(err)
	if err != nil {
		return fmt.Errorf("indexing article %s: %w", article.ID, err)
	}
	IndexedArticlesTotal.Set(float64(v.collection.Count()))
	return nil
}

// Rank returns at most k candidates ordered by descending embedding
// similarity to the query. Candidates missing from the index are
// excluded; the hierarchy indexes every commit, so a gap only follows an
// earlier indexing failure.
func (v *VectorIndex) Rank(ctx context.Context, query string, candidates []*memory.Article, k int) ([]*memory.Article, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	byID := make(map[string]*memory.Article, len(candidates))
	for _, a := range candidates {
		byID[a.ID] = a
	}

	n := k
	if count := v.collection.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	start := time.Now()
	results, err := v.collection.Query(ctx, query, n, nil, nil)
	recordQueryResult(start, err)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	out := make([]*memory.Article, 0, len(results))
	for _, res := range results {
		if a, ok := byID[res.ID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

var (
	_ memory.Ranker  = (*VectorIndex)(nil)
	_ memory.Indexer = (*VectorIndex)(nil)
)

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
