// Memoryd is a hierarchical memory daemon for conversational agents.
//
// It ingests conversation turns, consolidates them into rollups via an
// LLM oracle, routes rollups into long-lived articles, and serves
// retrieval over HTTP.
//
// Usage:
//
//	# Start with defaults
//	memoryd
//
//	# Start with a config file
//	memoryd --config ~/.config/memoryd/config.yaml
//
//	# Configure via environment
//	MEMORYD_SERVER_PORT=9190 MEMORYD_ORACLE_API_KEY=sk-... memoryd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/oracle"
	"github.com/fyrsmithlabs/memoryd/internal/retrieval"
	"github.com/fyrsmithlabs/memoryd/internal/server"
	"github.com/fyrsmithlabs/memoryd/internal/snapshotstore"
	"github.com/fyrsmithlabs/memoryd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  memoryd            Start the memoryd daemon\n")
			fmt.Fprintf(os.Stderr, "  memoryd version    Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("memoryd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Creates the oracle client and memory components
//  4. Restores the latest snapshot if one exists
//  5. Starts the HTTP server
//  6. Saves a snapshot and shuts down gracefully on cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting memoryd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("oracle_provider", cfg.Oracle.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	tel, err := telemetry.New(ctx, cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	hierarchy, err := buildHierarchy(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing memory hierarchy: %w", err)
	}

	snapshots, err := snapshotstore.NewStore(cfg.Snapshot.Path, logger)
	if err != nil {
		return fmt.Errorf("initializing snapshot store: %w", err)
	}

	// Restore the previous session's state if a snapshot exists.
	snap, err := snapshots.Load()
	switch {
	case err == nil:
		if err := hierarchy.Restore(ctx, snap); err != nil {
			return fmt.Errorf("restoring snapshot from %s: %w", snapshots.Path(), err)
		}
		logger.Info("snapshot restored",
			zap.String("path", snapshots.Path()),
			zap.Int("articles", len(snap.Articles)),
			zap.Int("rollups", len(snap.Rollups)))
	case errors.Is(err, snapshotstore.ErrNotFound):
		logger.Info("no snapshot found, starting empty", zap.String("path", snapshots.Path()))
	default:
		return fmt.Errorf("loading snapshot: %w", err)
	}

	srv, err := server.NewServer(hierarchy, snapshots, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Persist state before the process exits so restarts keep memory.
	if err := snapshots.Save(hierarchy.Snapshot()); err != nil {
		logger.Error("snapshot save on shutdown failed", zap.Error(err))
	} else {
		logger.Info("snapshot saved", zap.String("path", snapshots.Path()))
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// buildHierarchy wires the oracle client, pipeline components, and the
// article ranker.
func buildHierarchy(cfg *config.Config, logger *zap.Logger) (*memory.Hierarchy, error) {
	client, err := oracle.New(cfg.Oracle)
	if err != nil {
		return nil, fmt.Errorf("creating oracle client: %w", err)
	}

	consolidator, err := memory.NewConsolidator(client, memory.ConsolidatorConfig{
		MaxPendingLogs:   cfg.Consolidation.MaxPendingLogs,
		MaxPendingTokens: cfg.Consolidation.MaxPendingTokens,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating consolidator: %w", err)
	}

	gate, err := memory.NewGate(client, memory.GateConfig{
		MaxCandidates: cfg.Gate.MaxCandidates,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating gate: %w", err)
	}

	merger, err := memory.NewMerger(client, cfg.Merge.ConflictPolicy, logger)
	if err != nil {
		return nil, fmt.Errorf("creating merger: %w", err)
	}

	ranker, err := buildRanker(cfg, logger)
	if err != nil {
		return nil, err
	}

	return memory.NewHierarchy(consolidator, gate, merger, ranker, logger,
		memory.WithTopK(cfg.Retrieval.TopK))
}

// buildRanker picks embedding-based retrieval when an embedding provider
// is configured, keyword-overlap ranking otherwise.
func buildRanker(cfg *config.Config, logger *zap.Logger) (memory.Ranker, error) {
	if !embeddings.Configured(cfg.Embeddings) {
		logger.Info("no embedding provider configured, using keyword ranking")
		return retrieval.NewKeywordRanker(), nil
	}

	embedder, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}
	logger.Info("embedding service initialized",
		zap.String("base_url", cfg.Embeddings.BaseURL),
		zap.String("model", embedder.Model()))

	index, err := retrieval.NewVectorIndex(retrieval.VectorIndexConfig{
		Path: cfg.Retrieval.IndexPath,
	}, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}
	return index, nil
}
