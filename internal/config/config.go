// Package config provides configuration loading for memoryd.
//
// Configuration is loaded from a YAML file (~/.config/memoryd/config.yaml by
// default), then overridden by environment variables, then filled with
// defaults. See LoadWithFile for precedence and env var mapping.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete memoryd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Oracle        OracleConfig        `koanf:"oracle"`
	Consolidation ConsolidationConfig `koanf:"consolidation"`
	Gate          GateConfig          `koanf:"gate"`
	Merge         MergeConfig         `koanf:"merge"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Snapshot      SnapshotConfig      `koanf:"snapshot"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// OracleConfig holds the LLM oracle configuration.
type OracleConfig struct {
	// Provider selects the API dialect: "anthropic" or "openai".
	// "openai" covers any OpenAI-compatible chat completions endpoint.
	Provider string `koanf:"provider"`

	// Model is the model identifier sent with every completion request.
	Model string `koanf:"model"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates against the provider.
	APIKey Secret `koanf:"api_key"`

	// Timeout bounds a single completion round-trip.
	Timeout time.Duration `koanf:"timeout"`

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `koanf:"max_retries"`

	// RequestsPerMinute throttles outgoing oracle calls.
	RequestsPerMinute float64 `koanf:"requests_per_minute"`
}

// ConsolidationConfig controls when pending logs are rolled up.
type ConsolidationConfig struct {
	// MaxPendingLogs triggers consolidation once this many logs are pending.
	MaxPendingLogs int `koanf:"max_pending_logs"`

	// MaxPendingTokens triggers consolidation once the estimated token
	// count of pending logs reaches this value. Zero disables the
	// token-based trigger.
	MaxPendingTokens int `koanf:"max_pending_tokens"`
}

// GateConfig controls rollup-to-article assignment.
type GateConfig struct {
	// MaxCandidates bounds oracle calls per gating decision. Candidate
	// articles beyond this count are dropped by the keyword prefilter.
	MaxCandidates int `koanf:"max_candidates"`
}

// ConflictPolicy names a merge conflict-resolution strategy.
type ConflictPolicy string

const (
	// ConflictRecencyWins overwrites contradicted facts with the newer
	// statement.
	ConflictRecencyWins ConflictPolicy = "recency-wins"

	// ConflictKeepBoth retains both statements side by side.
	ConflictKeepBoth ConflictPolicy = "keep-both"

	// ConflictFlag marks contradictions for manual review instead of
	// resolving them.
	ConflictFlag ConflictPolicy = "flag-conflict"
)

// MergeConfig controls how rollups are folded into articles.
type MergeConfig struct {
	ConflictPolicy ConflictPolicy `koanf:"conflict_policy"`
}

// RetrievalConfig controls read-side article ranking.
type RetrievalConfig struct {
	// TopK is the default number of articles returned per query.
	TopK int `koanf:"top_k"`

	// IndexPath is the directory for the persistent article index.
	IndexPath string `koanf:"index_path"`
}

// EmbeddingsConfig holds embedding provider configuration. When APIKey and
// BaseURL are both empty the daemon falls back to keyword-overlap ranking.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// SnapshotConfig holds snapshot persistence configuration.
type SnapshotConfig struct {
	// Path is the directory snapshots are written to.
	Path string `koanf:"path"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPProtocol string `koanf:"otlp_protocol"` // "grpc" or "http"
}

// applyDefaults fills zero values with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9190
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = "anthropic"
	}
	if cfg.Oracle.Timeout == 0 {
		cfg.Oracle.Timeout = 60 * time.Second
	}
	if cfg.Oracle.MaxRetries == 0 {
		cfg.Oracle.MaxRetries = 3
	}
	if cfg.Oracle.RequestsPerMinute == 0 {
		cfg.Oracle.RequestsPerMinute = 50
	}

	if cfg.Consolidation.MaxPendingLogs == 0 {
		cfg.Consolidation.MaxPendingLogs = 10
	}

	if cfg.Gate.MaxCandidates == 0 {
		cfg.Gate.MaxCandidates = 8
	}

	if cfg.Merge.ConflictPolicy == "" {
		cfg.Merge.ConflictPolicy = ConflictRecencyWins
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.IndexPath == "" {
		cfg.Retrieval.IndexPath = "~/.config/memoryd/index"
	}

	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}

	if cfg.Snapshot.Path == "" {
		cfg.Snapshot.Path = "~/.config/memoryd/snapshots"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "memoryd"
	}
	if cfg.Observability.OTLPProtocol == "" {
		cfg.Observability.OTLPProtocol = "grpc"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}

	switch c.Oracle.Provider {
	case "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("oracle.provider must be \"anthropic\" or \"openai\", got %q", c.Oracle.Provider))
	}
	if c.Oracle.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("oracle.max_retries cannot be negative, got %d", c.Oracle.MaxRetries))
	}
	if c.Oracle.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("oracle.requests_per_minute must be positive, got %v", c.Oracle.RequestsPerMinute))
	}

	if c.Consolidation.MaxPendingLogs < 1 {
		errs = append(errs, fmt.Errorf("consolidation.max_pending_logs must be at least 1, got %d", c.Consolidation.MaxPendingLogs))
	}
	if c.Consolidation.MaxPendingTokens < 0 {
		errs = append(errs, fmt.Errorf("consolidation.max_pending_tokens cannot be negative, got %d", c.Consolidation.MaxPendingTokens))
	}

	if c.Gate.MaxCandidates < 1 {
		errs = append(errs, fmt.Errorf("gate.max_candidates must be at least 1, got %d", c.Gate.MaxCandidates))
	}

	switch c.Merge.ConflictPolicy {
	case ConflictRecencyWins, ConflictKeepBoth, ConflictFlag:
	default:
		errs = append(errs, fmt.Errorf("merge.conflict_policy must be one of recency-wins, keep-both, flag-conflict; got %q", c.Merge.ConflictPolicy))
	}

	if c.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format))
	}

	switch c.Observability.OTLPProtocol {
	case "grpc", "http":
	default:
		errs = append(errs, fmt.Errorf("observability.otlp_protocol must be \"grpc\" or \"http\", got %q", c.Observability.OTLPProtocol))
	}

	return errors.Join(errs...)
}
