package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFile_Defaults(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "missing config file falls back to defaults")

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9190, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "anthropic", cfg.Oracle.Provider)
	assert.Equal(t, 3, cfg.Oracle.MaxRetries)
	assert.Equal(t, 10, cfg.Consolidation.MaxPendingLogs)
	assert.Equal(t, 8, cfg.Gate.MaxCandidates)
	assert.Equal(t, ConflictRecencyWins, cfg.Merge.ConflictPolicy)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "memoryd", cfg.Observability.ServiceName)
}

func TestLoadWithFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 8080
oracle:
  provider: openai
  model: gpt-4o
  api_key: sk-test
  timeout: 30s
consolidation:
  max_pending_logs: 6
merge:
  conflict_policy: keep-both
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.Oracle.Provider)
	assert.Equal(t, "gpt-4o", cfg.Oracle.Model)
	assert.Equal(t, "sk-test", cfg.Oracle.APIKey.Value())
	assert.Equal(t, 30*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, 6, cfg.Consolidation.MaxPendingLogs)
	assert.Equal(t, ConflictKeepBoth, cfg.Merge.ConflictPolicy)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)

	// Unset sections still get defaults.
	assert.Equal(t, 3, cfg.Retrieval.TopK)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0600))

	t.Setenv("MEMORYD_SERVER_PORT", "7070")
	t.Setenv("MEMORYD_ORACLE_API_KEY", "sk-env")
	t.Setenv("MEMORYD_CONSOLIDATION_MAX_PENDING_LOGS", "4")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-env", cfg.Oracle.APIKey.Value())
	assert.Equal(t, 4, cfg.Consolidation.MaxPendingLogs)
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0600))

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestLoadWithFile_OversizeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	big := make([]byte, maxConfigFileSize+1)
	require.NoError(t, os.WriteFile(path, big, 0600))

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestTransformEnvKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"MEMORYD_SERVER_PORT", "server.port"},
		{"MEMORYD_ORACLE_API_KEY", "oracle.api_key"},
		{"MEMORYD_CONSOLIDATION_MAX_PENDING_LOGS", "consolidation.max_pending_logs"},
		{"MEMORYD_OBSERVABILITY_OTLP_ENDPOINT", "observability.otlp_endpoint"},
		{"MEMORYD_DEBUG", "debug"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, transformEnvKey(tt.in), tt.in)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errHas string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad provider", func(c *Config) { c.Oracle.Provider = "bard" }, "oracle.provider"},
		{"negative retries", func(c *Config) { c.Oracle.MaxRetries = -1 }, "oracle.max_retries"},
		{"zero rpm", func(c *Config) { c.Oracle.RequestsPerMinute = 0 }, "requests_per_minute"},
		{"zero batch", func(c *Config) { c.Consolidation.MaxPendingLogs = 0 }, "max_pending_logs"},
		{"zero candidates", func(c *Config) { c.Gate.MaxCandidates = 0 }, "max_candidates"},
		{"bad policy", func(c *Config) { c.Merge.ConflictPolicy = "coin-flip" }, "conflict_policy"},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }, "top_k"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad protocol", func(c *Config) { c.Observability.OTLPProtocol = "smtp" }, "otlp_protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errHas)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	t.Parallel()

	s := Secret("sk-very-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "very-secret")
	assert.Equal(t, "sk-very-secret", s.Value())
	assert.True(t, s.IsSet())

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(raw))

	var empty Secret
	assert.False(t, empty.IsSet())
	assert.Equal(t, "", empty.String())
}
