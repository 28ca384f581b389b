package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

func TestConfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.EmbeddingsConfig
		want bool
	}{
		{"empty config", config.EmbeddingsConfig{}, false},
		{"base url only", config.EmbeddingsConfig{BaseURL: "http://localhost:8080"}, true},
		{"api key only", config.EmbeddingsConfig{APIKey: config.Secret("sk-test")}, true},
		{"both", config.EmbeddingsConfig{BaseURL: "http://localhost:8080", APIKey: config.Secret("sk-test")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Configured(tt.cfg))
		})
	}
}

func TestNewService_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewService(config.EmbeddingsConfig{Model: "text-embedding-3-small"})
	require.ErrorIs(t, err, ErrInvalidConfig, "endpoint or key is required")

	_, err = NewService(config.EmbeddingsConfig{BaseURL: "http://localhost:8080"})
	require.ErrorIs(t, err, ErrInvalidConfig, "model is required")
}

func TestNewService(t *testing.T) {
	t.Parallel()

	svc, err := NewService(config.EmbeddingsConfig{
		BaseURL: "http://localhost:8080",
		Model:   "text-embedding-3-small",
	})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", svc.Model())
}

func TestEmbedQuery_EmptyInput(t *testing.T) {
	t.Parallel()

	svc, err := NewService(config.EmbeddingsConfig{
		BaseURL: "http://localhost:8080",
		Model:   "text-embedding-3-small",
	})
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}
