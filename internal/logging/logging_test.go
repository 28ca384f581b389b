package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_ValidConfigurations(t *testing.T) {
	t.Parallel()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		for _, format := range []string{"json", "console"} {
			logger, err := New(level, format)
			require.NoError(t, err, "level=%s format=%s", level, format)
			require.NotNil(t, logger)
		}
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := New("verbose", "json")
	assert.Error(t, err)
}

func TestNew_InvalidFormat(t *testing.T) {
	t.Parallel()

	_, err := New("info", "xml")
	assert.Error(t, err)
}

func TestNewTestLogger_CapturesEntries(t *testing.T) {
	t.Parallel()

	logger, observed := NewTestLogger()
	logger.Info("hello", zap.String("key", "value"))

	require.Equal(t, 1, observed.Len())
	entry := observed.All()[0]
	assert.Equal(t, "hello", entry.Message)
	assert.Equal(t, "value", entry.ContextMap()["key"])
}
