package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

func TestMerger_MergeDoesNotMutateArticle(t *testing.T) {
	t.Parallel()

	mock := &mockOracle{
		mergeFn: func(input string) (string, error) {
			return "Bob's birthday is August 2.", nil
		},
	}
	m, err := NewMerger(mock, config.ConflictRecencyWins, nil)
	require.NoError(t, err)

	article := makeArticle("Bob's birthday", "Bob's birthday is July 15.", time.Now())
	originalBody := article.Body
	originalUpdated := article.UpdatedAt

	body, err := m.Merge(context.Background(), article, makeRollup("Bob corrected: birthday is August 2."))
	require.NoError(t, err)
	assert.Equal(t, "Bob's birthday is August 2.", body)

	// Committing is the hierarchy's job.
	assert.Equal(t, originalBody, article.Body)
	assert.Equal(t, originalUpdated, article.UpdatedAt)
	assert.Empty(t, article.RollupIDs)
}

func TestMerger_MergeSendsBodyAndSummary(t *testing.T) {
	t.Parallel()

	mock := &mockOracle{}
	m, err := NewMerger(mock, config.ConflictRecencyWins, nil)
	require.NoError(t, err)

	article := makeArticle("Topic", "established facts", time.Now())
	_, err = m.Merge(context.Background(), article, makeRollup("new facts"))
	require.NoError(t, err)

	calls := mock.callsFor("merge")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "established facts")
	assert.Contains(t, calls[0], "new facts")
}

func TestMerger_MergeFailureSurfaces(t *testing.T) {
	t.Parallel()

	mock := &mockOracle{
		mergeFn: func(input string) (string, error) {
			return "", errors.New("oracle down")
		},
	}
	m, err := NewMerger(mock, config.ConflictRecencyWins, nil)
	require.NoError(t, err)

	_, err = m.Merge(context.Background(), makeArticle("T", "b", time.Now()), makeRollup("s"))
	assert.Error(t, err)
}

func TestMerger_Compose(t *testing.T) {
	t.Parallel()

	mock := &mockOracle{
		composeFn: func(input string) (string, error) {
			return "Bob was born on July 15.", nil
		},
		titleFn: func(input string) (string, error) {
			return "Bob's birthday", nil
		},
	}
	m, err := NewMerger(mock, config.ConflictRecencyWins, nil)
	require.NoError(t, err)

	rollup := makeRollup("Bob's birthday is July 15.")
	article, err := m.Compose(context.Background(), rollup)
	require.NoError(t, err)

	assert.NotEmpty(t, article.ID)
	assert.Equal(t, "Bob's birthday", article.Title)
	assert.Equal(t, "Bob was born on July 15.", article.Body)
	assert.Equal(t, []string{rollup.ID}, article.RollupIDs)
	assert.False(t, article.UpdatedAt.IsZero())
}

func TestMerger_ComposeTitleFailureFallsBack(t *testing.T) {
	t.Parallel()

	mock := &mockOracle{
		titleFn: func(input string) (string, error) {
			return "", errors.New("oracle down")
		},
	}
	m, err := NewMerger(mock, config.ConflictRecencyWins, nil)
	require.NoError(t, err)

	article, err := m.Compose(context.Background(), makeRollup("Bob's birthday is July 15.\nMore detail."))
	require.NoError(t, err, "title failure must not block article creation")
	assert.Equal(t, "Bob's birthday is July 15.", article.Title)
}

func TestMerger_ComposeBodyFailureSurfaces(t *testing.T) {
	t.Parallel()

	mock := &mockOracle{
		composeFn: func(input string) (string, error) {
			return "", errors.New("oracle down")
		},
	}
	m, err := NewMerger(mock, config.ConflictRecencyWins, nil)
	require.NoError(t, err)

	_, err = m.Compose(context.Background(), makeRollup("summary"))
	assert.Error(t, err)
}

func TestNewMerger_RejectsUnknownPolicy(t *testing.T) {
	t.Parallel()

	_, err := NewMerger(&mockOracle{}, config.ConflictPolicy("coin-flip"), nil)
	assert.Error(t, err)
}

func TestFallbackTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		summary string
		want    string
	}{
		{"short line", "Bob's birthday is July 15.", "Bob's birthday is July 15."},
		{"multi line", "First line here.\nSecond line.", "First line here."},
		{"empty", "   ", "Untitled topic"},
		{"long line truncated", strings.Repeat("a", 80), strings.Repeat("a", 60) + "…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fallbackTitle(tt.summary))
		})
	}
}
