package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeArticle(title, body string, updatedAt time.Time) *Article {
	return &Article{
		ID:        "article-" + strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		Title:     title,
		Body:      body,
		UpdatedAt: updatedAt,
	}
}

func makeRollup(summary string) *Rollup {
	return &Rollup{
		ID:        "rollup-1",
		Summary:   summary,
		CreatedAt: time.Now(),
	}
}

func TestGate_NoArticlesCreatesNew(t *testing.T) {
	t.Parallel()

	mock := &mockOracle{}
	g, err := NewGate(mock, GateConfig{MaxCandidates: 8}, nil)
	require.NoError(t, err)

	d, err := g.Gate(context.Background(), makeRollup("some summary"), nil)
	require.NoError(t, err)
	assert.True(t, d.CreateNew())
	assert.False(t, d.Degraded)
	assert.Empty(t, mock.callsFor("gate"), "no oracle call with zero candidates")
}

func TestGate_PicksRelevantArticle(t *testing.T) {
	t.Parallel()

	birthdays := makeArticle("Bob's birthday", "Bob was born on July 15.", time.Now())
	weather := makeArticle("Weather preferences", "The user prefers cold weather.", time.Now())

	mock := &mockOracle{
		gateFn: func(input string) (string, error) {
			// Key on the candidate's body: the new summary appears in every
			// candidate's input.
			if strings.Contains(input, "born on July 15") {
				return "RELEVANT 0.9", nil
			}
			return "IRRELEVANT 0.8", nil
		},
	}
	g, err := NewGate(mock, GateConfig{MaxCandidates: 8}, nil)
	require.NoError(t, err)

	d, err := g.Gate(context.Background(), makeRollup("Bob's birthday is actually August 2."),
		[]*Article{birthdays, weather})
	require.NoError(t, err)
	assert.False(t, d.CreateNew())
	assert.Equal(t, birthdays.ID, d.ArticleID)
	assert.InDelta(t, 0.9, d.Confidence, 0.001)
}

func TestGate_HighestConfidenceWins(t *testing.T) {
	t.Parallel()

	older := makeArticle("Topic A", "alpha facts about kubernetes clusters", time.Now().Add(-time.Hour))
	newer := makeArticle("Topic B", "beta facts about kubernetes clusters", time.Now())

	mock := &mockOracle{
		gateFn: func(input string) (string, error) {
			if strings.Contains(input, "alpha") {
				return "RELEVANT 0.95", nil
			}
			return "RELEVANT 0.6", nil
		},
	}
	g, err := NewGate(mock, GateConfig{MaxCandidates: 8}, nil)
	require.NoError(t, err)

	d, err := g.Gate(context.Background(), makeRollup("kubernetes clusters again"),
		[]*Article{older, newer})
	require.NoError(t, err)
	assert.Equal(t, older.ID, d.ArticleID)
}

func TestGate_ConfidenceTieBreaksByRecency(t *testing.T) {
	t.Parallel()

	older := makeArticle("Topic A", "shared topic words here", time.Now().Add(-time.Hour))
	newer := makeArticle("Topic B", "shared topic words here", time.Now())

	mock := &mockOracle{
		gateFn: func(input string) (string, error) {
			return "RELEVANT 0.7", nil
		},
	}
	g, err := NewGate(mock, GateConfig{MaxCandidates: 8}, nil)
	require.NoError(t, err)

	d, err := g.Gate(context.Background(), makeRollup("shared topic words"),
		[]*Article{older, newer})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, d.ArticleID)
}

func TestGate_AllFailuresDegradeToCreateNew(t *testing.T) {
	t.Parallel()

	mock := &mockOracle{
		gateFn: func(input string) (string, error) {
			return "", fmt.Errorf("oracle down")
		},
	}
	g, err := NewGate(mock, GateConfig{MaxCandidates: 8}, nil)
	require.NoError(t, err)

	d, err := g.Gate(context.Background(), makeRollup("any summary"),
		[]*Article{makeArticle("Existing", "existing body", time.Now())})
	require.NoError(t, err)
	assert.True(t, d.CreateNew())
	assert.True(t, d.Degraded)
}

func TestGate_PartialFailureStillJudges(t *testing.T) {
	t.Parallel()

	failing := makeArticle("Failing", "unreachable topic body", time.Now())
	working := makeArticle("Working", "reachable topic body", time.Now())

	mock := &mockOracle{
		gateFn: func(input string) (string, error) {
			if strings.Contains(input, "unreachable") {
				return "", errors.New("transient")
			}
			return "RELEVANT 0.8", nil
		},
	}
	g, err := NewGate(mock, GateConfig{MaxCandidates: 8}, nil)
	require.NoError(t, err)

	d, err := g.Gate(context.Background(), makeRollup("topic body words"),
		[]*Article{failing, working})
	require.NoError(t, err)
	assert.Equal(t, working.ID, d.ArticleID)
	assert.False(t, d.Degraded)
}

func TestGate_CandidateLimitBoundsOracleCalls(t *testing.T) {
	t.Parallel()

	articles := make([]*Article, 6)
	for i := range articles {
		articles[i] = makeArticle(fmt.Sprintf("Article %d", i), "completely unrelated content", time.Now())
	}

	mock := &mockOracle{}
	g, err := NewGate(mock, GateConfig{MaxCandidates: 2}, nil)
	require.NoError(t, err)

	_, err = g.Gate(context.Background(), makeRollup("a summary"), articles)
	require.NoError(t, err)
	assert.Len(t, mock.callsFor("gate"), 2)
}

func TestGate_CancelledContext(t *testing.T) {
	t.Parallel()

	g, err := NewGate(&mockOracle{}, GateConfig{MaxCandidates: 8}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = g.Gate(ctx, makeRollup("summary"),
		[]*Article{makeArticle("A", "body", time.Now())})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseJudgment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		resp       string
		relevant   bool
		confidence float64
	}{
		{"relevant with confidence", "RELEVANT 0.85", true, 0.85},
		{"irrelevant", "IRRELEVANT 0.9", false, 0},
		{"lowercase", "relevant 0.5", true, 0.5},
		{"yes alias", "YES 0.7", true, 0.7},
		{"no alias", "NO 0.2", false, 0},
		{"missing confidence", "RELEVANT", true, 0.5},
		{"chatty preamble", "The verdict is: RELEVANT 0.75", true, 0.75},
		{"confidence out of range", "RELEVANT 7.5", true, 0.5},
		{"garbage", "I cannot assist with that.", false, 0},
		{"empty", "", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relevant, confidence := parseJudgment(tt.resp)
			assert.Equal(t, tt.relevant, relevant)
			assert.InDelta(t, tt.confidence, confidence, 0.001)
		})
	}
}

func TestPrefilterCandidates_RanksByOverlap(t *testing.T) {
	t.Parallel()

	strong := makeArticle("Fishing trips", "Bob enjoys fishing trips on the lake every summer.", time.Now().Add(-time.Hour))
	weak := makeArticle("Cooking", "Recipes for pasta and risotto.", time.Now())

	out := prefilterCandidates("Bob planned another fishing trip to the lake",
		[]*Article{weak, strong}, 1)
	require.Len(t, out, 1)
	assert.Equal(t, strong.ID, out[0].ID)
}
