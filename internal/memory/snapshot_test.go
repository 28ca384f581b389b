package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()

	mock := &mockOracle{
		gateFn: func(input string) (string, error) {
			return "RELEVANT 0.8", nil
		},
	}
	src, _ := newTestHierarchy(t, mock, 2)

	ingestTurns(t, src, "Bob was born July 15", "noted")
	ingestTurns(t, src, "Bob likes chocolate cake", "noted")
	// Leave one turn pending so the round trip covers the buffer too.
	require.NoError(t, src.Ingest(context.Background(), "user", "one more unconsolidated turn"))

	snap := src.Snapshot()

	dst, _ := newTestHierarchy(t, &mockOracle{}, 2)
	require.NoError(t, dst.Restore(context.Background(), snap))

	assert.Equal(t, src.Stats(), dst.Stats())

	want, err := src.Retrieve(context.Background(), "Bob", 5)
	require.NoError(t, err)
	got, err := dst.Retrieve(context.Background(), "Bob", 5)
	require.NoError(t, err)
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Title, got[i].Title)
		assert.Equal(t, want[i].Body, got[i].Body)
		assert.Equal(t, want[i].RollupIDs, got[i].RollupIDs)
	}
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	src, _ := newTestHierarchy(t, &mockOracle{}, 2)
	ingestTurns(t, src, "a durable fact", "noted")

	raw, err := json.Marshal(src.Snapshot())
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	dst, _ := newTestHierarchy(t, &mockOracle{}, 2)
	require.NoError(t, dst.Restore(context.Background(), &decoded))
	assert.Equal(t, src.Stats(), dst.Stats())
}

func TestSnapshot_CapturesUngatedQueue(t *testing.T) {
	t.Parallel()

	mock := &mockOracle{
		gateFn: func(input string) (string, error) {
			return "", fmt.Errorf("oracle down")
		},
		composeFn: func(input string) (string, error) {
			return "", fmt.Errorf("oracle down")
		},
	}
	src, _ := newTestHierarchy(t, mock, 2)

	require.NoError(t, src.Ingest(context.Background(), "user", "turn one"))
	require.Error(t, src.Ingest(context.Background(), "agent", "turn two"))
	require.Equal(t, 1, src.Stats().UngatedQueue)

	snap := src.Snapshot()
	require.Len(t, snap.UngatedRollupIDs, 1)

	dst, _ := newTestHierarchy(t, &mockOracle{}, 2)
	require.NoError(t, dst.Restore(context.Background(), snap))
	assert.Equal(t, 1, dst.Stats().UngatedQueue)
}

func TestRestore_Validation(t *testing.T) {
	t.Parallel()

	base := func() *Snapshot {
		return &Snapshot{
			Version: 1,
			Rollups: []*Rollup{{ID: "r1", Summary: "s"}},
			Articles: []*Article{
				{ID: "a1", Title: "T", Body: "b", RollupIDs: []string{"r1"}},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"nil snapshot", nil},
		{"wrong version", func(s *Snapshot) { s.Version = 99 }},
		{"duplicate rollup ID", func(s *Snapshot) {
			s.Rollups = append(s.Rollups, &Rollup{ID: "r1", Summary: "dup"})
		}},
		{"article references unknown rollup", func(s *Snapshot) {
			s.Articles[0].RollupIDs = []string{"ghost"}
		}},
		{"rollup claimed twice", func(s *Snapshot) {
			s.Articles = append(s.Articles, &Article{ID: "a2", Title: "U", Body: "b", RollupIDs: []string{"r1"}})
		}},
		{"ungated references unknown rollup", func(s *Snapshot) {
			s.UngatedRollupIDs = []string{"ghost"}
		}},
		{"rollup without ID", func(s *Snapshot) {
			s.Rollups = append(s.Rollups, &Rollup{Summary: "anon"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHierarchy(t, &mockOracle{}, 2)

			var snap *Snapshot
			if tt.mutate != nil {
				snap = base()
				tt.mutate(snap)
			}

			err := h.Restore(context.Background(), snap)
			require.ErrorIs(t, err, ErrInvalidSnapshot)
			assert.Equal(t, Stats{}, h.Stats(), "failed restore leaves state untouched")
		})
	}
}

func TestRestore_ReplacesExistingState(t *testing.T) {
	t.Parallel()

	h, _ := newTestHierarchy(t, &mockOracle{}, 2)
	ingestTurns(t, h, "old world fact", "noted")
	require.Equal(t, 1, h.Stats().Articles)

	empty := &Snapshot{Version: 1}
	require.NoError(t, h.Restore(context.Background(), empty))
	assert.Equal(t, Stats{}, h.Stats())
}

func TestRestore_ReindexesArticles(t *testing.T) {
	t.Parallel()

	src, _ := newTestHierarchy(t, &mockOracle{}, 2)
	ingestTurns(t, src, "a fact worth indexing", "noted")

	dst, ranker := newTestHierarchy(t, &mockOracle{}, 2)
	require.NoError(t, dst.Restore(context.Background(), src.Snapshot()))
	assert.Len(t, ranker.indexed, 1, "restore rebuilds the ranker's index")
}
