package memory

import (
	"context"
	"fmt"
)

// snapshotVersion is the current snapshot document version.
const snapshotVersion = 1

// Snapshot is the full serializable state of a hierarchy: the three
// ordered collections plus the pending-log buffer and the ungated-rollup
// queue. Restore(Snapshot(h)) reproduces every observable field exactly.
type Snapshot struct {
	Version int `json:"version"`

	// Logs are the consumed (archived) entries in creation order.
	Logs []*LogEntry `json:"logs"`

	// Pending are the not-yet-consolidated entries in creation order.
	Pending []*LogEntry `json:"pending"`

	Rollups  []*Rollup  `json:"rollups"`
	Articles []*Article `json:"articles"`

	// UngatedRollupIDs are rollups still awaiting gating after a merge
	// retry exhaustion, in queue order.
	UngatedRollupIDs []string `json:"ungated_rollup_ids,omitempty"`
}

// Snapshot captures the hierarchy's full observable state.
func (h *Hierarchy) Snapshot() *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := &Snapshot{
		Version:  snapshotVersion,
		Logs:     h.logs.Archived(),
		Pending:  h.logs.Pending(),
		Rollups:  make([]*Rollup, 0, len(h.rollups)),
		Articles: make([]*Article, 0, len(h.articles)),
	}
	for _, r := range h.rollups {
		snap.Rollups = append(snap.Rollups, r.clone())
	}
	for _, a := range h.articles {
		snap.Articles = append(snap.Articles, a.clone())
	}
	for _, r := range h.ungated {
		snap.UngatedRollupIDs = append(snap.UngatedRollupIDs, r.ID)
	}
	return snap
}

// Restore replaces the hierarchy's state with the snapshot's. The
// snapshot is validated first; on validation failure the existing state
// is untouched.
func (h *Hierarchy) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}

	rollupsByID := make(map[string]*Rollup, len(snap.Rollups))
	for _, r := range snap.Rollups {
		if r == nil || r.ID == "" {
			return fmt.Errorf("%w: rollup without ID", ErrInvalidSnapshot)
		}
		if _, dup := rollupsByID[r.ID]; dup {
			return fmt.Errorf("%w: duplicate rollup %s", ErrInvalidSnapshot, r.ID)
		}
		rollupsByID[r.ID] = r
	}

	// Gated rollup IDs must partition into articles: each at most once.
	seen := make(map[string]string, len(rollupsByID))
	for _, a := range snap.Articles {
		if a == nil || a.ID == "" {
			return fmt.Errorf("%w: article without ID", ErrInvalidSnapshot)
		}
		for _, rid := range a.RollupIDs {
			if _, ok := rollupsByID[rid]; !ok {
				return fmt.Errorf("%w: article %s references unknown rollup %s", ErrInvalidSnapshot, a.ID, rid)
			}
			if owner, taken := seen[rid]; taken {
				return fmt.Errorf("%w: rollup %s claimed by articles %s and %s", ErrInvalidSnapshot, rid, owner, a.ID)
			}
			seen[rid] = a.ID
		}
	}

	for _, rid := range snap.UngatedRollupIDs {
		if _, ok := rollupsByID[rid]; !ok {
			return fmt.Errorf("%w: ungated queue references unknown rollup %s", ErrInvalidSnapshot, rid)
		}
	}

	h.mu.Lock()
	h.logs = NewLogStore()
	h.logs.restore(snap.Logs, snap.Pending)
	h.rollups = make([]*Rollup, 0, len(snap.Rollups))
	cloneByID := make(map[string]*Rollup, len(snap.Rollups))
	for _, r := range snap.Rollups {
		cp := r.clone()
		h.rollups = append(h.rollups, cp)
		cloneByID[cp.ID] = cp
	}
	ungated := make([]*Rollup, 0, len(snap.UngatedRollupIDs))
	for _, rid := range snap.UngatedRollupIDs {
		ungated = append(ungated, cloneByID[rid])
	}
	h.articles = make([]*Article, 0, len(snap.Articles))
	for _, a := range snap.Articles {
		h.articles = append(h.articles, a.clone())
	}
	h.ungated = ungated
	articles := make([]*Article, len(h.articles))
	copy(articles, h.articles)
	h.mu.Unlock()

	// Rebuild any ranker-maintained index outside the lock.
	for _, a := range articles {
		h.indexArticle(ctx, a)
	}

	return nil
}
