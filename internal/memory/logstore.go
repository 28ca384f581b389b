package memory

import "fmt"

// LogStore is the append-only record of raw conversation turns.
//
// Entries live in the pending buffer until a rollup consumes them, then
// move to the archive. The store is not safe for concurrent use on its
// own; the owning Hierarchy serializes access.
type LogStore struct {
	// archived holds entries already consumed by a rollup, in creation
	// order.
	archived []*LogEntry

	// pending holds entries not yet consumed, in creation order.
	pending []*LogEntry
}

// NewLogStore creates an empty log store.
func NewLogStore() *LogStore {
	return &LogStore{}
}

// Append creates and stores a new pending entry.
func (s *LogStore) Append(role Role, text string) (*LogEntry, error) {
	entry, err := NewLogEntry(role, text)
	if err != nil {
		return nil, err
	}
	s.pending = append(s.pending, entry)
	return entry, nil
}

// Pending returns the not-yet-consumed entries in creation order.
// The returned slice is a copy; the entries are shared and must not be
// mutated.
func (s *LogStore) Pending() []*LogEntry {
	out := make([]*LogEntry, len(s.pending))
	copy(out, s.pending)
	return out
}

// Consume moves the first n pending entries to the archive. It is called
// by the hierarchy in the same critical section that commits the rollup,
// so there is no window where logs appear both pending and consumed.
//
// Consumption is strictly prefix-ordered: rollups take the oldest pending
// entries with no gaps and no reordering.
func (s *LogStore) Consume(n int) error {
	if n < 0 || n > len(s.pending) {
		return fmt.Errorf("cannot consume %d of %d pending logs", n, len(s.pending))
	}
	s.archived = append(s.archived, s.pending[:n]...)
	s.pending = append([]*LogEntry(nil), s.pending[n:]...)
	return nil
}

// Archived returns the consumed entries in creation order.
func (s *LogStore) Archived() []*LogEntry {
	out := make([]*LogEntry, len(s.archived))
	copy(out, s.archived)
	return out
}

// PendingCount returns the number of not-yet-consumed entries.
func (s *LogStore) PendingCount() int {
	return len(s.pending)
}

// restore replaces the store contents. Used by Hierarchy.Restore.
func (s *LogStore) restore(archived, pending []*LogEntry) {
	s.archived = append([]*LogEntry(nil), archived...)
	s.pending = append([]*LogEntry(nil), pending...)
}
