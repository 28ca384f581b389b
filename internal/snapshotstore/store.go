// Package snapshotstore persists hierarchy snapshots to disk.
//
// Snapshots are JSON documents written with an atomic tmp+rename pattern:
// a partial snapshot file is never observable, and a failed write leaves
// the previous snapshot intact.
package snapshotstore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

// Sentinel errors for snapshot persistence.
var (
	// ErrSnapshotIO indicates a load or save failure. Surfaced to the
	// caller unchanged; no partial snapshot is ever written.
	ErrSnapshotIO = errors.New("snapshot persistence failed")

	// ErrNotFound indicates no snapshot has been saved yet.
	ErrNotFound = errors.New("snapshot not found")
)

// snapshotFile is the fixed snapshot filename inside the store directory.
const snapshotFile = "snapshot.json"

// Store persists snapshots under one directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates a snapshot store rooted at dir. A leading ~ expands to
// the home directory; the directory is created with 0700 permissions.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot directory cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	expanded, err := expandPath(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: expanding path: %v", ErrSnapshotIO, err)
	}
	if err := os.MkdirAll(expanded, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating directory %s: %v", ErrSnapshotIO, expanded, err)
	}

	return &Store{
		dir:    expanded,
		logger: logger,
	}, nil
}

// Save writes the snapshot atomically: marshal, write to a temp file, then
// rename over the target. There is no window where a partial file exists
// under the snapshot name.
func (s *Store) Save(snap *memory.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrSnapshotIO)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrSnapshotIO, err)
	}

	target := filepath.Join(s.dir, snapshotFile)
	tmpPath := target + ".tmp." + randomSuffix()

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrSnapshotIO, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write temp file: %v", ErrSnapshotIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp file: %v", ErrSnapshotIO, err)
	}

	// Atomic rename prevents partial reads.
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", ErrSnapshotIO, err)
	}

	s.logger.Info("snapshot saved",
		zap.String("path", target),
		zap.Int("bytes", len(data)),
		zap.Int("articles", len(snap.Articles)),
		zap.Int("rollups", len(snap.Rollups)))

	return nil
}

// Load reads the most recent snapshot. Returns ErrNotFound when no
// snapshot has been saved.
func (s *Store) Load() (*memory.Snapshot, error) {
	target := filepath.Join(s.dir, snapshotFile)

	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrSnapshotIO, target, err)
	}

	var snap memory.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: unmarshal %s: %v", ErrSnapshotIO, target, err)
	}

	return &snap, nil
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, snapshotFile)
}

// randomSuffix returns a short random hex string for temp file names.
func randomSuffix() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "fallback"
	}
	return hex.EncodeToString(b)
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
