// Package memory implements the hierarchical memory consolidation engine.
//
// Raw conversation turns accumulate as log entries. Once a batching
// threshold is reached they are compressed into a rollup summary via the
// LLM oracle. Each rollup is then gated onto a knowledge article: an
// existing one when the oracle judges the topic relevant, a freshly minted
// one otherwise. The article body is rewritten by an oracle-driven merge.
// Articles are what retrieval surfaces back to the agent.
//
// The Hierarchy aggregate owns all three collections and serializes the
// ingest pipeline; every other type in this package is a value object or a
// stateless component reached through it.
package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors for memory operations.
var (
	// ErrInvalidInput indicates empty or malformed user text. The call is
	// rejected immediately with no state change.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRole indicates an unrecognized speaker role.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidSnapshot indicates a snapshot that fails validation on
	// restore.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	// RoleUser marks a turn authored by the human user.
	RoleUser Role = "user"

	// RoleAgent marks a turn authored by the agent.
	RoleAgent Role = "agent"
)

// ParseRole normalizes a role tag. "assistant" is accepted as an alias for
// the agent role since most chat APIs use that name.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, nil
	case "agent", "assistant":
		return RoleAgent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// LogEntry is one raw conversational turn. Immutable once created.
type LogEntry struct {
	// ID is the unique entry identifier (UUID).
	ID string `json:"id"`

	// Role is the speaker of the turn.
	Role Role `json:"role"`

	// Text is the raw turn content.
	Text string `json:"text"`

	// Timestamp is when the turn was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// NewLogEntry creates a log entry for the given role and text.
// Empty or whitespace-only text is rejected with ErrInvalidInput.
func NewLogEntry(role Role, text string) (*LogEntry, error) {
	if role != RoleUser && role != RoleAgent {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}

	return &LogEntry{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}, nil
}

// Rollup is a compressed summary of a contiguous batch of log entries.
// Immutable after creation; the link to an article is recorded on the
// article side.
type Rollup struct {
	// ID is the unique rollup identifier (UUID).
	ID string `json:"id"`

	// SourceLogIDs are the consumed log entry IDs, in temporal order.
	SourceLogIDs []string `json:"source_log_ids"`

	// Summary is the oracle-produced summary of the consumed logs.
	Summary string `json:"summary"`

	// CreatedAt is when the rollup was created.
	CreatedAt time.Time `json:"created_at"`
}

// Article is the consolidated knowledge on one topic, built from one or
// more rollups. Never deleted; pruning is out of scope.
type Article struct {
	// ID is the unique article identifier (UUID).
	ID string `json:"id"`

	// Title is a brief topic label.
	Title string `json:"title"`

	// Body is the consolidated article content.
	Body string `json:"body"`

	// RollupIDs are the rollups folded into this article, in gating order.
	RollupIDs []string `json:"rollup_ids"`

	// UpdatedAt advances on every merge.
	UpdatedAt time.Time `json:"updated_at"`
}

// clone returns a deep copy so callers cannot mutate committed state.
func (a *Article) clone() *Article {
	cp := *a
	cp.RollupIDs = append([]string(nil), a.RollupIDs...)
	return &cp
}

// clone returns a deep copy of the rollup.
func (r *Rollup) clone() *Rollup {
	cp := *r
	cp.SourceLogIDs = append([]string(nil), r.SourceLogIDs...)
	return &cp
}
