package server

import (
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// IngestRequest is a single conversation turn.
type IngestRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// IngestResponse reports collection sizes after the turn is processed.
type IngestResponse struct {
	Stats memory.Stats `json:"stats"`
}

// ArticleView is the wire representation of an article.
type ArticleView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RetrieveResponse carries ranked articles for a query.
type RetrieveResponse struct {
	Articles []ArticleView `json:"articles"`
}

// SnapshotResponse describes a saved snapshot.
type SnapshotResponse struct {
	Path     string `json:"path"`
	Articles int    `json:"articles"`
	Rollups  int    `json:"rollups"`
}
