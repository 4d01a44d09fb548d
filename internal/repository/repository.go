// Package repository defines the interaction audit log model and its
// storage interface.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Interaction summarizes one answered query. The answer text itself is not
// stored.
type Interaction struct {
	ID              uuid.UUID `json:"id"`
	SessionID       string    `json:"session_id"`
	Query           string    `json:"query"`
	FallbackTier    string    `json:"fallback_tier"`
	Category        string    `json:"category"`
	Confidence      float64   `json:"confidence"`
	ChunksRetrieved int       `json:"chunks_retrieved"`
	Blocked         bool      `json:"blocked"`
	ViolationCount  int       `json:"violation_count"`
	CitationURLs    []string  `json:"citation_urls"`
	TotalTimeMs     int64     `json:"total_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewInteraction builds the audit record for res.
func NewInteraction(res *knowledge.ResponseResult, now time.Time) *Interaction {
	urls := make([]string, 0, len(res.Citations))
	for _, c := range res.Citations {
		urls = append(urls, c.URL)
	}
	return &Interaction{
		ID:              uuid.New(),
		SessionID:       res.SessionID,
		Query:           res.Query,
		FallbackTier:    res.FallbackTier.String(),
		Category:        res.Category.String(),
		Confidence:      res.ConfidenceScore,
		ChunksRetrieved: res.ChunksRetrieved,
		Blocked:         res.BlockedByGuardrail,
		ViolationCount:  res.ViolationCount,
		CitationURLs:    urls,
		TotalTimeMs:     res.TotalTimeMs,
		CreatedAt:       now.UTC(),
	}
}

// InteractionRepository defines operations for interaction persistence
type InteractionRepository interface {
	Create(ctx context.Context, in *Interaction) error
	// ListBySession returns the newest interactions of a session first.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Interaction, error)
}
