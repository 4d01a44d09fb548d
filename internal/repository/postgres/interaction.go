package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/repository"
)

// DefaultListLimit caps ListBySession when no limit is given.
const DefaultListLimit = 50

// InteractionRepo implements repository.InteractionRepository
type InteractionRepo struct {
	db *DB
}

// NewInteractionRepo creates a new interaction repository
func NewInteractionRepo(db *DB) *InteractionRepo {
	return &InteractionRepo{db: db}
}

// Create stores an interaction
func (r *InteractionRepo) Create(ctx context.Context, in *repository.Interaction) error {
	urls := in.CitationURLs
	if urls == nil {
		urls = []string{}
	}

	query := `
		INSERT INTO interactions (id, session_id, query, fallback_tier, category, confidence,
			chunks_retrieved, blocked, violation_count, citation_urls, total_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		in.ID, in.SessionID, in.Query, in.FallbackTier, in.Category, in.Confidence,
		in.ChunksRetrieved, in.Blocked, in.ViolationCount, urls, in.TotalTimeMs, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create interaction: %w", err)
	}
	return nil
}

// ListBySession returns a session's interactions, newest first
func (r *InteractionRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]*repository.Interaction, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, session_id, query, fallback_tier, category, confidence,
			chunks_retrieved, blocked, violation_count, citation_urls, total_time_ms, created_at
		FROM interactions
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*repository.Interaction, error) {
		var in repository.Interaction
		err := row.Scan(
			&in.ID, &in.SessionID, &in.Query, &in.FallbackTier, &in.Category, &in.Confidence,
			&in.ChunksRetrieved, &in.Blocked, &in.ViolationCount, &in.CitationURLs, &in.TotalTimeMs, &in.CreatedAt,
		)
		return &in, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan interactions: %w", err)
	}
	return out, nil
}

var _ repository.InteractionRepository = (*InteractionRepo)(nil)
