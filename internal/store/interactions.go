package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/builditusa/scopecast/internal/budget"
	"github.com/builditusa/scopecast/internal/scope"
)

// Interactions implements budget.History.
func (s *Store) Interactions(ctx context.Context, projectID uuid.UUID) ([]budget.Interaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, type, COALESCE(user_input, ''), COALESCE(ai_response, ''), created_at
		FROM interactions
		WHERE project_id = $1
		ORDER BY created_at, id`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []budget.Interaction
	for rows.Next() {
		var in budget.Interaction
		if err := rows.Scan(&in.ID, &in.ProjectID, &in.Type, &in.UserInput, &in.AIResponse, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) RecordInteraction(ctx context.Context, in scope.Interaction) (uuid.UUID, error) {
	meta := []byte(in.Metadata)
	if len(meta) == 0 {
		meta = []byte("{}")
	}
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interactions (id, project_id, type, user_input, ai_response, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())`,
		id, in.ProjectID, in.Type, in.UserInput, in.AIResponse, meta,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert interaction: %w", err)
	}
	return id, nil
}
