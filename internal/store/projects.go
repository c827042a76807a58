package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/builditusa/scopecast/internal/budget"
	"github.com/builditusa/scopecast/internal/prompts"
	"github.com/builditusa/scopecast/internal/scope"
)

// NewProject is the input for CreateProject.
type NewProject struct {
	UserID         *uuid.UUID
	Title          string
	BudgetApproach string
	BudgetTarget   *float64
}

func (s *Store) CreateProject(ctx context.Context, p NewProject) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (id, user_id, title, budget_approach, budget_target)
		VALUES ($1, $2, $3, $4, $5)`,
		id, p.UserID, p.Title, p.BudgetApproach, p.BudgetTarget,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert project: %w", err)
	}
	return id, nil
}

// Project implements budget.History.
func (s *Store) Project(ctx context.Context, id uuid.UUID) (*budget.Project, error) {
	var (
		p    budget.Project
		dims map[string]bool
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, COALESCE(title, ''), status, COALESCE(budget_approach, ''),
		       budget_target::float8, understanding_score, understanding_dimensions,
		       interaction_count, created_at, updated_at
		FROM projects WHERE id = $1`, id,
	).Scan(
		&p.ID, &p.UserID, &p.Title, &p.Status, &p.BudgetApproach,
		&p.BudgetTarget, &p.UnderstandingScore, &dims,
		&p.InteractionCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, budget.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	p.Dimensions = budget.DimensionsFromMap(dims)
	return &p, nil
}

// ZipCode returns the project owner's zip code, or nil when the project has
// no owner or the owner has none on file.
func (s *Store) ZipCode(ctx context.Context, projectID uuid.UUID) (*string, error) {
	var zip *string
	err := s.pool.QueryRow(ctx, `
		SELECT u.zip_code
		FROM projects p LEFT JOIN users u ON u.id = p.user_id
		WHERE p.id = $1`, projectID,
	).Scan(&zip)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, budget.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query zip code: %w", err)
	}
	if zip != nil && *zip == "" {
		return nil, nil
	}
	return zip, nil
}

func (s *Store) UpdateUnderstanding(ctx context.Context, projectID uuid.UUID, u scope.Understanding) error {
	dims, err := json.Marshal(u.Dimensions)
	if err != nil {
		return fmt.Errorf("marshal dimensions: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects
		SET understanding_score = $1, understanding_dimensions = $2,
		    interaction_count = $3, updated_at = now()
		WHERE id = $4`,
		u.Score, dims, u.InteractionCount, projectID,
	)
	if err != nil {
		return fmt.Errorf("update understanding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return budget.ErrNotFound
	}
	return nil
}

func (s *Store) SaveEstimate(ctx context.Context, projectID uuid.UUID, e scope.Estimate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects
		SET scope_summary = $1, cost_estimate = $2, status = $3, updated_at = now()
		WHERE id = $4`,
		e.ScopeSummary, []byte(e.CostEstimate), scope.StatusEstimateReady, projectID,
	)
	if err != nil {
		return fmt.Errorf("save estimate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return budget.ErrNotFound
	}
	return nil
}

// ProjectSummaries loads the cross-project view of the given projects.
// Missing ids are skipped; results follow the order of ids.
func (s *Store) ProjectSummaries(ctx context.Context, ids []uuid.UUID) ([]prompts.ProjectSummary, error) {
	params := make([]string, len(ids))
	for i, id := range ids {
		params[i] = id.String()
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(title, ''), COALESCE(scope_summary, ''), cost_estimate, understanding_score
		FROM projects WHERE id = ANY($1::uuid[])`, params,
	)
	if err != nil {
		return nil, fmt.Errorf("query project summaries: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]prompts.ProjectSummary, len(ids))
	for rows.Next() {
		var (
			id       uuid.UUID
			sum      prompts.ProjectSummary
			estimate []byte
		)
		if err := rows.Scan(&id, &sum.Title, &sum.ScopeSummary, &estimate, &sum.UnderstandingScore); err != nil {
			return nil, fmt.Errorf("scan project summary: %w", err)
		}
		sum.ProjectID = id.String()
		if estimate != nil {
			sum.CostEstimate = json.RawMessage(estimate)
		}
		byID[id] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project summaries: %w", err)
	}

	out := make([]prompts.ProjectSummary, 0, len(byID))
	for _, id := range ids {
		if sum, ok := byID[id]; ok {
			out = append(out, sum)
		}
	}
	return out, nil
}
