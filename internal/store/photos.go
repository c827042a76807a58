package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/builditusa/scopecast/internal/budget"
)

// AddPhoto appends a photo after the project's last one and returns its id.
func (s *Store) AddPhoto(ctx context.Context, projectID uuid.UUID, storagePath, analysis string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO project_photos (id, project_id, photo_order, storage_path, ai_analysis)
		SELECT $1, $2, COALESCE(MAX(photo_order), 0) + 1, $3, $4
		FROM project_photos WHERE project_id = $2`,
		id, projectID, storagePath, analysis,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert photo: %w", err)
	}
	return id, nil
}

// Photos implements budget.History.
func (s *Store) Photos(ctx context.Context, projectID uuid.UUID) ([]budget.Photo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, photo_order, COALESCE(storage_path, ''), COALESCE(ai_analysis, ''), created_at
		FROM project_photos
		WHERE project_id = $1
		ORDER BY photo_order`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	var out []budget.Photo
	for rows.Next() {
		var p budget.Photo
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Order, &p.StoragePath, &p.Analysis, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
