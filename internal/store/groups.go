package store

import (
	"context"

	"example.com/yatube/internal/models"
)

// --- Group operations ---

func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO post_groups (title, slug, description) VALUES ($1, $2, $3) RETURNING id`,
		group.Title, group.Slug, group.Description,
	).Scan(&group.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		logg.Error("store", "Failed to create group", err)
		return err
	}
	return nil
}

func (s *Store) GetGroupBySlug(ctx context.Context, slug string) (models.Group, error) {
	var g models.Group
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, slug, description FROM post_groups WHERE slug = $1`,
		slug,
	).Scan(&g.ID, &g.Title, &g.Slug, &g.Description)
	if err != nil {
		return models.Group{}, notFound(err)
	}
	return g, nil
}

// ListGroups returns every group ordered by title, for the post form.
func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, slug, description FROM post_groups ORDER BY title, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteGroup removes the group; its posts stay with group_id set to NULL.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM post_groups WHERE id = $1`, id)
	if err != nil {
		logg.Error("store", "Failed to delete group", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
