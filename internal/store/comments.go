package store

import (
	"context"

	"example.com/yatube/internal/models"
)

// --- Comment operations ---

func (s *Store) CreateComment(ctx context.Context, comment *models.Comment) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO comments (post_id, author_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		comment.PostID, comment.AuthorID, comment.Text,
	).Scan(&comment.ID, &comment.Created)
	if err != nil {
		logg.Error("store", "Failed to add comment", err)
		return err
	}
	return nil
}

// ListComments returns the comments of a post, oldest first.
func (s *Store) ListComments(ctx context.Context, postID int64) ([]models.Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.post_id, c.author_id, u.username, c.text, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.post_id = $1
		ORDER BY c.created_at ASC, c.id ASC`,
		postID,
	)
	if err != nil {
		logg.Error("store", "Failed to list comments", err)
		return nil, err
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Author, &c.Text, &c.Created); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
