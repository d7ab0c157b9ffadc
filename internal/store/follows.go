package store

import (
	"context"
)

// --- Follow operations ---

// Follow records that userID follows authorID. Following twice is a no-op.
func (s *Store) Follow(ctx context.Context, userID, authorID int64) error {
	if userID == authorID {
		return ErrSelfFollow
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO follows (user_id, author_id) VALUES ($1, $2)
		ON CONFLICT (user_id, author_id) DO NOTHING`,
		userID, authorID,
	)
	if err != nil {
		if isCheckViolation(err) {
			return ErrSelfFollow
		}
		logg.Error("store", "Failed to create follow relationship", err)
		return err
	}
	logg.Info("store", "Follow relationship ensured (user IDs anonymized)")
	return nil
}

// Unfollow removes the edge if present; a missing edge is not an error.
func (s *Store) Unfollow(ctx context.Context, userID, authorID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM follows WHERE user_id = $1 AND author_id = $2`, userID, authorID)
	if err != nil {
		logg.Error("store", "Failed to delete follow relationship", err)
		return err
	}
	return nil
}

func (s *Store) IsFollowing(ctx context.Context, userID, authorID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE user_id = $1 AND author_id = $2)`,
		userID, authorID,
	).Scan(&exists)
	return exists, err
}

func (s *Store) CountFollowers(ctx context.Context, authorID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM follows WHERE author_id = $1`, authorID).Scan(&n)
	return n, err
}

func (s *Store) CountFollowing(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM follows WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}
