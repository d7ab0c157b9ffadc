package store

import (
	"context"

	"example.com/yatube/internal/models"
)

// --- User operations ---

// CreateUser inserts a user. ErrConflict means the username is taken.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	u := models.User{Username: username, PasswordHash: passwordHash}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, created_at`,
		username, passwordHash,
	).Scan(&u.ID, &u.Created)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrConflict
		}
		logg.Error("store", "Failed to create user", err)
		return models.User{}, err
	}
	logg.Info("store", "User created")
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Created)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Created)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return u, nil
}

// DeleteUser removes the user together with their posts, comments and
// follow edges (ON DELETE CASCADE).
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		logg.Error("store", "Failed to delete user", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
