package store

import (
	"context"
	"errors"
	"fmt"

	"example.com/yatube/internal/logger"
	"example.com/yatube/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var logg = logger.New()

var (
	// ErrNotFound is returned when a lookup by id, slug or username matches nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a unique constraint (username, group slug) is violated.
	ErrConflict = errors.New("store: already exists")
	// ErrSelfFollow is returned when a user tries to follow themself.
	ErrSelfFollow = errors.New("store: user cannot follow themself")
)

// --- Interfaces ---

type StoreInterface interface {
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroupBySlug(ctx context.Context, slug string) (models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	DeleteGroup(ctx context.Context, id int64) error

	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id int64) (models.Post, error)
	UpdatePost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, id int64) error
	ListPosts(ctx context.Context, filter PostFilter, limit, offset int) ([]models.Post, error)
	CountPosts(ctx context.Context, filter PostFilter) (int, error)

	CreateComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, postID int64) ([]models.Comment, error)

	Follow(ctx context.Context, userID, authorID int64) error
	Unfollow(ctx context.Context, userID, authorID int64) error
	IsFollowing(ctx context.Context, userID, authorID int64) (bool, error)
	CountFollowers(ctx context.Context, authorID int64) (int, error)
	CountFollowing(ctx context.Context, userID int64) (int, error)

	Close()
}

// PostFilter narrows a post listing. A zero filter selects every post.
// FollowerID selects posts whose author is followed by that user.
type PostFilter struct {
	GroupID    *int64
	AuthorID   *int64
	FollowerID *int64
}

// --- Store Implementation ---

type Store struct {
	pool *pgxpool.Pool
}

// New opens a pgx connection pool and checks that Postgres answers.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logg.Info("store", "Connected to Postgres")
	return &Store{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		logg.Info("store", "Postgres pool closed")
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
