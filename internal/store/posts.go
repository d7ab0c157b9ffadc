package store

import (
	"context"
	"fmt"
	"strings"

	"example.com/yatube/internal/models"
	"github.com/jackc/pgx/v5"
)

const postColumns = `
	p.id, p.text, p.pub_date, p.author_id, u.username,
	p.group_id, g.title, g.slug, g.description, p.image,
	(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id)`

const postFrom = `
	FROM posts p
	JOIN users u ON u.id = p.author_id
	LEFT JOIN post_groups g ON g.id = p.group_id`

// Ties on pub_date keep insertion order.
const postOrder = ` ORDER BY p.pub_date DESC, p.id ASC`

// where renders the filter as a WHERE clause with numbered placeholders.
func (f PostFilter) where(args []any) (string, []any) {
	var conds []string
	if f.GroupID != nil {
		args = append(args, *f.GroupID)
		conds = append(conds, fmt.Sprintf("p.group_id = $%d", len(args)))
	}
	if f.AuthorID != nil {
		args = append(args, *f.AuthorID)
		conds = append(conds, fmt.Sprintf("p.author_id = $%d", len(args)))
	}
	if f.FollowerID != nil {
		args = append(args, *f.FollowerID)
		conds = append(conds, fmt.Sprintf("p.author_id IN (SELECT f.author_id FROM follows f WHERE f.user_id = $%d)", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanPost(row pgx.Row) (models.Post, error) {
	var (
		p                  models.Post
		gTitle, gSlug, gDe *string
	)
	err := row.Scan(&p.ID, &p.Text, &p.PubDate, &p.AuthorID, &p.Author,
		&p.GroupID, &gTitle, &gSlug, &gDe, &p.Image, &p.CommentCount)
	if err != nil {
		return models.Post{}, err
	}
	if p.GroupID != nil && gSlug != nil {
		p.Group = &models.Group{ID: *p.GroupID, Title: deref(gTitle), Slug: *gSlug, Description: deref(gDe)}
	}
	return p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- Post operations ---

// CreatePost inserts the post and fills ID and PubDate. PubDate is assigned
// by the database and never changes afterwards.
func (s *Store) CreatePost(ctx context.Context, post *models.Post) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO posts (text, author_id, group_id, image)
		VALUES ($1, $2, $3, $4)
		RETURNING id, pub_date`,
		post.Text, post.AuthorID, post.GroupID, post.Image,
	).Scan(&post.ID, &post.PubDate)
	if err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}
	logg.Info("store", "Post added (content anonymized)")
	return nil
}

func (s *Store) GetPost(ctx context.Context, id int64) (models.Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+postFrom+` WHERE p.id = $1`, id))
	if err != nil {
		return models.Post{}, notFound(err)
	}
	return p, nil
}

// UpdatePost rewrites the mutable fields (text, group, image) only.
func (s *Store) UpdatePost(ctx context.Context, post *models.Post) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE posts SET text = $1, group_id = $2, image = $3 WHERE id = $4`,
		post.Text, post.GroupID, post.Image, post.ID,
	)
	if err != nil {
		logg.Error("store", "Failed to update post", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		logg.Error("store", "Failed to delete post", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPosts returns one page of posts matching filter, newest first.
func (s *Store) ListPosts(ctx context.Context, filter PostFilter, limit, offset int) ([]models.Post, error) {
	where, args := filter.where(nil)
	args = append(args, limit, offset)
	query := `SELECT ` + postColumns + postFrom + where + postOrder +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		logg.Error("store", "Failed to list posts", err)
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) CountPosts(ctx context.Context, filter PostFilter) (int, error) {
	where, args := filter.where(nil)
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts p`+where, args...).Scan(&count)
	return count, err
}
