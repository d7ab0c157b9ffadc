package models

import "time"

type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Created      time.Time `json:"created" db:"created_at"`
}

type Group struct {
	ID          int64  `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	Slug        string `json:"slug" db:"slug"`
	Description string `json:"description" db:"description"`
}

// Post is a single entry of any feed. Author, Group and CommentCount are
// filled by listing queries; GroupID is nil when the post has no group.
type Post struct {
	ID           int64     `json:"id" db:"id"`
	Text         string    `json:"text" db:"text"`
	PubDate      time.Time `json:"pub_date" db:"pub_date"`
	AuthorID     int64     `json:"author_id" db:"author_id"`
	Author       string    `json:"author" db:"author"`
	GroupID      *int64    `json:"group_id,omitempty" db:"group_id"`
	Group        *Group    `json:"group,omitempty" db:"-"`
	Image        string    `json:"image,omitempty" db:"image"`
	ImageURL     string    `json:"image_url,omitempty" db:"-"`
	CommentCount int       `json:"comment_count" db:"comment_count"`
}

type Comment struct {
	ID       int64     `json:"id" db:"id"`
	PostID   int64     `json:"post_id" db:"post_id"`
	AuthorID int64     `json:"author_id" db:"author_id"`
	Author   string    `json:"author" db:"author"`
	Text     string    `json:"text" db:"text"`
	Created  time.Time `json:"created" db:"created_at"`
}

// Follow means UserID receives AuthorID's posts in the follow feed.
type Follow struct {
	ID       int64 `json:"id" db:"id"`
	UserID   int64 `json:"user_id" db:"user_id"`
	AuthorID int64 `json:"author_id" db:"author_id"`
}
