package feed

import (
	"context"
	"errors"
	"fmt"

	"example.com/yatube/internal/models"
	"example.com/yatube/internal/store"
)

const (
	GlobalPageSize = 10
	GroupPageSize  = 10
	AuthorPageSize = 3
	FollowPageSize = 7
)

// ErrUnauthenticated is returned by views that need a signed-in viewer.
var ErrUnauthenticated = errors.New("feed: viewer is not authenticated")

// Listing is an ordered page of posts.
type Listing struct {
	Posts []models.Post
	Page  Page
}

// Profile is an author's page as seen by a particular viewer.
type Profile struct {
	Author      models.User
	Listing     Listing
	Followers   int
	Following   int
	IsFollowing bool
	// CanFollow is false for anonymous viewers and for the author themself.
	CanFollow bool
}

// PostView is a single post with its comments.
type PostView struct {
	Author   models.User
	Post     models.Post
	Comments []models.Comment
}

// ImageURLFunc maps a stored image key to a public URL.
type ImageURLFunc func(key string) string

type Service struct {
	store    store.StoreInterface
	imageURL ImageURLFunc
}

// NewService builds the feed service. imageURL may be nil when posts never
// carry images.
func NewService(st store.StoreInterface, imageURL ImageURLFunc) *Service {
	return &Service{store: st, imageURL: imageURL}
}

func (s *Service) list(ctx context.Context, filter store.PostFilter, size, requested int) (Listing, error) {
	total, err := s.store.CountPosts(ctx, filter)
	if err != nil {
		return Listing{}, fmt.Errorf("count posts: %w", err)
	}
	page := Paginate(total, size, requested)
	posts, err := s.store.ListPosts(ctx, filter, page.Size, page.Offset)
	if err != nil {
		return Listing{}, fmt.Errorf("list posts: %w", err)
	}
	for i := range posts {
		s.decorate(&posts[i])
	}
	return Listing{Posts: posts, Page: page}, nil
}

func (s *Service) decorate(p *models.Post) {
	if p.Image != "" && s.imageURL != nil {
		p.ImageURL = s.imageURL(p.Image)
	}
}

// Global is every post, newest first.
func (s *Service) Global(ctx context.Context, page int) (Listing, error) {
	return s.list(ctx, store.PostFilter{}, GlobalPageSize, page)
}

// Group is the posts of the group with the given slug.
func (s *Service) Group(ctx context.Context, slug string, page int) (models.Group, Listing, error) {
	g, err := s.store.GetGroupBySlug(ctx, slug)
	if err != nil {
		return models.Group{}, Listing{}, err
	}
	l, err := s.list(ctx, store.PostFilter{GroupID: &g.ID}, GroupPageSize, page)
	return g, l, err
}

// Author is the profile of username as seen by viewer (nil when anonymous).
func (s *Service) Author(ctx context.Context, viewer *models.User, username string, page int) (Profile, error) {
	author, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return Profile{}, err
	}
	l, err := s.list(ctx, store.PostFilter{AuthorID: &author.ID}, AuthorPageSize, page)
	if err != nil {
		return Profile{}, err
	}

	prof := Profile{Author: author, Listing: l}
	if prof.Followers, err = s.store.CountFollowers(ctx, author.ID); err != nil {
		return Profile{}, fmt.Errorf("count followers: %w", err)
	}
	if prof.Following, err = s.store.CountFollowing(ctx, author.ID); err != nil {
		return Profile{}, fmt.Errorf("count following: %w", err)
	}
	if viewer != nil && viewer.ID != author.ID {
		prof.CanFollow = true
		if prof.IsFollowing, err = s.store.IsFollowing(ctx, viewer.ID, author.ID); err != nil {
			return Profile{}, fmt.Errorf("check follow: %w", err)
		}
	}
	return prof, nil
}

// Following is the posts of every author the viewer follows.
func (s *Service) Following(ctx context.Context, viewer *models.User, page int) (Listing, error) {
	if viewer == nil {
		return Listing{}, ErrUnauthenticated
	}
	return s.list(ctx, store.PostFilter{FollowerID: &viewer.ID}, FollowPageSize, page)
}

// Post loads post id, which must belong to username.
func (s *Service) Post(ctx context.Context, username string, id int64) (PostView, error) {
	author, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return PostView{}, err
	}
	p, err := s.store.GetPost(ctx, id)
	if err != nil {
		return PostView{}, err
	}
	if p.AuthorID != author.ID {
		return PostView{}, store.ErrNotFound
	}
	s.decorate(&p)
	comments, err := s.store.ListComments(ctx, p.ID)
	if err != nil {
		return PostView{}, fmt.Errorf("list comments: %w", err)
	}
	return PostView{Author: author, Post: p, Comments: comments}, nil
}
