package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"example.com/yatube/internal/models"
)

var errMockFail = errors.New("mock: store failure")

// MockStore keeps everything in memory and enforces the same uniqueness,
// ordering and cascade rules as the Postgres schema. It is safe for
// concurrent use by httptest servers.
type MockStore struct {
	mu sync.Mutex

	users    map[int64]models.User
	groups   map[int64]models.Group
	posts    map[int64]models.Post
	comments map[int64]models.Comment
	follows  map[int64]models.Follow
	nextID   int64

	// Now stamps pub_date and created; tests may pin it to force ties.
	Now        func() time.Time
	ShouldFail bool // flag to simulate failures
	// FailPostWrites makes only CreatePost and UpdatePost fail.
	FailPostWrites bool
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		users:    make(map[int64]models.User),
		groups:   make(map[int64]models.Group),
		posts:    make(map[int64]models.Post),
		comments: make(map[int64]models.Comment),
		follows:  make(map[int64]models.Follow),
		Now:      time.Now,
	}
}

func (m *MockStore) Close() {}

func (m *MockStore) id() int64 {
	m.nextID++
	return m.nextID
}

// --- users ---

func (m *MockStore) CreateUser(_ context.Context, username, passwordHash string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.User{}, errMockFail
	}
	for _, u := range m.users {
		if u.Username == username {
			return models.User{}, ErrConflict
		}
	}
	u := models.User{ID: m.id(), Username: username, PasswordHash: passwordHash, Created: m.Now()}
	m.users[u.ID] = u
	return u, nil
}

func (m *MockStore) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.User{}, errMockFail
	}
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *MockStore) GetUserByID(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.User{}, errMockFail
	}
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MockStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	for pid, p := range m.posts {
		if p.AuthorID == id {
			m.deletePostLocked(pid)
		}
	}
	for cid, c := range m.comments {
		if c.AuthorID == id {
			delete(m.comments, cid)
		}
	}
	for fid, f := range m.follows {
		if f.UserID == id || f.AuthorID == id {
			delete(m.follows, fid)
		}
	}
	return nil
}

// --- groups ---

func (m *MockStore) CreateGroup(_ context.Context, group *models.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	for _, g := range m.groups {
		if g.Slug == group.Slug {
			return ErrConflict
		}
	}
	group.ID = m.id()
	m.groups[group.ID] = *group
	return nil
}

func (m *MockStore) GetGroupBySlug(_ context.Context, slug string) (models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.Group{}, errMockFail
	}
	for _, g := range m.groups {
		if g.Slug == slug {
			return g, nil
		}
	}
	return models.Group{}, ErrNotFound
}

func (m *MockStore) ListGroups(_ context.Context) ([]models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMockFail
	}
	groups := make([]models.Group, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Title != groups[j].Title {
			return groups[i].Title < groups[j].Title
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

func (m *MockStore) DeleteGroup(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	if _, ok := m.groups[id]; !ok {
		return ErrNotFound
	}
	delete(m.groups, id)
	for pid, p := range m.posts {
		if p.GroupID != nil && *p.GroupID == id {
			p.GroupID = nil
			m.posts[pid] = p
		}
	}
	return nil
}

// --- posts ---

func (m *MockStore) CreatePost(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail || m.FailPostWrites {
		return errMockFail
	}
	if _, ok := m.users[post.AuthorID]; !ok {
		return errors.New("mock: author does not exist")
	}
	if post.GroupID != nil {
		if _, ok := m.groups[*post.GroupID]; !ok {
			return errors.New("mock: group does not exist")
		}
	}
	post.ID = m.id()
	post.PubDate = m.Now()
	stored := *post
	stored.GroupID = copyID(post.GroupID)
	m.posts[post.ID] = stored
	return nil
}

func (m *MockStore) GetPost(_ context.Context, id int64) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.Post{}, errMockFail
	}
	p, ok := m.posts[id]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return m.hydrateLocked(p), nil
}

func (m *MockStore) UpdatePost(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail || m.FailPostWrites {
		return errMockFail
	}
	p, ok := m.posts[post.ID]
	if !ok {
		return ErrNotFound
	}
	p.Text = post.Text
	p.GroupID = copyID(post.GroupID)
	p.Image = post.Image
	m.posts[p.ID] = p
	return nil
}

func (m *MockStore) DeletePost(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	m.deletePostLocked(id)
	return nil
}

func (m *MockStore) deletePostLocked(id int64) {
	delete(m.posts, id)
	for cid, c := range m.comments {
		if c.PostID == id {
			delete(m.comments, cid)
		}
	}
}

func (m *MockStore) ListPosts(_ context.Context, filter PostFilter, limit, offset int) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMockFail
	}
	all := m.filterLocked(filter)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := make([]models.Post, 0, end-offset)
	for _, p := range all[offset:end] {
		page = append(page, m.hydrateLocked(p))
	}
	return page, nil
}

func (m *MockStore) CountPosts(_ context.Context, filter PostFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMockFail
	}
	return len(m.filterLocked(filter)), nil
}

func (m *MockStore) filterLocked(filter PostFilter) []models.Post {
	var followed map[int64]bool
	if filter.FollowerID != nil {
		followed = make(map[int64]bool)
		for _, f := range m.follows {
			if f.UserID == *filter.FollowerID {
				followed[f.AuthorID] = true
			}
		}
	}

	var out []models.Post
	for _, p := range m.posts {
		if filter.GroupID != nil && (p.GroupID == nil || *p.GroupID != *filter.GroupID) {
			continue
		}
		if filter.AuthorID != nil && p.AuthorID != *filter.AuthorID {
			continue
		}
		if followed != nil && !followed[p.AuthorID] {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PubDate.Equal(out[j].PubDate) {
			return out[i].PubDate.After(out[j].PubDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// hydrateLocked fills the joined fields the SQL listing query returns.
func (m *MockStore) hydrateLocked(p models.Post) models.Post {
	p.GroupID = copyID(p.GroupID)
	p.Author = m.users[p.AuthorID].Username
	p.Group = nil
	if p.GroupID != nil {
		if g, ok := m.groups[*p.GroupID]; ok {
			p.Group = &g
		}
	}
	p.CommentCount = 0
	for _, c := range m.comments {
		if c.PostID == p.ID {
			p.CommentCount++
		}
	}
	return p
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// --- comments ---

func (m *MockStore) CreateComment(_ context.Context, comment *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	if _, ok := m.posts[comment.PostID]; !ok {
		return errors.New("mock: post does not exist")
	}
	if _, ok := m.users[comment.AuthorID]; !ok {
		return errors.New("mock: author does not exist")
	}
	comment.ID = m.id()
	comment.Created = m.Now()
	m.comments[comment.ID] = *comment
	return nil
}

func (m *MockStore) ListComments(_ context.Context, postID int64) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errMockFail
	}
	var out []models.Comment
	for _, c := range m.comments {
		if c.PostID == postID {
			c.Author = m.users[c.AuthorID].Username
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CommentCount reports how many comments exist in total.
func (m *MockStore) CommentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.comments)
}

// PostCount reports how many posts exist in total.
func (m *MockStore) PostCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

// FollowCount reports how many follow edges exist in total.
func (m *MockStore) FollowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.follows)
}

// --- follows ---

func (m *MockStore) Follow(_ context.Context, userID, authorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	if userID == authorID {
		return ErrSelfFollow
	}
	for _, f := range m.follows {
		if f.UserID == userID && f.AuthorID == authorID {
			return nil
		}
	}
	f := models.Follow{ID: m.id(), UserID: userID, AuthorID: authorID}
	m.follows[f.ID] = f
	return nil
}

func (m *MockStore) Unfollow(_ context.Context, userID, authorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errMockFail
	}
	for id, f := range m.follows {
		if f.UserID == userID && f.AuthorID == authorID {
			delete(m.follows, id)
		}
	}
	return nil
}

func (m *MockStore) IsFollowing(_ context.Context, userID, authorID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return false, errMockFail
	}
	for _, f := range m.follows {
		if f.UserID == userID && f.AuthorID == authorID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) CountFollowers(_ context.Context, authorID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMockFail
	}
	n := 0
	for _, f := range m.follows {
		if f.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}

func (m *MockStore) CountFollowing(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errMockFail
	}
	n := 0
	for _, f := range m.follows {
		if f.UserID == userID {
			n++
		}
	}
	return n, nil
}
