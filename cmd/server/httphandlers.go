package server

import (
	"errors"
	"net/http"
	"strconv"

	"example.com/yatube/internal/activity"
	"example.com/yatube/internal/feed"
	"example.com/yatube/internal/forms"
	"example.com/yatube/internal/middleware"
	"example.com/yatube/internal/models"
	"github.com/go-chi/chi/v5"
)

const activityLimit = 50

// --- Read views ---

// indexHandler renders the global feed. Its output is cached for every
// viewer alike, so it is rendered as if nobody were signed in.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	l, err := s.feed.Global(r.Context(), pageParam(r))
	if err != nil {
		s.fail(w, r, "http/index", err)
		return
	}
	s.renderPage(w, http.StatusOK, "index.html", page{Cacheable: true, Path: r.URL.Path, Data: l})
}

func (s *Server) groupHandler(w http.ResponseWriter, r *http.Request) {
	g, l, err := s.feed.Group(r.Context(), chi.URLParam(r, "slug"), pageParam(r))
	if err != nil {
		s.fail(w, r, "http/group", err)
		return
	}
	s.render(w, r, http.StatusOK, "group.html", struct {
		Group   models.Group
		Listing feed.Listing
	}{g, l})
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.ViewerFromContext(r.Context())
	prof, err := s.feed.Author(r.Context(), viewer, chi.URLParam(r, "username"), pageParam(r))
	if err != nil {
		s.fail(w, r, "http/profile", err)
		return
	}
	s.render(w, r, http.StatusOK, "profile.html", prof)
}

type postPage struct {
	View    feed.PostView
	Form    *forms.CommentForm
	CanEdit bool
}

func (s *Server) postViewHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := postIDParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	view, err := s.feed.Post(r.Context(), chi.URLParam(r, "username"), id)
	if err != nil {
		s.fail(w, r, "http/post", err)
		return
	}
	s.renderPost(w, r, http.StatusOK, view, &forms.CommentForm{Errors: forms.Errors{}})
}

func (s *Server) renderPost(w http.ResponseWriter, r *http.Request, status int, view feed.PostView, form *forms.CommentForm) {
	viewer := middleware.ViewerFromContext(r.Context())
	s.render(w, r, status, "post.html", postPage{
		View:    view,
		Form:    form,
		CanEdit: viewer != nil && viewer.ID == view.Post.AuthorID,
	})
}

func (s *Server) followIndexHandler(w http.ResponseWriter, r *http.Request) {
	l, err := s.feed.Following(r.Context(), middleware.ViewerFromContext(r.Context()), pageParam(r))
	if errors.Is(err, feed.ErrUnauthenticated) {
		http.Redirect(w, r, middleware.LoginURL(r.URL.RequestURI()), http.StatusFound)
		return
	}
	if err != nil {
		s.fail(w, r, "http/follow", err)
		return
	}
	s.render(w, r, http.StatusOK, "follow.html", l)
}

// activityHandler shows the timeline the worker builds in Cassandra. It only
// exists when an activity store is configured.
func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		s.notFound(w, r)
		return
	}
	u, err := s.store.GetUserByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, "http/activity", err)
		return
	}
	entries, err := s.activity.Recent(r.Context(), u.ID, activityLimit)
	if err != nil {
		s.fail(w, r, "http/activity", err)
		return
	}
	s.render(w, r, http.StatusOK, "activity.html", struct {
		User    models.User
		Entries []activity.Entry
	}{u, entries})
}

// --- Params ---

func pageParam(r *http.Request) int {
	return feed.ParsePage(r.URL.Query().Get("page"))
}

func postIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "post_id"), 10, 64)
	return id, err == nil && id > 0
}
