package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"example.com/yatube/internal/blob"
	appkafka "example.com/yatube/internal/broker"
	"example.com/yatube/internal/forms"
	"example.com/yatube/internal/middleware"
	"example.com/yatube/internal/models"
	"github.com/go-chi/chi/v5"
)

type postFormPage struct {
	Form   *forms.PostForm
	Groups []models.Group
	// Post is nil when creating.
	Post *models.Post
}

func postURL(username string, id int64) string {
	return fmt.Sprintf("/%s/%d/", url.PathEscape(username), id)
}

func profileURL(username string) string {
	return "/" + url.PathEscape(username) + "/"
}

// parsePostForm caps the body so an oversized upload fails fast; images
// between maxUpload and the cap are reported as a field error instead.
func (s *Server) parsePostForm(w http.ResponseWriter, r *http.Request) (*forms.PostForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*s.maxUpload+1<<20)
	return forms.ParsePostForm(r, s.maxUpload)
}

func (s *Server) saveImage(ctx context.Context, f *forms.PostForm) (string, error) {
	key := blob.NewImageKey(f.ImageExt())
	if err := s.blobs.Save(ctx, key, f.ImageContentType(), f.ImageReader()); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return key, nil
}

// removeImage drops a blob no post refers to any more. Failures only leave
// an orphan behind, so they are logged.
func (s *Server) removeImage(key string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		logg.Error("http/posts", "Failed to remove image "+key, err)
	}
}

// newPostHandler creates a post authored by the caller; any author the
// client submits is ignored.
func (s *Server) newPostHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := middleware.ViewerFromContext(ctx)

	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		s.fail(w, r, "http/posts", err)
		return
	}

	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "post_form.html", postFormPage{Form: &forms.PostForm{Errors: forms.Errors{}}, Groups: groups})
		return
	}

	form, err := s.parsePostForm(w, r)
	if err != nil {
		logg.Info("http/posts", "Malformed post form: "+err.Error())
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !form.Validate(groups) {
		s.render(w, r, http.StatusOK, "post_form.html", postFormPage{Form: form, Groups: groups})
		return
	}

	post := models.Post{Text: form.Text, AuthorID: viewer.ID, GroupID: form.GroupID}
	if form.HasImage() {
		if post.Image, err = s.saveImage(ctx, form); err != nil {
			s.fail(w, r, "http/posts", err)
			return
		}
	}
	if err := s.store.CreatePost(ctx, &post); err != nil {
		s.removeImage(post.Image)
		s.fail(w, r, "http/posts", err)
		return
	}

	logg.Info("http/posts", fmt.Sprintf("Post %d created by user_id=%d", post.ID, viewer.ID))
	s.publish(appkafka.Event{
		Type: appkafka.EventPostCreated, ActorID: viewer.ID, Actor: viewer.Username,
		TargetID: viewer.ID, Target: viewer.Username, PostID: post.ID,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// postEditHandler lets the author change text, group and image. Everyone
// else, anonymous callers included, is sent to the read view.
func (s *Server) postEditHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := postIDParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	author, err := s.store.GetUserByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, "http/posts", err)
		return
	}

	viewer := middleware.ViewerFromContext(ctx)
	if viewer == nil || viewer.ID != author.ID {
		http.Redirect(w, r, postURL(author.Username, id), http.StatusFound)
		return
	}

	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		s.fail(w, r, "http/posts", err)
		return
	}
	if post.AuthorID != author.ID {
		s.notFound(w, r)
		return
	}
	if post.Image != "" {
		post.ImageURL = s.blobs.URL(post.Image)
	}

	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		s.fail(w, r, "http/posts", err)
		return
	}

	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "post_form.html", postFormPage{Form: forms.PostFormFrom(post), Groups: groups, Post: &post})
		return
	}

	form, err := s.parsePostForm(w, r)
	if err != nil {
		logg.Info("http/posts", "Malformed post form: "+err.Error())
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !form.Validate(groups) {
		s.render(w, r, http.StatusOK, "post_form.html", postFormPage{Form: form, Groups: groups, Post: &post})
		return
	}

	oldImage := post.Image
	post.Text = form.Text
	post.GroupID = form.GroupID
	if form.ClearImage {
		post.Image = ""
	}
	newImage := ""
	if form.HasImage() {
		if newImage, err = s.saveImage(ctx, form); err != nil {
			s.fail(w, r, "http/posts", err)
			return
		}
		post.Image = newImage
	}
	if err := s.store.UpdatePost(ctx, &post); err != nil {
		s.removeImage(newImage)
		s.fail(w, r, "http/posts", err)
		return
	}
	if oldImage != post.Image {
		s.removeImage(oldImage)
	}

	logg.Info("http/posts", fmt.Sprintf("Post %d edited by user_id=%d", post.ID, viewer.ID))
	s.publish(appkafka.Event{
		Type: appkafka.EventPostEdited, ActorID: viewer.ID, Actor: viewer.Username,
		TargetID: viewer.ID, Target: viewer.Username, PostID: post.ID,
	})
	http.Redirect(w, r, postURL(author.Username, post.ID), http.StatusFound)
}

func (s *Server) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := middleware.ViewerFromContext(ctx)
	id, ok := postIDParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	view, err := s.feed.Post(ctx, chi.URLParam(r, "username"), id)
	if err != nil {
		s.fail(w, r, "http/comments", err)
		return
	}

	form, err := forms.ParseCommentForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !form.Validate() {
		s.renderPost(w, r, http.StatusOK, view, form)
		return
	}

	c := models.Comment{PostID: view.Post.ID, AuthorID: viewer.ID, Text: form.Text}
	if err := s.store.CreateComment(ctx, &c); err != nil {
		s.fail(w, r, "http/comments", err)
		return
	}

	logg.Info("http/comments", fmt.Sprintf("Comment %d added to post %d", c.ID, view.Post.ID))
	s.publish(appkafka.Event{
		Type: appkafka.EventCommentAdded, ActorID: viewer.ID, Actor: viewer.Username,
		TargetID: view.Author.ID, Target: view.Author.Username, PostID: view.Post.ID,
	})
	http.Redirect(w, r, postURL(view.Author.Username, view.Post.ID), http.StatusFound)
}

// followHandler is idempotent; following yourself does nothing.
func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := middleware.ViewerFromContext(ctx)
	author, err := s.store.GetUserByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, "http/follow", err)
		return
	}

	if viewer.ID != author.ID {
		if err := s.store.Follow(ctx, viewer.ID, author.ID); err != nil {
			s.fail(w, r, "http/follow", err)
			return
		}
		logg.Info("http/follow", fmt.Sprintf("User %d followed %d", viewer.ID, author.ID))
		s.publish(appkafka.Event{
			Type: appkafka.EventFollow, ActorID: viewer.ID, Actor: viewer.Username,
			TargetID: author.ID, Target: author.Username,
		})
	}
	http.Redirect(w, r, profileURL(author.Username), http.StatusFound)
}

func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer := middleware.ViewerFromContext(ctx)
	author, err := s.store.GetUserByUsername(ctx, chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, "http/follow", err)
		return
	}

	if err := s.store.Unfollow(ctx, viewer.ID, author.ID); err != nil {
		s.fail(w, r, "http/follow", err)
		return
	}
	logg.Info("http/follow", fmt.Sprintf("User %d unfollowed %d", viewer.ID, author.ID))
	s.publish(appkafka.Event{
		Type: appkafka.EventUnfollow, ActorID: viewer.ID, Actor: viewer.Username,
		TargetID: author.ID, Target: author.Username,
	})
	http.Redirect(w, r, profileURL(author.Username), http.StatusFound)
}
