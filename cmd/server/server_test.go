package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"example.com/yatube/internal/activity"
	"example.com/yatube/internal/blob"
	appkafka "example.com/yatube/internal/broker"
	"example.com/yatube/internal/forms"
	"example.com/yatube/internal/middleware"
	"example.com/yatube/internal/models"
	"example.com/yatube/internal/pagecache"
	"example.com/yatube/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

//
// --- Setup test server ---
//

type testEnv struct {
	srv      *Server
	ts       *httptest.Server
	store    *store.MockStore
	kafka    *appkafka.MockKafka
	blobs    *blob.MemoryStore
	cache    *pagecache.MemoryStore
	activity *activity.MockStore
	auth     *middleware.Authenticator
	client   *http.Client
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    store.NewMock(),
		kafka:    &appkafka.MockKafka{},
		blobs:    blob.NewMemoryStore(),
		cache:    pagecache.NewMemoryStore(),
		activity: activity.NewMock(),
		auth:     middleware.NewAuthenticator("test-secret", time.Hour),
	}
	env.auth.WithUsers(env.store)
	srv, err := New(Deps{
		Store:         env.store,
		Events:        env.kafka,
		Blobs:         env.blobs,
		Cache:         env.cache,
		Activity:      env.activity,
		Auth:          env.auth,
		IndexCacheTTL: 20 * time.Second,
	})
	require.NoError(t, err)
	env.srv = srv
	env.ts = httptest.NewServer(srv.Routes())
	t.Cleanup(env.ts.Close)

	env.client = &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	return env
}

//
// --- Helpers ---
//

func (e *testEnv) user(t *testing.T, username string) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-"+username), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := e.store.CreateUser(context.Background(), username, string(hash))
	require.NoError(t, err)
	return u
}

func (e *testEnv) group(t *testing.T, slug string) models.Group {
	t.Helper()
	g := models.Group{Title: "Group " + slug, Slug: slug, Description: "about " + slug}
	require.NoError(t, e.store.CreateGroup(context.Background(), &g))
	return g
}

func (e *testEnv) post(t *testing.T, author models.User, text string) models.Post {
	t.Helper()
	p := models.Post{Text: text, AuthorID: author.ID}
	require.NoError(t, e.store.CreatePost(context.Background(), &p))
	return p
}

// do sends a request, signed in as `as` when it is non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, as *models.User) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as != nil {
		token, err := e.auth.Issue(*as)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func (e *testEnv) get(t *testing.T, path string, as *models.User) (*http.Response, string) {
	t.Helper()
	return e.do(t, http.MethodGet, path, nil, "", as)
}

func (e *testEnv) postForm(t *testing.T, path string, values url.Values, as *models.User) (*http.Response, string) {
	t.Helper()
	return e.do(t, http.MethodPost, path, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded", as)
}

func (e *testEnv) postMultipart(t *testing.T, path string, fields map[string]string, fileName string, file []byte, as *models.User) (*http.Response, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("image", fileName)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return e.do(t, http.MethodPost, path, &body, w.FormDataContentType(), as)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func postPath(p models.Post, username string) string {
	return "/" + username + "/" + strconv.FormatInt(p.ID, 10) + "/"
}

//
// --- Create post ---
//

func TestNewPost_AnonymousRedirectsToLogin(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := env.postForm(t, "/new/", url.Values{"text": {"anonymous text"}}, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login/?next=/new/", resp.Header.Get("Location"))
	assert.Equal(t, 0, env.store.PostCount())

	resp, _ = env.get(t, "/new/", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login/?next=/new/", resp.Header.Get("Location"))
}

func TestNewPost_AuthorIsCaller(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	other := env.user(t, "other")
	g := env.group(t, "cats")

	resp, _ := env.get(t, "/new/", &sarah)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.postForm(t, "/new/", url.Values{
		"text":   {"Cats are great"},
		"group":  {strconv.FormatInt(g.ID, 10)},
		"author": {strconv.FormatInt(other.ID, 10)},
	}, &sarah)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	posts, err := env.store.ListPosts(context.Background(), store.PostFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, sarah.ID, posts[0].AuthorID)
	require.NotNil(t, posts[0].GroupID)
	assert.Equal(t, g.ID, *posts[0].GroupID)
}

func TestNewPost_InvalidFormRerenders(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")

	resp, body := env.postForm(t, "/new/", url.Values{"text": {"  "}, "group": {"999"}}, &sarah)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, forms.MsgRequired)
	assert.Equal(t, 0, env.store.PostCount())
}

func TestNewPost_TextAppearsOnceOnEveryPage(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	g := env.group(t, "travel")
	const text = "Notes from a long train ride"

	resp, _ := env.postForm(t, "/new/", url.Values{"text": {text}, "group": {strconv.FormatInt(g.ID, 10)}}, &sarah)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	posts, _ := env.store.ListPosts(context.Background(), store.PostFilter{}, 1, 0)
	require.Len(t, posts, 1)

	for _, path := range []string{"/", "/sarah/", postPath(posts[0], "sarah"), "/group/travel/"} {
		resp, body := env.get(t, path, &sarah)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, 1, strings.Count(body, text), path)
	}
}

//
// --- Edit post ---
//

func TestPostEdit_OwnerUpdatesEverywhere(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	env.group(t, "travel")
	p := env.post(t, sarah, "first draft of the post")

	resp, body := env.get(t, postPath(p, "sarah")+"edit/", &sarah)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "first draft of the post")

	resp, _ = env.postForm(t, postPath(p, "sarah")+"edit/", url.Values{"text": {"final version of the post"}}, &sarah)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, postPath(p, "sarah"), resp.Header.Get("Location"))
	assert.Equal(t, 1, env.store.PostCount())

	for _, path := range []string{"/", "/sarah/", postPath(p, "sarah")} {
		_, body := env.get(t, path, nil)
		assert.Equal(t, 1, strings.Count(body, "final version of the post"), path)
		assert.NotContains(t, body, "first draft of the post", path)
	}
}

func TestPostEdit_NonOwnerIsRedirected(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	mallory := env.user(t, "mallory")
	p := env.post(t, sarah, "untouched words")

	for _, as := range []*models.User{&mallory, nil} {
		resp, body := env.get(t, postPath(p, "sarah")+"edit/", as)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, postPath(p, "sarah"), resp.Header.Get("Location"))
		assert.NotContains(t, body, "<form")

		resp, _ = env.postForm(t, postPath(p, "sarah")+"edit/", url.Values{"text": {"hijacked"}}, as)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, postPath(p, "sarah"), resp.Header.Get("Location"))
	}

	got, err := env.store.GetPost(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "untouched words", got.Text)
}

func TestPostEdit_WrongAuthorInPathIs404(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	leo := env.user(t, "leo")
	p := env.post(t, sarah, "belongs to sarah")

	resp, _ := env.get(t, postPath(p, "leo")+"edit/", &leo)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.get(t, postPath(p, "leo"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostEdit_ImageRenderedOnEveryPage(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	g := env.group(t, "pics")
	p := env.post(t, sarah, "with a picture")

	resp, _ := env.postMultipart(t, postPath(p, "sarah")+"edit/", map[string]string{
		"text": "with a picture", "group": strconv.FormatInt(g.ID, 10),
	}, "photo.png", pngBytes(t), &sarah)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, 1, env.blobs.Len())

	got, _ := env.store.GetPost(context.Background(), p.ID)
	require.True(t, strings.HasSuffix(got.Image, ".png"), got.Image)

	for _, path := range []string{"/", "/sarah/", postPath(p, "sarah"), "/group/pics/"} {
		_, body := env.get(t, path, nil)
		assert.Contains(t, body, "<img", path)
	}

	// clearing removes it again
	env.srv.ClearIndexCache()
	resp, _ = env.postMultipart(t, postPath(p, "sarah")+"edit/", map[string]string{
		"text": "with a picture", "image-clear": "on",
	}, "", nil, &sarah)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	_, body := env.get(t, postPath(p, "sarah"), nil)
	assert.NotContains(t, body, "<img")
}

func TestPostEdit_NonImageRejected(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	p := env.post(t, sarah, "text stays")

	resp, body := env.postMultipart(t, postPath(p, "sarah")+"edit/", map[string]string{
		"text": "changed text",
	}, "notes.txt", []byte("this is not an image"), &sarah)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, forms.MsgInvalidImage)
	assert.Contains(t, body, "changed text", "submitted input is preserved")

	got, _ := env.store.GetPost(context.Background(), p.ID)
	assert.Equal(t, "text stays", got.Text)
	assert.Empty(t, got.Image)
	assert.Equal(t, 0, env.blobs.Len())

	_, body = env.get(t, postPath(p, "sarah"), nil)
	assert.NotContains(t, body, "<img")
}

func TestPostEdit_TruncatedImageRejected(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	p := env.post(t, sarah, "text stays")

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	cut := buf.Bytes()[:40]

	resp, body := env.postMultipart(t, postPath(p, "sarah")+"edit/", map[string]string{
		"text": "changed text",
	}, "photo.png", cut, &sarah)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, forms.MsgInvalidImage)

	got, _ := env.store.GetPost(context.Background(), p.ID)
	assert.Equal(t, "text stays", got.Text)
	assert.Empty(t, got.Image)
	assert.Equal(t, 0, env.blobs.Len())
}

func TestPostEdit_ReplacedImageIsRemoved(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	p := env.post(t, sarah, "picture post")
	editPath := postPath(p, "sarah") + "edit/"

	resp, _ := env.postMultipart(t, editPath, map[string]string{"text": "picture post"}, "one.png", pngBytes(t), &sarah)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	first, _ := env.store.GetPost(context.Background(), p.ID)
	require.NotEmpty(t, first.Image)

	resp, _ = env.postMultipart(t, editPath, map[string]string{"text": "picture post"}, "two.png", pngBytes(t), &sarah)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	second, _ := env.store.GetPost(context.Background(), p.ID)
	require.NotEqual(t, first.Image, second.Image)

	_, ok := env.blobs.Get(first.Image)
	assert.False(t, ok, "replaced image is deleted")
	_, ok = env.blobs.Get(second.Image)
	assert.True(t, ok)
	assert.Equal(t, 1, env.blobs.Len())

	resp, _ = env.postMultipart(t, editPath, map[string]string{"text": "picture post", "image-clear": "on"}, "", nil, &sarah)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, 0, env.blobs.Len(), "cleared image is deleted")
}

func TestPostEdit_FailedUpdateKeepsBlobs(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	p := env.post(t, sarah, "picture post")
	editPath := postPath(p, "sarah") + "edit/"

	resp, _ := env.postMultipart(t, editPath, map[string]string{"text": "picture post"}, "one.png", pngBytes(t), &sarah)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	before, _ := env.store.GetPost(context.Background(), p.ID)

	env.store.FailPostWrites = true
	resp, _ = env.postMultipart(t, editPath, map[string]string{"text": "picture post"}, "two.png", pngBytes(t), &sarah)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	_, ok := env.blobs.Get(before.Image)
	assert.True(t, ok, "current image survives a failed update")
	assert.Equal(t, 1, env.blobs.Len(), "the new upload is not left behind")
}

func TestPostCreate_FailedInsertRemovesImage(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	env.store.FailPostWrites = true

	resp, _ := env.postMultipart(t, "/new/", map[string]string{"text": "doomed"}, "a.png", pngBytes(t), &sarah)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 0, env.blobs.Len())
	assert.Equal(t, 0, env.store.PostCount())
}

//
// --- Cache ---
//

func TestIndex_CachedUntilCleared(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")

	resp, _ := env.get(t, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	resp, _ = env.postForm(t, "/new/", url.Values{"text": {"fresh off the press"}}, &sarah)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, body := env.get(t, "/", nil)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.NotContains(t, body, "fresh off the press")

	// other views are never cached
	_, body = env.get(t, "/sarah/", nil)
	assert.Contains(t, body, "fresh off the press")

	env.srv.ClearIndexCache()
	_, body = env.get(t, "/", nil)
	assert.Contains(t, body, "fresh off the press")
}

func TestIndex_CachedPageIsViewerIndependent(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")

	_, first := env.get(t, "/", &sarah)
	resp, second := env.get(t, "/", nil)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Equal(t, first, second)
	assert.NotContains(t, second, "Log out")
}

//
// --- Pagination ---
//

func TestIndex_Pagination(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	for i := 0; i < 12; i++ {
		env.post(t, sarah, "numbered post "+strconv.Itoa(i))
	}

	_, body := env.get(t, "/", nil)
	assert.Equal(t, 10, strings.Count(body, `class="post"`))
	_, body = env.get(t, "/?page=2", nil)
	assert.Equal(t, 2, strings.Count(body, `class="post"`))
	_, body = env.get(t, "/?page=99", nil)
	assert.Equal(t, 2, strings.Count(body, `class="post"`), "out of range clamps to the last page")
	_, body = env.get(t, "/?page=abc", nil)
	assert.Equal(t, 10, strings.Count(body, `class="post"`))

	_, body = env.get(t, "/sarah/", nil)
	assert.Equal(t, 3, strings.Count(body, `class="post"`))
	assert.Contains(t, body, "Posts: 12")
}

//
// --- Follow ---
//

func TestFollowFlow(t *testing.T) {
	env := setupTestServer(t)
	author := env.user(t, "author")
	follower := env.user(t, "follower")
	notFollower := env.user(t, "not_follower")
	env.post(t, author, "for my subscribers")

	resp, _ := env.postForm(t, "/author/follow/", nil, &follower)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/author/", resp.Header.Get("Location"))
	resp, _ = env.postForm(t, "/author/follow/", nil, &follower)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, 1, env.store.FollowCount(), "follow is idempotent")

	_, body := env.get(t, "/author/", &follower)
	assert.Contains(t, body, "Followers: 1")
	assert.Contains(t, body, "/author/unfollow/")

	_, body = env.get(t, "/follow/", &follower)
	assert.Contains(t, body, "for my subscribers")
	_, body = env.get(t, "/follow/", &notFollower)
	assert.NotContains(t, body, "for my subscribers")

	resp, _ = env.postForm(t, "/author/unfollow/", nil, &follower)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	_, body = env.get(t, "/author/", &follower)
	assert.Contains(t, body, "Followers: 0")

	resp, _ = env.postForm(t, "/author/unfollow/", nil, &follower)
	assert.Equal(t, http.StatusFound, resp.StatusCode, "unfollow is idempotent")
}

func TestFollow_SelfIsNoop(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")

	resp, _ := env.postForm(t, "/sarah/follow/", nil, &sarah)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, 0, env.store.FollowCount())

	_, body := env.get(t, "/sarah/", &sarah)
	assert.NotContains(t, body, "/sarah/follow/")
}

func TestFollow_RequiresLogin(t *testing.T) {
	env := setupTestServer(t)
	env.user(t, "author")

	resp, _ := env.postForm(t, "/author/follow/", nil, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login/?next=/author/follow/", resp.Header.Get("Location"))

	resp, _ = env.get(t, "/follow/", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login/?next=/follow/", resp.Header.Get("Location"))
}

//
// --- Comments ---
//

func TestDeletedUserSessionIsAnonymous(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	leo := env.user(t, "leo")
	p := env.post(t, leo, "leo writes")
	require.NoError(t, env.store.DeleteUser(context.Background(), sarah.ID))

	resp, _ := env.postForm(t, "/new/", url.Values{"text": {"ghost post"}}, &sarah)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login/?next=/new/", resp.Header.Get("Location"))

	resp, _ = env.postForm(t, postPath(p, "leo")+"comment/", url.Values{"text": {"ghost comment"}}, &sarah)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/auth/login/"))

	resp, _ = env.postForm(t, "/leo/follow/", nil, &sarah)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/auth/login/"))

	assert.Equal(t, 1, env.store.PostCount())
	assert.Equal(t, 0, env.store.CommentCount())
	assert.Equal(t, 0, env.store.FollowCount())
}

func TestComment_OnlyAuthenticated(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	leo := env.user(t, "leo")
	p := env.post(t, sarah, "comment on me")

	resp, _ := env.postForm(t, postPath(p, "sarah")+"comment/", url.Values{"text": {"anon says hi"}}, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, 0, env.store.CommentCount())

	resp, _ = env.postForm(t, postPath(p, "sarah")+"comment/", url.Values{"text": {"leo says hi"}}, &leo)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, postPath(p, "sarah"), resp.Header.Get("Location"))
	assert.Equal(t, 1, env.store.CommentCount())

	_, body := env.get(t, postPath(p, "sarah"), nil)
	assert.Contains(t, body, "leo says hi")

	comments, _ := env.store.ListComments(context.Background(), p.ID)
	require.Len(t, comments, 1)
	assert.Equal(t, leo.ID, comments[0].AuthorID)
}

func TestComment_EmptyTextRerenders(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	p := env.post(t, sarah, "comment on me")

	resp, body := env.postForm(t, postPath(p, "sarah")+"comment/", url.Values{"text": {" "}}, &sarah)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, forms.MsgRequired)
	assert.Equal(t, 0, env.store.CommentCount())
}

//
// --- Events ---
//

func TestWritesPublishEvents(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	leo := env.user(t, "leo")

	env.postForm(t, "/new/", url.Values{"text": {"evented"}}, &sarah)
	posts, _ := env.store.ListPosts(context.Background(), store.PostFilter{}, 1, 0)
	require.Len(t, posts, 1)
	env.postForm(t, postPath(posts[0], "sarah")+"comment/", url.Values{"text": {"nice"}}, &leo)
	env.postForm(t, "/sarah/follow/", nil, &leo)

	var types []appkafka.EventType
	for _, ev := range env.kafka.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []appkafka.EventType{appkafka.EventPostCreated, appkafka.EventCommentAdded, appkafka.EventFollow}, types)

	events := env.kafka.Events()
	assert.Equal(t, sarah.ID, events[1].TargetID)
	assert.Equal(t, leo.ID, events[1].ActorID)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	env := setupTestServer(t)
	env.kafka.ShouldFail = true
	sarah := env.user(t, "sarah")

	resp, _ := env.postForm(t, "/new/", url.Values{"text": {"still saved"}}, &sarah)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, 1, env.store.PostCount())
}

//
// --- Activity ---
//

func TestActivityPage(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	require.NoError(t, env.activity.Append(context.Background(), sarah.ID, activity.Entry{
		EventID: "e1", Type: "follow", Actor: "sarah", Target: "leo", Created: time.Now(),
	}))

	resp, body := env.get(t, "/sarah/activity/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "started following")

	resp, _ = env.get(t, "/nobody/activity/", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActivityPageDisabledWithoutStore(t *testing.T) {
	env := setupTestServer(t)
	env.srv.activity = nil
	env.user(t, "sarah")

	resp, _ := env.get(t, "/sarah/activity/", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

//
// --- Auth ---
//

func TestSignupLoginLogout(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := env.get(t, "/auth/signup/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.postForm(t, "/auth/signup/", url.Values{
		"username": {"newbie"}, "password1": {"pa55word"}, "password2": {"pa55word"}, "next": {"/new/"},
	}, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/new/", resp.Header.Get("Location"))
	require.NotEmpty(t, resp.Cookies())

	u, err := env.store.GetUserByUsername(context.Background(), "newbie")
	require.NoError(t, err)
	assert.NotEqual(t, "pa55word", u.PasswordHash)

	resp, body := env.postForm(t, "/auth/signup/", url.Values{
		"username": {"newbie"}, "password1": {"x"}, "password2": {"x"},
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, forms.MsgUsernameTaken)

	resp, body = env.postForm(t, "/auth/login/", url.Values{"username": {"newbie"}, "password": {"wrong"}}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, forms.MsgBadLogin)

	resp, _ = env.postForm(t, "/auth/login/", url.Values{
		"username": {"newbie"}, "password": {"pa55word"}, "next": {"https://evil.example/"},
	}, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	viewer, err := env.auth.Parse(session.Value)
	require.NoError(t, err)
	assert.Equal(t, u.ID, viewer.ID)

	resp, _ = env.postForm(t, "/auth/logout/", nil, viewer)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	require.NotEmpty(t, resp.Cookies())
	assert.True(t, resp.Cookies()[0].MaxAge < 0)
}

func TestSignup_ReservedUsername(t *testing.T) {
	env := setupTestServer(t)

	resp, body := env.postForm(t, "/auth/signup/", url.Values{
		"username": {"follow"}, "password1": {"pw"}, "password2": {"pw"},
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, forms.MsgReserved)
}

//
// --- Errors ---
//

func TestNotFoundPages(t *testing.T) {
	env := setupTestServer(t)
	sarah := env.user(t, "sarah")
	p := env.post(t, sarah, "exists")

	for _, path := range []string{
		"/no-such-user/",
		"/group/missing/",
		"/sarah/" + strconv.FormatInt(p.ID+100, 10) + "/",
		"/sarah/not-a-number/",
		"/sarah/1/2/3/",
	} {
		resp, body := env.get(t, path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Contains(t, body, "Page not found", path)
	}

	_, body := env.get(t, "/no-such-user/", nil)
	assert.Contains(t, body, "/no-such-user/")
}

func TestMissingTrailingSlashRedirects(t *testing.T) {
	env := setupTestServer(t)
	env.user(t, "sarah")

	resp, _ := env.get(t, "/sarah?page=2", nil)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/sarah/?page=2", resp.Header.Get("Location"))
}

func TestServerErrorPageHidesDetails(t *testing.T) {
	env := setupTestServer(t)
	env.store.ShouldFail = true

	resp, body := env.get(t, "/group/anything/", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "Server error")
	assert.NotContains(t, body, "mock")
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}
