package server

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"example.com/yatube/internal/activity"
	"example.com/yatube/internal/blob"
	appkafka "example.com/yatube/internal/broker"
	"example.com/yatube/internal/feed"
	"example.com/yatube/internal/logger"
	"example.com/yatube/internal/middleware"
	"example.com/yatube/internal/pagecache"
	"example.com/yatube/internal/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// IndexCachePrefix namespaces cached global feed pages.
const IndexCachePrefix = "index_page"

// Deps are the collaborators a Server is built from.
type Deps struct {
	Store  store.StoreInterface
	Events appkafka.KafkaWriter
	Blobs  blob.Store
	Cache  pagecache.Store
	// Activity is optional; without it the activity page is a 404.
	Activity activity.StoreInterface
	Auth     *middleware.Authenticator

	IndexCacheTTL  time.Duration
	MaxUploadBytes int64
	// MediaRoot, when set, is served under /media/.
	MediaRoot string
}

type Server struct {
	store     store.StoreInterface
	feed      *feed.Service
	events    appkafka.KafkaWriter
	blobs     blob.Store
	cache     pagecache.Store
	activity  activity.StoreInterface
	auth      *middleware.Authenticator
	templates map[string]*template.Template

	indexTTL  time.Duration
	maxUpload int64
	mediaRoot string
}

var logg = logger.New()

func New(d Deps) (*Server, error) {
	if d.Store == nil || d.Blobs == nil || d.Auth == nil {
		return nil, errors.New("server: store, blobs and auth are required")
	}
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	if d.Events == nil {
		d.Events = appkafka.NopWriter{}
	}
	if d.Cache == nil {
		d.Cache = pagecache.NewMemoryStore()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	if d.IndexCacheTTL <= 0 {
		d.IndexCacheTTL = 20 * time.Second
	}
	return &Server{
		store:     d.Store,
		feed:      feed.NewService(d.Store, d.Blobs.URL),
		events:    d.Events,
		blobs:     d.Blobs,
		cache:     d.Cache,
		activity:  d.Activity,
		auth:      d.Auth,
		templates: tmpl,
		indexTTL:  d.IndexCacheTTL,
		maxUpload: d.MaxUploadBytes,
		mediaRoot: d.MediaRoot,
	}, nil
}

// Routes wires every page. Static segments take precedence over
// {username}, which is why reserved usernames cannot be registered.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Recoverer(s.serverError))
	r.Use(s.auth.Authenticate)

	r.NotFound(s.notFoundHandler)

	r.With(pagecache.Middleware(s.cache, IndexCachePrefix, s.indexTTL)).Get("/", s.indexHandler)
	r.Get("/group/{slug}/", s.groupHandler)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login/", s.loginHandler)
		r.Post("/login/", s.loginHandler)
		r.Get("/signup/", s.signupHandler)
		r.Post("/signup/", s.signupHandler)
		r.Post("/logout/", s.logoutHandler)
	})

	if s.mediaRoot != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(s.mediaRoot))))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/new/", s.newPostHandler)
		r.Post("/new/", s.newPostHandler)
		r.Get("/follow/", s.followIndexHandler)
		r.Post("/{username}/follow/", s.followHandler)
		r.Post("/{username}/unfollow/", s.unfollowHandler)
		r.Post("/{username}/{post_id}/comment/", s.addCommentHandler)
	})

	r.Get("/{username}/", s.profileHandler)
	r.Get("/{username}/activity/", s.activityHandler)
	r.Get("/{username}/{post_id}/", s.postViewHandler)
	r.Get("/{username}/{post_id}/edit/", s.postEditHandler)
	r.Post("/{username}/{post_id}/edit/", s.postEditHandler)

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func Run(ctx context.Context, s *Server, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second, // prevent slowloris attacks
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		logg.Info("server", "Starting HTTP server on "+addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}

// ClearIndexCache drops every cached global feed page.
func (s *Server) ClearIndexCache() {
	s.cache.Clear()
}

func (s *Server) publish(ev appkafka.Event) {
	if err := appkafka.Publish(s.events, ev); err != nil {
		logg.Error("http/events", "Failed to publish "+string(ev.Type)+" event", err)
	}
}
