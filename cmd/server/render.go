package server

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"example.com/yatube/internal/middleware"
	"example.com/yatube/internal/models"
	"example.com/yatube/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = []string{
	"index.html",
	"group.html",
	"profile.html",
	"follow.html",
	"post.html",
	"post_form.html",
	"login.html",
	"signup.html",
	"activity.html",
	"404.html",
	"500.html",
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("2 January 2006 15:04") },
	"selected": func(id int64, raw string) bool {
		return raw != "" && strconv.FormatInt(id, 10) == raw
	},
}

// page is the root object of every template.
type page struct {
	Viewer *models.User
	// Cacheable pages are shared between viewers and must not show who is signed in.
	Cacheable bool
	Path      string
	Data      any
}

func loadTemplates() (map[string]*template.Template, error) {
	out := make(map[string]*template.Template, len(pageTemplates))
	for _, name := range pageTemplates {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS,
			"templates/base.html", "templates/partials.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// render executes name into a buffer first so a template failure still
// produces a clean error response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	s.renderPage(w, status, name, page{
		Viewer: middleware.ViewerFromContext(r.Context()),
		Path:   r.URL.Path,
		Data:   data,
	})
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, p page) {
	t, ok := s.templates[name]
	if !ok {
		logg.Error("server", "Unknown template "+name, nil)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", p); err != nil {
		logg.Error("server", "Failed to render "+name, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusNotFound, "404.html", page{
		Viewer: middleware.ViewerFromContext(r.Context()),
		Path:   r.URL.Path,
	})
}

// serverError renders the generic error page; details only go to the log.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusInternalServerError, "500.html", page{Path: r.URL.Path})
}

// fail maps store.ErrNotFound to the 404 page and anything else to the 500 page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, module string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	logg.Error(module, "Request failed for "+r.Method+" "+r.URL.Path, err)
	s.serverError(w, r)
}

// notFoundHandler appends a missing trailing slash to GET requests before
// giving up with a 404.
func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	if r.Method == http.MethodGet && p != "" && p[len(p)-1] != '/' {
		target := p + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}
	s.notFound(w, r)
}
