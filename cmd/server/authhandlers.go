package server

import (
	"errors"
	"net/http"

	"example.com/yatube/internal/forms"
	"example.com/yatube/internal/models"
	"example.com/yatube/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// --- Sessions ---

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "login.html", &forms.LoginForm{Next: r.URL.Query().Get("next"), Errors: forms.Errors{}})
		return
	}

	form, err := forms.ParseLoginForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !form.Validate() {
		s.render(w, r, http.StatusOK, "login.html", form)
		return
	}

	u, err := s.store.GetUserByUsername(r.Context(), form.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.fail(w, r, "http/auth", err)
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(form.Password)) != nil {
		logg.Info("http/auth", "Failed login attempt (username anonymized)")
		form.Errors.Add("__all__", forms.MsgBadLogin)
		s.render(w, r, http.StatusOK, "login.html", form)
		return
	}

	s.startSession(w, r, u, form.Next)
}

func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "signup.html", &forms.SignupForm{Next: r.URL.Query().Get("next"), Errors: forms.Errors{}})
		return
	}

	form, err := forms.ParseSignupForm(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !form.Validate() {
		s.render(w, r, http.StatusOK, "signup.html", form)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		s.fail(w, r, "http/auth", err)
		return
	}
	u, err := s.store.CreateUser(r.Context(), form.Username, string(hash))
	if errors.Is(err, store.ErrConflict) {
		form.Errors.Add("username", forms.MsgUsernameTaken)
		s.render(w, r, http.StatusOK, "signup.html", form)
		return
	}
	if err != nil {
		s.fail(w, r, "http/auth", err)
		return
	}

	logg.Info("http/auth", "User signed up (username anonymized)")
	s.startSession(w, r, u, form.Next)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u models.User, next string) {
	if err := s.auth.SetSession(w, u); err != nil {
		s.fail(w, r, "http/auth", err)
		return
	}
	http.Redirect(w, r, forms.SafeNext(next, "/"), http.StatusFound)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.auth.ClearSession(w)
	http.Redirect(w, r, "/", http.StatusFound)
}
