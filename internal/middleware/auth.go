package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/yatube/internal/models"
	"example.com/yatube/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ViewerCtxKey = contextKey("viewer")

// SessionCookie holds the signed session token.
const SessionCookie = "session"

// LoginPath is where anonymous writers are sent.
const LoginPath = "/auth/login/"

// UserLookup resolves the account a token names.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
}

// Authenticator issues and verifies HS256 session tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	users  UserLookup
	// Secure marks the session cookie HTTPS-only.
	Secure bool
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// WithUsers makes Authenticate confirm that the account behind a token
// still exists. Tokens for deleted users then count as anonymous.
func (a *Authenticator) WithUsers(users UserLookup) *Authenticator {
	a.users = users
	return a
}

// Issue signs a token naming the user.
func (a *Authenticator) Issue(u models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  strconv.FormatInt(u.ID, 10),
		"username": u.Username,
		"exp":      time.Now().Add(a.ttl).Unix(),
	})
	return token.SignedString(a.secret)
}

// Parse verifies a token and returns the user it names.
func (a *Authenticator) Parse(tokenStr string) (*models.User, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	rawID, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("invalid user_id in token")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, errors.New("invalid user_id in token")
	}
	username, _ := claims["username"].(string)
	return &models.User{ID: id, Username: username}, nil
}

// SetSession signs a token for u and stores it in the session cookie.
func (a *Authenticator) SetSession(w http.ResponseWriter, u models.User) error {
	tokenStr, err := a.Issue(u)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    tokenStr,
		Path:     "/",
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (a *Authenticator) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Authenticate resolves the viewer from the session cookie or a Bearer
// header. Requests without a valid token continue anonymously.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			tokenStr = c.Value
		} else if parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			tokenStr = parts[1]
		}

		if tokenStr != "" {
			if u, err := a.Parse(tokenStr); err == nil {
				if u = a.resolve(r.Context(), u); u != nil {
					r = r.WithContext(WithViewer(r.Context(), u))
				} else {
					a.ClearSession(w)
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// resolve swaps the token's claims for the stored account. A lookup error
// other than not-found keeps the claims so the handler reports the failure.
func (a *Authenticator) resolve(ctx context.Context, claimed *models.User) *models.User {
	if a.users == nil {
		return claimed
	}
	u, err := a.users.GetUserByID(ctx, claimed.ID)
	switch {
	case err == nil:
		return &u
	case errors.Is(err, store.ErrNotFound):
		logg.Info("auth", "Session for missing user_id="+strconv.FormatInt(claimed.ID, 10)+" dropped")
		return nil
	default:
		logg.Error("auth", "User lookup failed", err)
		return claimed
	}
}

// WithViewer stores the authenticated user in ctx.
func WithViewer(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ViewerCtxKey, u)
}

// ViewerFromContext returns the authenticated user, or nil for anonymous requests.
func ViewerFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(ViewerCtxKey).(*models.User)
	return u
}

// RequireAuth redirects anonymous callers to the login page, remembering
// where they were going.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ViewerFromContext(r.Context()) == nil {
			http.Redirect(w, r, LoginURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginURL builds /auth/login/?next=<next>, leaving slashes readable.
func LoginURL(next string) string {
	return LoginPath + "?next=" + strings.ReplaceAll(url.QueryEscape(next), "%2F", "/")
}
