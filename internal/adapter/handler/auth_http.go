package handler

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/library-circulation/internal/core/domain"
)

const sessionCookie = "session_user"

var publicPaths = map[string]bool{
	"/health":      true,
	"/login":       true,
	"/api/login":   true,
	"/favicon.ico": true,
}

type loginHTTPRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionUserJSON struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type loginHTTPResponse struct {
	OK   bool            `json:"ok"`
	User sessionUserJSON `json:"user"`
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginHTTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(h.auth.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginHTTPResponse{
		OK:   true,
		User: sessionUserJSON{ID: session.Librarian, Email: session.Email, Name: session.Name},
	})
}

func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if err := h.auth.Logout(r.Context(), c.Value); err != nil {
			h.log.Warn("logout failed", zap.Error(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// session resolves the request's cookie. A store failure counts as no session
// so the gate fails closed.
func (h *HTTPHandler) session(r *http.Request) (domain.Session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return domain.Session{}, false
	}

	session, err := h.auth.Authenticate(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			h.log.Error("session lookup failed", zap.Error(err))
		}
		return domain.Session{}, false
	}
	return session, true
}

// gate lets public paths through and requires a session everywhere else. API
// callers get 401; page requests are sent to the login page.
func (h *HTTPHandler) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if publicPaths[path] {
			if path == "/login" {
				if _, ok := h.session(r); ok {
					http.Redirect(w, r, "/dashboard", http.StatusFound)
					return
				}
			}
			next.ServeHTTP(w, r)
			return
		}

		session, ok := h.session(r)
		if !ok {
			if strings.HasPrefix(path, "/api/") {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
	})
}
