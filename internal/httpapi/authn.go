package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"cambria.dev/dashboard/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withSession resolves the session token to an active user and stores it in the context.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := a.sessionToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="cambria"`)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		user, err := a.svc.Auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="cambria", error="invalid_token"`)
				writeError(w, r, http.StatusUnauthorized, "invalid session")
				return
			}
			handleServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}

// RequireAdmin rejects callers whose role is not admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="cambria"`)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if user.Role != auth.RoleAdmin {
			writeError(w, r, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionToken reads the bearer token, falling back to the session cookie.
func (a *API) sessionToken(r *http.Request) (string, bool) {
	if h := r.Header.Get(authHeader); h != "" {
		token, err := extractBearerToken(h)
		return token, err == nil
	}
	c, err := r.Cookie(a.settings.CookieName)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return "", false
	}
	return c.Value, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
