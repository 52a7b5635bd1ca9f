package httpapi

import (
	"errors"
	"net/http"
	"time"

	"cambria.dev/dashboard/internal/audit"
	"cambria.dev/dashboard/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

const forgotPasswordMessage = "If an account exists for this email, a reset code has been sent."

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.svc.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	a.setSessionCookie(w, session.Token, session.ExpiresAt)
	a.recordEntry(r, audit.Entry{
		UserID:     session.User.ID,
		UserName:   session.User.Name,
		UserEmail:  session.User.Email,
		Action:     "LOGIN",
		Resource:   "auth",
		ResourceID: session.User.ID,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	writeSuccess(w, http.StatusOK, map[string]any{
		"user":      session.User,
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := a.sessionToken(r); ok {
		if user, err := a.svc.Auth.Authenticate(r.Context(), token); err == nil {
			a.recordEntry(r, audit.Entry{
				UserID:     user.ID,
				UserName:   user.Name,
				UserEmail:  user.Email,
				Action:     "LOGOUT",
				Resource:   "auth",
				ResourceID: user.ID,
				IPAddress:  clientIP(r),
				UserAgent:  r.UserAgent(),
			})
		}
	}
	a.clearSessionCookie(w)
	writeSuccess(w, http.StatusOK, nil)
}

// handleSession never says why a session is rejected.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	denied := map[string]any{"authenticated": false, "user": nil}
	token, ok := a.sessionToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, denied)
		return
	}
	user, err := a.svc.Auth.Authenticate(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, denied)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": user})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Auth.ForgotPassword(r.Context(), req.Email); err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "a valid email is required")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": forgotPasswordMessage})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.svc.Auth.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCode):
		writeError(w, r, http.StatusBadRequest, "invalid or expired reset code")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	default:
		handleServiceError(w, r, err)
		return
	}
	a.recordEntry(r, audit.Entry{
		UserEmail: req.Email,
		Action:    "PASSWORD_RESET",
		Resource:  "auth",
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Password has been reset."})
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.settings.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   a.settings.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.settings.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.settings.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
