package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"cambria.dev/dashboard/internal/audit"
	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/obs"
	"cambria.dev/dashboard/internal/sheets"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeSuccess merges payload into a {"success": true} envelope.
func writeSuccess(w http.ResponseWriter, code int, payload map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, code, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleServiceError maps domain errors to statuses. Anything unrecognized is a
// collaborator failure: it is logged and answered with a generic 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, sheets.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrLastAdmin):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, sheets.ErrExtractionFailed):
		writeError(w, r, http.StatusUnprocessableEntity, "could not read any rows from the sheet")
	default:
		obs.Logger().Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// record appends an audit entry for the session user. Failures are logged and
// never fail the request that already succeeded.
func (a *API) record(r *http.Request, action, resource, resourceID, resourceName string, details map[string]any) {
	e := audit.Entry{
		Action:       action,
		Resource:     resource,
		ResourceID:   resourceID,
		ResourceName: resourceName,
		Details:      details,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if u, ok := auth.UserFromContext(r.Context()); ok {
		e.UserID, e.UserName, e.UserEmail = u.ID, u.Name, u.Email
	}
	a.recordEntry(r, e)
}

func (a *API) recordEntry(r *http.Request, e audit.Entry) {
	if _, err := a.svc.Audit.Record(r.Context(), e); err != nil {
		obs.Logger().Warn("audit record failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("action", e.Action),
			zap.Error(err),
		)
	}
}
