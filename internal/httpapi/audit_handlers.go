package httpapi

import (
	"net/http"
	"strings"

	"cambria.dev/dashboard/internal/audit"
	"cambria.dev/dashboard/internal/auth"
)

// auditResource is the standalone permission resource that unlocks log reads for non-admins.
const auditResource = "logs"

type appendAuditRequest struct {
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	ResourceID   string         `json:"resourceId"`
	ResourceName string         `json:"resourceName"`
	Details      map[string]any `json:"details"`
}

func (a *API) handleQueryAuditLogs(w http.ResponseWriter, r *http.Request) {
	allowed, err := a.canReadAuditLogs(r, sessionUser(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !allowed {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	entries, err := a.svc.Audit.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	result, err := audit.Query(entries, audit.ParseParams(r.URL.Query()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"logs":       result.Logs,
		"pagination": result.Pagination,
		"filters":    result.Filters,
	})
}

func (a *API) canReadAuditLogs(r *http.Request, user auth.User) (bool, error) {
	if user.Role == auth.RoleAdmin {
		return true, nil
	}
	perms, err := a.svc.RBAC.PermissionsByUser(r.Context(), user.ID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if strings.EqualFold(p.Resource, auditResource) && p.PermissionType.AtLeast(auth.LevelRead) {
			return true, nil
		}
	}
	return false, nil
}

func (a *API) handleAppendAuditLog(w http.ResponseWriter, r *http.Request) {
	var req appendAuditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Action) == "" || strings.TrimSpace(req.Resource) == "" {
		writeError(w, r, http.StatusBadRequest, "action and resource are required")
		return
	}
	user := sessionUser(r)
	entry, err := a.svc.Audit.Record(r.Context(), audit.Entry{
		UserID:       user.ID,
		UserName:     user.Name,
		UserEmail:    user.Email,
		Action:       req.Action,
		Resource:     req.Resource,
		ResourceID:   req.ResourceID,
		ResourceName: req.ResourceName,
		Details:      req.Details,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"log": entry})
}
