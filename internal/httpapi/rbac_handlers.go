package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cambria.dev/dashboard/internal/auth"
)

type createUserRequest struct {
	Email             string                  `json:"email"`
	Name              string                  `json:"name"`
	Password          string                  `json:"password"`
	Role              auth.Role               `json:"role"`
	Status            auth.Status             `json:"status"`
	ClientPermissions []auth.ClientPermission `json:"clientPermissions"`
}

type updateUserRequest struct {
	Email             *string                  `json:"email"`
	Name              *string                  `json:"name"`
	Password          *string                  `json:"password"`
	Role              *auth.Role               `json:"role"`
	Status            *auth.Status             `json:"status"`
	ClientPermissions *[]auth.ClientPermission `json:"clientPermissions"`
}

type clientPermissionRequest struct {
	ClientCode     string     `json:"clientCode"`
	ClientName     string     `json:"clientName"`
	PermissionType auth.Level `json:"permissionType"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

type createPermissionRequest struct {
	UserID         string     `json:"userId"`
	UserName       string     `json:"userName"`
	PermissionType auth.Level `json:"permissionType"`
	Resource       string     `json:"resource"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// expiresAt stays raw so an explicit null can clear the expiry.
type updatePermissionRequest struct {
	PermissionType *auth.Level     `json:"permissionType"`
	Resource       *string         `json:"resource"`
	UserName       *string         `json:"userName"`
	ExpiresAt      json.RawMessage `json:"expiresAt"`
}

func sessionUser(r *http.Request) auth.User {
	u, _ := auth.UserFromContext(r.Context())
	return u
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.svc.RBAC.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor := sessionUser(r)
	user, err := a.svc.RBAC.CreateUser(r.Context(), auth.NewUser{
		Email:             req.Email,
		Name:              req.Name,
		Password:          req.Password,
		Role:              req.Role,
		Status:            req.Status,
		ClientPermissions: req.ClientPermissions,
	}, actor.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r, "CREATE_USER", "users", user.ID, user.Name, map[string]any{
		"email": user.Email,
		"role":  string(user.Role),
	})
	w.Header().Set("Location", fmt.Sprintf("/api/users/%s", user.ID))
	writeSuccess(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.RBAC.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	user, err := a.svc.RBAC.UpdateUser(r.Context(), id, auth.UserChanges{
		Email:    req.Email,
		Name:     req.Name,
		Role:     req.Role,
		Status:   req.Status,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if req.ClientPermissions != nil {
		user, err = a.svc.RBAC.ReplaceClientPermissions(r.Context(), user.ID, *req.ClientPermissions, sessionUser(r).ID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
	}
	a.record(r, "UPDATE_USER", "users", user.ID, user.Name, map[string]any{
		"fields": changedUserFields(req),
	})
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

func changedUserFields(req updateUserRequest) []string {
	fields := []string{}
	if req.Email != nil {
		fields = append(fields, "email")
	}
	if req.Name != nil {
		fields = append(fields, "name")
	}
	if req.Password != nil {
		fields = append(fields, "password")
	}
	if req.Role != nil {
		fields = append(fields, "role")
	}
	if req.Status != nil {
		fields = append(fields, "status")
	}
	if req.ClientPermissions != nil {
		fields = append(fields, "clientPermissions")
	}
	return fields
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == sessionUser(r).ID {
		writeError(w, r, http.StatusBadRequest, "you cannot delete your own account")
		return
	}
	if err := a.svc.RBAC.DeleteUser(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r, "DELETE_USER", "users", id, "", nil)
	writeSuccess(w, http.StatusOK, map[string]any{"message": "User deleted"})
}

func (a *API) handleSetClientPermission(w http.ResponseWriter, r *http.Request) {
	var req clientPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.RBAC.SetClientPermission(r.Context(), chi.URLParam(r, "id"), auth.ClientPermission{
		ClientCode:     req.ClientCode,
		ClientName:     req.ClientName,
		PermissionType: req.PermissionType,
		ExpiresAt:      req.ExpiresAt,
	}, sessionUser(r).ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r, "GRANT_CLIENT_PERMISSION", "users", user.ID, user.Name, map[string]any{
		"clientCode":     req.ClientCode,
		"permissionType": string(req.PermissionType),
	})
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleRemoveClientPermission(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "clientCode")
	user, err := a.svc.RBAC.RemoveClientPermission(r.Context(), chi.URLParam(r, "id"), code)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r, "REVOKE_CLIENT_PERMISSION", "users", user.ID, user.Name, map[string]any{
		"clientCode": code,
	})
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	rawType := strings.TrimSpace(q.Get("type"))

	var (
		level auth.Level
		err   error
	)
	if rawType != "" {
		if level, err = auth.ParseLevel(rawType); err != nil {
			handleServiceError(w, r, err)
			return
		}
	}

	var perms []auth.Permission
	switch {
	case userID != "":
		perms, err = a.svc.RBAC.PermissionsByUser(r.Context(), userID)
	case level != "":
		perms, err = a.svc.RBAC.PermissionsByType(r.Context(), level)
	default:
		perms, err = a.svc.RBAC.ListPermissions(r.Context())
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if userID != "" && level != "" {
		filtered := perms[:0]
		for _, p := range perms {
			if p.PermissionType == level {
				filtered = append(filtered, p)
			}
		}
		perms = filtered
	}
	writeSuccess(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (a *API) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := a.svc.RBAC.CreatePermission(r.Context(), auth.NewPermission{
		UserID:         req.UserID,
		UserName:       req.UserName,
		PermissionType: req.PermissionType,
		Resource:       req.Resource,
		GrantedBy:      sessionUser(r).ID,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r, "CREATE_PERMISSION", "permissions", perm.ID, perm.Resource, map[string]any{
		"userId":         perm.UserID,
		"permissionType": string(perm.PermissionType),
	})
	w.Header().Set("Location", fmt.Sprintf("/api/permissions/%s", perm.ID))
	writeSuccess(w, http.StatusCreated, map[string]any{"permission": perm})
}

func (a *API) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := a.svc.RBAC.GetPermission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"permission": perm})
}

func (a *API) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	changes := auth.PermissionChanges{
		PermissionType: req.PermissionType,
		Resource:       req.Resource,
		UserName:       req.UserName,
	}
	if len(req.ExpiresAt) > 0 {
		var expires *time.Time
		if !bytes.Equal(bytes.TrimSpace(req.ExpiresAt), []byte("null")) {
			var t time.Time
			if err := json.Unmarshal(req.ExpiresAt, &t); err != nil {
				writeError(w, r, http.StatusBadRequest, "expiresAt must be an RFC 3339 timestamp or null")
				return
			}
			expires = &t
		}
		changes.ExpiresAt = &expires
	}
	perm, err := a.svc.RBAC.UpdatePermission(r.Context(), chi.URLParam(r, "id"), changes)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r, "UPDATE_PERMISSION", "permissions", perm.ID, perm.Resource, nil)
	writeSuccess(w, http.StatusOK, map[string]any{"permission": perm})
}

func (a *API) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.svc.RBAC.DeletePermission(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r, "DELETE_PERMISSION", "permissions", id, "", nil)
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Permission deleted"})
}
