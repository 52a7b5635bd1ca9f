package auth

import (
	"strings"
	"time"
)

// Role is the global role of a dashboard user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleBasic Role = "basic"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleBasic
}

// Status is the lifecycle state of a user account.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// ClientPermission grants a user access to one client's resources.
type ClientPermission struct {
	ClientCode     string     `json:"clientCode"`
	ClientName     string     `json:"clientName"`
	PermissionType Level      `json:"permissionType"`
	GrantedBy      string     `json:"grantedBy"`
	GrantedAt      time.Time  `json:"grantedAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// User is a dashboard account with its embedded client grants.
type User struct {
	ID                string             `json:"id"`
	Email             string             `json:"email"`
	Name              string             `json:"name"`
	Role              Role               `json:"role"`
	Status            Status             `json:"status"`
	PasswordHash      string             `json:"-"`
	PasswordSalt      string             `json:"-"`
	ClientPermissions []ClientPermission `json:"clientPermissions"`
	LastLoginAt       *time.Time         `json:"lastLoginAt,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// IsActiveAdmin reports whether u counts towards the last-admin invariant.
func (u User) IsActiveAdmin() bool {
	return u.Role == RoleAdmin && u.Status == StatusActive
}

// Grant returns the client permission matching code case-insensitively.
func (u User) Grant(code string) (ClientPermission, bool) {
	for _, cp := range u.ClientPermissions {
		if strings.EqualFold(cp.ClientCode, code) {
			return cp, true
		}
	}
	return ClientPermission{}, false
}

// Permission is a standalone resource grant, independent of client grants.
type Permission struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	UserName       string     `json:"userName"`
	PermissionType Level      `json:"permissionType"`
	Resource       string     `json:"resource"`
	GrantedBy      string     `json:"grantedBy"`
	GrantedAt      time.Time  `json:"grantedAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UserUpdate carries a partial user mutation; nil fields are left unchanged.
type UserUpdate struct {
	Email             *string
	Name              *string
	Role              *Role
	Status            *Status
	PasswordHash      *string
	PasswordSalt      *string
	ClientPermissions *[]ClientPermission
	LastLoginAt       *time.Time
}

// PermissionUpdate carries a partial standalone permission mutation.
type PermissionUpdate struct {
	PermissionType *Level
	Resource       *string
	UserName       *string
	ExpiresAt      **time.Time
}

// PermissionFilter narrows a permission listing. Empty fields match everything.
type PermissionFilter struct {
	UserID string
	Type   Level
}
