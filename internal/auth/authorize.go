package auth

import "strings"

// HasPermission decides whether user may act on resource (a client code) at level required.
// Admins pass every check; anyone else needs a grant for the resource at or above required.
// A missing grant is a denial, never an error.
func HasPermission(user User, resource string, required Level) bool {
	if user.Role == RoleAdmin {
		return true
	}
	grant, ok := user.Grant(resource)
	if !ok {
		return false
	}
	return grant.PermissionType.AtLeast(required)
}

// Coded is anything addressed by a client code.
type Coded interface {
	ClientCode() string
}

// FilterReadable returns the subset of items user may read. Admins get items unfiltered.
func FilterReadable[T Coded](user User, items []T) []T {
	if user.Role == RoleAdmin {
		return items
	}
	readable := make(map[string]struct{}, len(user.ClientPermissions))
	for _, cp := range user.ClientPermissions {
		if cp.PermissionType.AtLeast(LevelRead) {
			readable[strings.ToLower(cp.ClientCode)] = struct{}{}
		}
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if _, ok := readable[strings.ToLower(item.ClientCode())]; ok {
			out = append(out, item)
		}
	}
	return out
}
