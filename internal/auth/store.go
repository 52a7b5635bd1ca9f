package auth

import "context"

// UserStore persists dashboard users. Implementations return ErrNotFound for
// unknown ids/emails and ErrConflict for duplicate emails.
type UserStore interface {
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	Add(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, id string, upd UserUpdate) (User, error)
	Delete(ctx context.Context, id string) error
}

// PermissionStore persists standalone resource permissions.
type PermissionStore interface {
	Add(ctx context.Context, perm Permission) (Permission, error)
	List(ctx context.Context, filter PermissionFilter) ([]Permission, error)
	GetByID(ctx context.Context, id string) (Permission, error)
	Update(ctx context.Context, id string, upd PermissionUpdate) (Permission, error)
	Delete(ctx context.Context, id string) error
}
