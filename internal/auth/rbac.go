package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cambria.dev/dashboard/internal/obs"
)

// NewUser is the input for CreateUser.
type NewUser struct {
	Email             string
	Name              string
	Password          string
	Role              Role
	Status            Status
	ClientPermissions []ClientPermission
}

// UserChanges is the input for UpdateUser; nil fields are left unchanged.
type UserChanges struct {
	Email    *string
	Name     *string
	Role     *Role
	Status   *Status
	Password *string
}

// NewPermission is the input for CreatePermission.
type NewPermission struct {
	UserID         string
	UserName       string
	PermissionType Level
	Resource       string
	GrantedBy      string
	ExpiresAt      *time.Time
}

// PermissionChanges is the input for UpdatePermission.
type PermissionChanges struct {
	PermissionType *Level
	Resource       *string
	UserName       *string
	ExpiresAt      **time.Time
}

// RBACService manages users, their client grants and standalone permissions.
type RBACService struct {
	users UserStore
	perms PermissionStore
	now   func() time.Time
}

// RBACOption configures RBACService.
type RBACOption func(*RBACService)

// WithRBACClock overrides the time source used for grant timestamps.
func WithRBACClock(fn func() time.Time) RBACOption {
	return func(s *RBACService) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewRBACService(users UserStore, perms PermissionStore, opts ...RBACOption) (*RBACService, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if perms == nil {
		return nil, errors.New("permission store is required")
	}
	s := &RBACService{users: users, perms: perms, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authorize loads userID and resolves the permission check. Only the user fetch can fail.
func (s *RBACService) Authorize(ctx context.Context, userID, resource string, level Level) (bool, error) {
	user, err := s.users.GetByID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return false, err
	}
	ok := HasPermission(user, resource, level)
	obs.ObserveAuthz(ok)
	return ok, nil
}

func (s *RBACService) CreateUser(ctx context.Context, in NewUser, grantedBy string) (User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := validatePassword(in.Password); err != nil {
		return User{}, err
	}
	role := in.Role
	if role == "" {
		role = RoleBasic
	}
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: unsupported role %s", ErrInvalidInput, role)
	}
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		return User{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	grants, err := s.normalizeGrants(nil, in.ClientPermissions, grantedBy)
	if err != nil {
		return User{}, err
	}
	hash, salt, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	return s.users.Add(ctx, User{
		Email:             email,
		Name:              name,
		Role:              role,
		Status:            status,
		PasswordHash:      hash,
		PasswordSalt:      salt,
		ClientPermissions: grants,
	})
}

func (s *RBACService) ListUsers(ctx context.Context) ([]User, error) {
	return s.users.List(ctx)
}

func (s *RBACService) GetUser(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.users.GetByID(ctx, id)
}

func (s *RBACService) UpdateUser(ctx context.Context, id string, in UserChanges) (User, error) {
	current, err := s.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	var upd UserUpdate
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email == "" || !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return User{}, fmt.Errorf("%w: unsupported role %s", ErrInvalidInput, *in.Role)
		}
		upd.Role = in.Role
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return User{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, *in.Status)
		}
		upd.Status = in.Status
	}
	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return User{}, err
		}
		hash, salt, err := HashPassword(*in.Password)
		if err != nil {
			return User{}, err
		}
		upd.PasswordHash, upd.PasswordSalt = &hash, &salt
	}

	after := current
	if upd.Role != nil {
		after.Role = *upd.Role
	}
	if upd.Status != nil {
		after.Status = *upd.Status
	}
	if current.IsActiveAdmin() && !after.IsActiveAdmin() {
		if err := s.ensureOtherActiveAdmin(ctx, current.ID); err != nil {
			return User{}, err
		}
	}
	return s.users.Update(ctx, current.ID, upd)
}

// DeleteUser removes a user. Deleting the last active admin is rejected.
func (s *RBACService) DeleteUser(ctx context.Context, id string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user.IsActiveAdmin() {
		if err := s.ensureOtherActiveAdmin(ctx, user.ID); err != nil {
			return err
		}
	}
	return s.users.Delete(ctx, user.ID)
}

// SetClientPermission adds or replaces the grant for g.ClientCode on the user.
func (s *RBACService) SetClientPermission(ctx context.Context, userID string, g ClientPermission, grantedBy string) (User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	grants, err := s.normalizeGrants(user.ClientPermissions, []ClientPermission{g}, grantedBy)
	if err != nil {
		return User{}, err
	}
	return s.users.Update(ctx, user.ID, UserUpdate{ClientPermissions: &grants})
}

// ReplaceClientPermissions swaps the user's whole grant list. Duplicate codes keep the last entry.
func (s *RBACService) ReplaceClientPermissions(ctx context.Context, userID string, grants []ClientPermission, grantedBy string) (User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	normalized, err := s.normalizeGrants(nil, grants, grantedBy)
	if err != nil {
		return User{}, err
	}
	return s.users.Update(ctx, user.ID, UserUpdate{ClientPermissions: &normalized})
}

// RemoveClientPermission drops the grant for clientCode. Removing a missing grant is ErrNotFound.
func (s *RBACService) RemoveClientPermission(ctx context.Context, userID, clientCode string) (User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if _, ok := user.Grant(clientCode); !ok {
		return User{}, fmt.Errorf("%w: no permission for client %s", ErrNotFound, clientCode)
	}
	kept := make([]ClientPermission, 0, len(user.ClientPermissions))
	for _, cp := range user.ClientPermissions {
		if !strings.EqualFold(cp.ClientCode, clientCode) {
			kept = append(kept, cp)
		}
	}
	return s.users.Update(ctx, user.ID, UserUpdate{ClientPermissions: &kept})
}

func (s *RBACService) CreatePermission(ctx context.Context, in NewPermission) (Permission, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return Permission{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	resource := strings.TrimSpace(in.Resource)
	if resource == "" {
		return Permission{}, fmt.Errorf("%w: resource is required", ErrInvalidInput)
	}
	if !in.PermissionType.Valid() {
		return Permission{}, fmt.Errorf("%w: permissionType must be one of admin, read, write", ErrInvalidInput)
	}
	userName := strings.TrimSpace(in.UserName)
	if userName == "" {
		user, err := s.users.GetByID(ctx, userID)
		switch {
		case err == nil:
			userName = user.Name
		case errors.Is(err, ErrNotFound):
			// dangling user ids are allowed
		default:
			return Permission{}, err
		}
	}
	return s.perms.Add(ctx, Permission{
		UserID:         userID,
		UserName:       userName,
		PermissionType: in.PermissionType,
		Resource:       resource,
		GrantedBy:      strings.TrimSpace(in.GrantedBy),
		GrantedAt:      s.now().UTC(),
		ExpiresAt:      in.ExpiresAt,
	})
}

func (s *RBACService) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.perms.List(ctx, PermissionFilter{})
}

func (s *RBACService) PermissionsByUser(ctx context.Context, userID string) ([]Permission, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	return s.perms.List(ctx, PermissionFilter{UserID: userID})
}

func (s *RBACService) PermissionsByType(ctx context.Context, level Level) ([]Permission, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: permissionType must be one of admin, read, write", ErrInvalidInput)
	}
	return s.perms.List(ctx, PermissionFilter{Type: level})
}

func (s *RBACService) GetPermission(ctx context.Context, id string) (Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Permission{}, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	return s.perms.GetByID(ctx, id)
}

func (s *RBACService) UpdatePermission(ctx context.Context, id string, in PermissionChanges) (Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Permission{}, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	var upd PermissionUpdate
	if in.PermissionType != nil {
		if !in.PermissionType.Valid() {
			return Permission{}, fmt.Errorf("%w: permissionType must be one of admin, read, write", ErrInvalidInput)
		}
		upd.PermissionType = in.PermissionType
	}
	if in.Resource != nil {
		resource := strings.TrimSpace(*in.Resource)
		if resource == "" {
			return Permission{}, fmt.Errorf("%w: resource is required", ErrInvalidInput)
		}
		upd.Resource = &resource
	}
	if in.UserName != nil {
		name := strings.TrimSpace(*in.UserName)
		upd.UserName = &name
	}
	upd.ExpiresAt = in.ExpiresAt
	return s.perms.Update(ctx, id, upd)
}

func (s *RBACService) DeletePermission(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	return s.perms.Delete(ctx, id)
}

func (s *RBACService) ensureOtherActiveAdmin(ctx context.Context, excludeID string) error {
	users, err := s.users.List(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.ID != excludeID && u.IsActiveAdmin() {
			return nil
		}
	}
	return ErrLastAdmin
}

// normalizeGrants merges updates into existing, keyed case-insensitively by client code.
// A later entry for the same code replaces the earlier one in place.
func (s *RBACService) normalizeGrants(existing, updates []ClientPermission, grantedBy string) ([]ClientPermission, error) {
	out := make([]ClientPermission, 0, len(existing)+len(updates))
	index := make(map[string]int, len(existing)+len(updates))
	put := func(cp ClientPermission) {
		key := strings.ToLower(cp.ClientCode)
		if i, ok := index[key]; ok {
			out[i] = cp
			return
		}
		index[key] = len(out)
		out = append(out, cp)
	}
	for _, cp := range existing {
		put(cp)
	}
	now := s.now().UTC()
	for _, cp := range updates {
		cp.ClientCode = strings.TrimSpace(cp.ClientCode)
		if cp.ClientCode == "" {
			return nil, fmt.Errorf("%w: clientCode is required", ErrInvalidInput)
		}
		if !cp.PermissionType.Valid() {
			return nil, fmt.Errorf("%w: permissionType must be one of read, write, admin", ErrInvalidInput)
		}
		cp.ClientName = strings.TrimSpace(cp.ClientName)
		if cp.ClientName == "" {
			cp.ClientName = cp.ClientCode
		}
		if strings.TrimSpace(grantedBy) != "" {
			cp.GrantedBy = strings.TrimSpace(grantedBy)
		}
		cp.GrantedAt = now
		put(cp)
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
