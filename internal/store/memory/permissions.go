package memory

import (
	"context"
	"sync"
	"time"

	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/ids"
)

// Permissions implements auth.PermissionStore. Listing keeps insertion order.
type Permissions struct {
	mu    sync.RWMutex
	perms []auth.Permission
	now   func() time.Time
}

var _ auth.PermissionStore = (*Permissions)(nil)

func NewPermissions() *Permissions {
	return &Permissions{now: time.Now}
}

func (s *Permissions) Add(_ context.Context, p auth.Permission) (auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if p.ID == "" {
		p.ID = ids.NewAt(now)
	}
	for _, existing := range s.perms {
		if existing.ID == p.ID {
			return auth.Permission{}, auth.ErrConflict
		}
	}
	p.CreatedAt, p.UpdatedAt = now, now
	s.perms = append(s.perms, p)
	return p, nil
}

func (s *Permissions) List(_ context.Context, f auth.PermissionFilter) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		if f.UserID != "" && p.UserID != f.UserID {
			continue
		}
		if f.Type != "" && p.PermissionType != f.Type {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Permissions) GetByID(_ context.Context, id string) (auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.perms {
		if p.ID == id {
			return p, nil
		}
	}
	return auth.Permission{}, auth.ErrNotFound
}

func (s *Permissions) Update(_ context.Context, id string, upd auth.PermissionUpdate) (auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.perms {
		if p.ID != id {
			continue
		}
		if upd.PermissionType != nil {
			p.PermissionType = *upd.PermissionType
		}
		if upd.Resource != nil {
			p.Resource = *upd.Resource
		}
		if upd.UserName != nil {
			p.UserName = *upd.UserName
		}
		if upd.ExpiresAt != nil {
			p.ExpiresAt = *upd.ExpiresAt
		}
		p.UpdatedAt = s.now().UTC()
		s.perms[i] = p
		return p, nil
	}
	return auth.Permission{}, auth.ErrNotFound
}

func (s *Permissions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.perms {
		if p.ID == id {
			s.perms = append(s.perms[:i], s.perms[i+1:]...)
			return nil
		}
	}
	return auth.ErrNotFound
}
