// Package memory holds in-process stores. They back tests and the mock dataset
// served when no database is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/ids"
)

// Users implements auth.UserStore.
type Users struct {
	mu    sync.RWMutex
	users map[string]auth.User
	now   func() time.Time
}

var _ auth.UserStore = (*Users)(nil)

func NewUsers() *Users {
	return &Users{users: make(map[string]auth.User), now: time.Now}
}

func (s *Users) GetByID(_ context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

// List returns users ordered by email.
func (s *Users) List(context.Context) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Users) Add(_ context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.User{}, auth.ErrConflict
		}
	}
	now := s.now().UTC()
	if u.ID == "" {
		u.ID = ids.NewAt(now)
	} else if _, dup := s.users[u.ID]; dup {
		return auth.User{}, auth.ErrConflict
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.ClientPermissions == nil {
		u.ClientPermissions = []auth.ClientPermission{}
	}
	s.users[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

func (s *Users) Update(_ context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	if upd.Email != nil {
		for otherID, other := range s.users {
			if otherID != id && strings.EqualFold(other.Email, *upd.Email) {
				return auth.User{}, auth.ErrConflict
			}
		}
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.PasswordSalt != nil {
		u.PasswordSalt = *upd.PasswordSalt
	}
	if upd.ClientPermissions != nil {
		u.ClientPermissions = append([]auth.ClientPermission{}, (*upd.ClientPermissions)...)
	}
	if upd.LastLoginAt != nil {
		t := *upd.LastLoginAt
		u.LastLoginAt = &t
	}
	u.UpdatedAt = s.now().UTC()
	s.users[id] = u
	return cloneUser(u), nil
}

func (s *Users) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func cloneUser(u auth.User) auth.User {
	u.ClientPermissions = append([]auth.ClientPermission{}, u.ClientPermissions...)
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		u.LastLoginAt = &t
	}
	return u
}
