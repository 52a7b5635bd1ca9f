package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type fakeUserStore struct {
	mu     sync.Mutex
	users  map[string]User
	seq    int
	listFn func() ([]User, error)
}

func newFakeUserStore(users ...User) *fakeUserStore {
	s := &fakeUserStore{users: map[string]User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *fakeUserStore) List(context.Context) ([]User, error) {
	if s.listFn != nil {
		return s.listFn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeUserStore) Add(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return User{}, ErrConflict
		}
	}
	s.seq++
	u.ID = fmt.Sprintf("user-%d", s.seq)
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeUserStore) Update(_ context.Context, id string, upd UserUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if upd.Email != nil {
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
		u.ClientPermissions = *upd.ClientPermissions
	}
	if upd.LastLoginAt != nil {
		t := *upd.LastLoginAt
		u.LastLoginAt = &t
	}
	s.users[id] = u
	return u, nil
}

func (s *fakeUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

type fakePermissionStore struct {
	perms []Permission
}

func (s *fakePermissionStore) Add(_ context.Context, p Permission) (Permission, error) {
	p.ID = fmt.Sprintf("perm-%d", len(s.perms)+1)
	s.perms = append(s.perms, p)
	return p, nil
}

func (s *fakePermissionStore) List(_ context.Context, f PermissionFilter) ([]Permission, error) {
	var out []Permission
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

func (s *fakePermissionStore) GetByID(_ context.Context, id string) (Permission, error) {
	for _, p := range s.perms {
		if p.ID == id {
			return p, nil
		}
	}
	return Permission{}, ErrNotFound
}

func (s *fakePermissionStore) Update(_ context.Context, id string, upd PermissionUpdate) (Permission, error) {
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
		s.perms[i] = p
		return p, nil
	}
	return Permission{}, ErrNotFound
}

func (s *fakePermissionStore) Delete(_ context.Context, id string) error {
	for i, p := range s.perms {
		if p.ID == id {
			s.perms = append(s.perms[:i], s.perms[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

type fakeLedger struct {
	entries map[string][2]string
}

func newFakeLedger() *fakeLedger { return &fakeLedger{entries: map[string][2]string{}} }

func (l *fakeLedger) Store(_ context.Context, email, code, userID string) error {
	l.entries[email] = [2]string{code, userID}
	return nil
}

func (l *fakeLedger) Redeem(_ context.Context, email, code string) (string, bool, error) {
	e, ok := l.entries[email]
	if !ok || e[0] != code {
		return "", false, nil
	}
	delete(l.entries, email)
	return e[1], true, nil
}

type fakeMailer struct {
	to, name, code string
	err            error
}

func (m *fakeMailer) SendResetCode(_ context.Context, to, name, code string) error {
	m.to, m.name, m.code = to, name, code
	return m.err
}
