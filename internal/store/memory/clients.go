package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/clients"
)

// Clients implements clients.Store.
type Clients struct {
	mu      sync.RWMutex
	clients map[string]clients.Client
	now     func() time.Time
}

var _ clients.Store = (*Clients)(nil)

func NewClients(seed ...clients.Client) *Clients {
	s := &Clients{clients: make(map[string]clients.Client, len(seed)), now: time.Now}
	for _, c := range seed {
		s.clients[lowerCode(c.Code)] = c
	}
	return s
}

// List returns clients ordered by code.
func (s *Clients) List(context.Context) ([]clients.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]clients.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Clients) GetByCode(_ context.Context, code string) (clients.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[lowerCode(code)]
	if !ok {
		return clients.Client{}, auth.ErrNotFound
	}
	return c, nil
}

func (s *Clients) Update(_ context.Context, code string, upd clients.Update) (clients.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := lowerCode(code)
	c, ok := s.clients[key]
	if !ok {
		return clients.Client{}, auth.ErrNotFound
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.SheetID != nil {
		c.SheetID = *upd.SheetID
	}
	if upd.FolderID != nil {
		c.FolderID = *upd.FolderID
	}
	c.UpdatedAt = s.now().UTC()
	s.clients[key] = c
	return c, nil
}

func lowerCode(code string) string { return strings.ToLower(code) }
