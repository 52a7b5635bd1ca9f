package memory

import (
	"context"
	"sync"

	"cambria.dev/dashboard/internal/audit"
)

// AuditLog implements audit.Store as an append-only slice.
type AuditLog struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

var _ audit.Store = (*AuditLog)(nil)

func NewAuditLog() *AuditLog {
	return &AuditLog{entries: []audit.Entry{}}
}

func (s *AuditLog) Append(_ context.Context, e audit.Entry) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *AuditLog) List(context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries...), nil
}
