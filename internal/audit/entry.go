// Package audit records dashboard activity and answers filtered, paginated
// queries over the recorded entries.
package audit

import (
	"context"
	"errors"
	"time"
)

// ErrNoCollection is returned when the upstream store hands back no collection at all.
var ErrNoCollection = errors.New("audit: log collection unavailable")

// Entry is one append-only audit record.
type Entry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	UserName     string         `json:"userName"`
	UserEmail    string         `json:"userEmail"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	ResourceID   string         `json:"resourceId"`
	ResourceName string         `json:"resourceName"`
	Details      map[string]any `json:"details"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Timestamp    string         `json:"timestamp"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Store persists audit entries. List returns entries in insertion order.
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
