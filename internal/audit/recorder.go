package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"cambria.dev/dashboard/internal/ids"
	"cambria.dev/dashboard/internal/obs"
)

// TimestampLayout is the millisecond UTC form entries are stamped with.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Recorder stamps entries and appends them to a Store.
type Recorder struct {
	store Store
	now   func() time.Time
}

// RecorderOption configures Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

func NewRecorder(store Store, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record validates e, fills id and timestamps, appends it and writes an audit log line.
func (r *Recorder) Record(ctx context.Context, e Entry) (Entry, error) {
	e.Action = strings.TrimSpace(e.Action)
	e.Resource = strings.TrimSpace(e.Resource)
	if e.Action == "" || e.Resource == "" {
		return Entry{}, errors.New("audit: action and resource are required")
	}
	now := r.now().UTC()
	if e.ID == "" {
		e.ID = ids.NewAt(now)
	}
	if e.Timestamp == "" {
		e.Timestamp = now.Format(TimestampLayout)
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.CreatedAt, e.UpdatedAt = now, now

	saved, err := r.store.Append(ctx, e)
	if err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}

	fields := []zap.Field{
		zap.String("type", "audit"),
		zap.String("id", saved.ID),
		zap.String("action", saved.Action),
		zap.String("resource", saved.Resource),
		zap.String("resource_id", saved.ResourceID),
		zap.String("user_id", saved.UserID),
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	if len(saved.Details) > 0 {
		fields = append(fields, zap.Any("details", saved.Details))
	}
	obs.Logger().Info("audit", fields...)
	return saved, nil
}

// List returns every stored entry.
func (r *Recorder) List(ctx context.Context) ([]Entry, error) {
	return r.store.List(ctx)
}
