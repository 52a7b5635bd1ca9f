// Package uploads stores files uploaded for a client.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/clients"
	"cambria.dev/dashboard/internal/ids"
)

// MaxSize bounds a single upload.
const MaxSize = 25 << 20

// Upload describes a stored file.
type Upload struct {
	Key         string    `json:"key"`
	ClientCode  string    `json:"clientCode"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploadedBy,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Object is a stored blob as reported by a Storage listing.
type Object struct {
	Key          string
	Size         int64
	ContentType  string
	UploadedBy   string
	LastModified time.Time
}

// Storage is a flat object store.
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, meta map[string]string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Service authorizes and names uploads before handing them to Storage.
type Service struct {
	store Storage
	now   func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store Storage, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("upload storage is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func prefixFor(clientCode string) string {
	return "clients/" + strings.ToLower(clientCode) + "/"
}

// Put stores body for clientCode. The user needs write on the client.
func (s *Service) Put(ctx context.Context, user auth.User, clientCode, fileName, contentType string, body io.Reader, size int64) (Upload, error) {
	clientCode = strings.TrimSpace(clientCode)
	if clientCode == "" {
		return Upload{}, fmt.Errorf("%w: client code is required", auth.ErrInvalidInput)
	}
	if err := clients.Authorize(user, clientCode, auth.LevelWrite); err != nil {
		return Upload{}, err
	}
	name := sanitizeName(fileName)
	if name == "" {
		return Upload{}, fmt.Errorf("%w: file name is required", auth.ErrInvalidInput)
	}
	if size <= 0 || size > MaxSize {
		return Upload{}, fmt.Errorf("%w: file size must be between 1 byte and %d bytes", auth.ErrInvalidInput, MaxSize)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	now := s.now().UTC()
	up := Upload{
		Key:         prefixFor(clientCode) + ids.NewAt(now) + "-" + name,
		ClientCode:  clientCode,
		FileName:    name,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  user.ID,
		UploadedAt:  now,
	}
	meta := map[string]string{"uploaded-by": user.ID, "file-name": name}
	if err := s.store.Put(ctx, up.Key, body, size, contentType, meta); err != nil {
		return Upload{}, fmt.Errorf("store upload: %w", err)
	}
	return up, nil
}

// List returns the client's uploads, newest first. The user needs read on the client.
func (s *Service) List(ctx context.Context, user auth.User, clientCode string) ([]Upload, error) {
	clientCode = strings.TrimSpace(clientCode)
	if clientCode == "" {
		return nil, fmt.Errorf("%w: client code is required", auth.ErrInvalidInput)
	}
	if err := clients.Authorize(user, clientCode, auth.LevelRead); err != nil {
		return nil, err
	}
	prefix := prefixFor(clientCode)
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	out := make([]Upload, 0, len(objects))
	for _, o := range objects {
		out = append(out, fromObject(clientCode, prefix, o))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, nil
}

func fromObject(clientCode, prefix string, o Object) Upload {
	up := Upload{
		Key:         o.Key,
		ClientCode:  clientCode,
		FileName:    strings.TrimPrefix(o.Key, prefix),
		ContentType: o.ContentType,
		Size:        o.Size,
		UploadedBy:  o.UploadedBy,
		UploadedAt:  o.LastModified,
	}
	// keys are <ulid>-<name>
	if id, name, ok := strings.Cut(up.FileName, "-"); ok {
		up.FileName = name
		if t, ok := ids.Time(id); ok {
			up.UploadedAt = t
		}
	}
	return up
}

func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
}
