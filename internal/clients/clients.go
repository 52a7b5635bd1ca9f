// Package clients manages the tenants users are granted access to.
package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/obs"
)

// Status is the lifecycle state of a client.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Client is a tenant of the dashboard.
type Client struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	SheetID   string    `json:"sheetId,omitempty"`
	FolderID  string    `json:"folderId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ClientCode lets clients be filtered by auth.FilterReadable.
func (c Client) ClientCode() string { return c.Code }

// Update carries a partial client mutation; nil fields are left unchanged.
type Update struct {
	Name     *string `json:"name,omitempty"`
	Status   *Status `json:"status,omitempty"`
	SheetID  *string `json:"sheetId,omitempty"`
	FolderID *string `json:"folderId,omitempty"`
}

// Store persists clients. GetByCode matches case-insensitively and returns auth.ErrNotFound when absent.
type Store interface {
	List(ctx context.Context) ([]Client, error)
	GetByCode(ctx context.Context, code string) (Client, error)
	Update(ctx context.Context, code string, upd Update) (Client, error)
}

// Service applies the permission resolver to client reads and writes.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("client store is required")
	}
	return &Service{store: store}, nil
}

// List returns the clients user can read.
func (s *Service) List(ctx context.Context, user auth.User) ([]Client, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return auth.FilterReadable(user, all), nil
}

// Get returns a client when user holds at least read on it. A denial does not
// reveal whether the client exists.
func (s *Service) Get(ctx context.Context, user auth.User, code string) (Client, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Client{}, fmt.Errorf("%w: client code is required", auth.ErrInvalidInput)
	}
	if err := authorize(user, code, auth.LevelRead); err != nil {
		return Client{}, err
	}
	return s.store.GetByCode(ctx, code)
}

// Update changes a client when user holds at least write on it.
func (s *Service) Update(ctx context.Context, user auth.User, code string, upd Update) (Client, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Client{}, fmt.Errorf("%w: client code is required", auth.ErrInvalidInput)
	}
	if err := authorize(user, code, auth.LevelWrite); err != nil {
		return Client{}, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Client{}, fmt.Errorf("%w: name must not be empty", auth.ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return Client{}, fmt.Errorf("%w: unsupported status %s", auth.ErrInvalidInput, *upd.Status)
	}
	return s.store.Update(ctx, code, upd)
}

// Authorize checks user against code at level and counts the decision.
func Authorize(user auth.User, code string, level auth.Level) error {
	return authorize(user, code, level)
}

func authorize(user auth.User, code string, level auth.Level) error {
	ok := auth.HasPermission(user, code, level)
	obs.ObserveAuthz(ok)
	if !ok {
		return auth.ErrForbidden
	}
	return nil
}
