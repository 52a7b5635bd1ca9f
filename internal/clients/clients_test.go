package clients

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cambria.dev/dashboard/internal/auth"
)

type mapStore struct {
	clients []Client
}

func (m *mapStore) List(context.Context) ([]Client, error) {
	return append([]Client(nil), m.clients...), nil
}

func (m *mapStore) GetByCode(_ context.Context, code string) (Client, error) {
	for _, c := range m.clients {
		if strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return Client{}, auth.ErrNotFound
}

func (m *mapStore) Update(_ context.Context, code string, upd Update) (Client, error) {
	for i, c := range m.clients {
		if !strings.EqualFold(c.Code, code) {
			continue
		}
		if upd.Name != nil {
			c.Name = *upd.Name
		}
		if upd.Status != nil {
			c.Status = *upd.Status
		}
		m.clients[i] = c
		return c, nil
	}
	return Client{}, auth.ErrNotFound
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(&mapStore{clients: []Client{
		{Code: "CAM", Name: "Cambria", Status: StatusActive},
		{Code: "BRT", Name: "Bright", Status: StatusActive},
		{Code: "OAK", Name: "Oakline", Status: StatusInactive},
	}})
	require.NoError(t, err)
	return svc
}

func TestListFiltersByGrant(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	basic := auth.User{Role: auth.RoleBasic, ClientPermissions: []auth.ClientPermission{
		{ClientCode: "cam", PermissionType: auth.LevelRead},
		{ClientCode: "OAK", PermissionType: auth.Level("owner")},
	}}
	got, err := svc.List(ctx, basic)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CAM", got[0].Code)

	all, err := svc.List(ctx, auth.User{Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetAndUpdateRequireLevels(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	reader := auth.User{Role: auth.RoleBasic, ClientPermissions: []auth.ClientPermission{
		{ClientCode: "CAM", PermissionType: auth.LevelRead},
		{ClientCode: "BRT", PermissionType: auth.LevelWrite},
	}}

	c, err := svc.Get(ctx, reader, "cam")
	require.NoError(t, err)
	assert.Equal(t, "Cambria", c.Name)

	_, err = svc.Get(ctx, reader, "NOPE")
	assert.ErrorIs(t, err, auth.ErrForbidden, "denial must not reveal existence")

	name := "Cambria Ltd"
	_, err = svc.Update(ctx, reader, "CAM", Update{Name: &name})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	updated, err := svc.Update(ctx, reader, "BRT", Update{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Cambria Ltd", updated.Name)

	bad := Status("archived")
	_, err = svc.Update(ctx, reader, "BRT", Update{Status: &bad})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}
