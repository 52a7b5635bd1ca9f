package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cambria.dev/dashboard/internal/audit"
	"cambria.dev/dashboard/internal/auth"
	"cambria.dev/dashboard/internal/clients"
)

// Dataset bundles every in-memory store.
type Dataset struct {
	Users       *Users
	Permissions *Permissions
	Audit       *AuditLog
	Clients     *Clients
}

// NewDataset returns empty stores.
func NewDataset() *Dataset {
	return &Dataset{
		Users:       NewUsers(),
		Permissions: NewPermissions(),
		Audit:       NewAuditLog(),
		Clients:     NewClients(),
	}
}

// MockSeed controls the fixed mock dataset.
type MockSeed struct {
	AdminEmail    string
	AdminPassword string
	Now           time.Time
}

// NewMockDataset returns the fixed dataset served when no database is
// configured: one admin, two basic users, three clients, sample permissions
// and audit history.
func NewMockDataset(seed MockSeed) (*Dataset, error) {
	if seed.AdminEmail == "" {
		return nil, errors.New("memory: admin email is required")
	}
	if seed.AdminPassword == "" {
		return nil, errors.New("memory: admin password is required")
	}
	now := seed.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ctx := context.Background()
	d := NewDataset()

	for _, c := range []clients.Client{
		{Code: "CAM", Name: "Cambria Holdings", Status: clients.StatusActive, CreatedAt: now, UpdatedAt: now},
		{Code: "BRT", Name: "Bright Retail", Status: clients.StatusActive, CreatedAt: now, UpdatedAt: now},
		{Code: "OAK", Name: "Oakline Logistics", Status: clients.StatusInactive, CreatedAt: now, UpdatedAt: now},
	} {
		d.Clients.clients[lowerCode(c.Code)] = c
	}

	hash, salt, err := auth.HashPassword(seed.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	users := []auth.User{
		{
			ID: "usr_admin", Email: seed.AdminEmail, Name: "Dashboard Admin",
			Role: auth.RoleAdmin, Status: auth.StatusActive,
			PasswordHash: hash, PasswordSalt: salt,
		},
		{
			ID: "usr_analyst", Email: "analyst@cambria.local", Name: "Avery Analyst",
			Role: auth.RoleBasic, Status: auth.StatusActive,
			ClientPermissions: []auth.ClientPermission{
				{ClientCode: "CAM", ClientName: "Cambria Holdings", PermissionType: auth.LevelWrite, GrantedBy: "usr_admin", GrantedAt: now},
				{ClientCode: "BRT", ClientName: "Bright Retail", PermissionType: auth.LevelRead, GrantedBy: "usr_admin", GrantedAt: now},
			},
		},
		{
			ID: "usr_viewer", Email: "viewer@cambria.local", Name: "Val Viewer",
			Role: auth.RoleBasic, Status: auth.StatusInactive,
			ClientPermissions: []auth.ClientPermission{
				{ClientCode: "OAK", ClientName: "Oakline Logistics", PermissionType: auth.LevelRead, GrantedBy: "usr_admin", GrantedAt: now},
			},
		},
	}
	for _, u := range users {
		u.CreatedAt = now
		if _, err := d.Users.Add(ctx, u); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}

	for _, p := range []auth.Permission{
		{ID: "perm_reports", UserID: "usr_analyst", UserName: "Avery Analyst", PermissionType: auth.LevelRead, Resource: "reports", GrantedBy: "usr_admin", GrantedAt: now},
		{ID: "perm_uploads", UserID: "usr_analyst", UserName: "Avery Analyst", PermissionType: auth.LevelWrite, Resource: "uploads", GrantedBy: "usr_admin", GrantedAt: now},
	} {
		if _, err := d.Permissions.Add(ctx, p); err != nil {
			return nil, fmt.Errorf("seed permission %s: %w", p.ID, err)
		}
	}

	for i, e := range []audit.Entry{
		{UserID: "usr_admin", UserName: "Dashboard Admin", UserEmail: seed.AdminEmail, Action: "LOGIN", Resource: "auth"},
		{UserID: "usr_admin", UserName: "Dashboard Admin", UserEmail: seed.AdminEmail, Action: "CREATE", Resource: "users", ResourceID: "usr_analyst", ResourceName: "Avery Analyst"},
		{UserID: "usr_analyst", UserName: "Avery Analyst", UserEmail: "analyst@cambria.local", Action: "UPDATE", Resource: "clients", ResourceID: "CAM", ResourceName: "Cambria Holdings"},
	} {
		at := now.Add(time.Duration(i-3) * time.Hour)
		e.ID = fmt.Sprintf("log_%d", i+1)
		e.Details = map[string]any{}
		e.Timestamp = at.Format(audit.TimestampLayout)
		e.CreatedAt, e.UpdatedAt = at, at
		if _, err := d.Audit.Append(ctx, e); err != nil {
			return nil, err
		}
	}
	return d, nil
}
