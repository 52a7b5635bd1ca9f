package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cambria.dev/dashboard/internal/obs"
)

func newTestRBAC(t *testing.T, users ...User) (*RBACService, *fakeUserStore, *fakePermissionStore) {
	t.Helper()
	us := newFakeUserStore(users...)
	ps := &fakePermissionStore{}
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	svc, err := NewRBACService(us, ps, WithRBACClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewRBACService: %v", err)
	}
	return svc, us, ps
}

func adminUser(id string) User {
	return User{ID: id, Email: id + "@cambria.test", Name: id, Role: RoleAdmin, Status: StatusActive}
}

func TestCreateUserValidatesAndHashes(t *testing.T) {
	svc, _, _ := newTestRBAC(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, NewUser{Email: "bad", Name: "x", Password: "longenough"}, "admin"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid email error, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, NewUser{Email: "a@b.com", Name: "x", Password: "short"}, "admin"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected short password error, got %v", err)
	}

	user, err := svc.CreateUser(ctx, NewUser{
		Email:    "  Jane@Cambria.TEST ",
		Name:     " Jane ",
		Password: "correct horse",
		ClientPermissions: []ClientPermission{
			{ClientCode: "CAM", PermissionType: LevelRead},
			{ClientCode: "cam", PermissionType: LevelWrite},
		},
	}, "admin-1")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "jane@cambria.test" || user.Name != "Jane" {
		t.Fatalf("expected normalized identity, got %q %q", user.Email, user.Name)
	}
	if user.Role != RoleBasic || user.Status != StatusActive {
		t.Fatalf("unexpected defaults: %s %s", user.Role, user.Status)
	}
	if len(user.ClientPermissions) != 1 || user.ClientPermissions[0].PermissionType != LevelWrite {
		t.Fatalf("expected last write to win, got %+v", user.ClientPermissions)
	}
	if user.ClientPermissions[0].GrantedBy != "admin-1" {
		t.Fatalf("expected grantedBy to be recorded, got %+v", user.ClientPermissions[0])
	}
	if !VerifyPassword(user.PasswordHash, user.PasswordSalt, "correct horse") {
		t.Fatalf("stored hash does not verify")
	}
}

func TestDeleteLastAdminRejected(t *testing.T) {
	svc, us, _ := newTestRBAC(t, adminUser("a1"), User{ID: "b1", Role: RoleBasic, Status: StatusActive})
	ctx := context.Background()

	if err := svc.DeleteUser(ctx, "a1"); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
	if err := svc.DeleteUser(ctx, "b1"); err != nil {
		t.Fatalf("delete basic user: %v", err)
	}

	us.users["a2"] = adminUser("a2")
	if err := svc.DeleteUser(ctx, "a1"); err != nil {
		t.Fatalf("delete admin with another admin present: %v", err)
	}
}

func TestInactiveAdminDoesNotCount(t *testing.T) {
	inactive := adminUser("a2")
	inactive.Status = StatusInactive
	svc, _, _ := newTestRBAC(t, adminUser("a1"), inactive)

	if err := svc.DeleteUser(context.Background(), "a1"); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
	if err := svc.DeleteUser(context.Background(), "a2"); err != nil {
		t.Fatalf("inactive admin should be deletable: %v", err)
	}
}

func TestDemotingLastAdminRejected(t *testing.T) {
	svc, _, _ := newTestRBAC(t, adminUser("a1"))
	basic := RoleBasic
	if _, err := svc.UpdateUser(context.Background(), "a1", UserChanges{Role: &basic}); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
	inactive := StatusInactive
	if _, err := svc.UpdateUser(context.Background(), "a1", UserChanges{Status: &inactive}); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
	name := "Renamed"
	if _, err := svc.UpdateUser(context.Background(), "a1", UserChanges{Name: &name}); err != nil {
		t.Fatalf("rename should pass: %v", err)
	}
}

func TestClientPermissionUpsertAndRemove(t *testing.T) {
	svc, _, _ := newTestRBAC(t, User{ID: "u1", Role: RoleBasic, Status: StatusActive})
	ctx := context.Background()

	user, err := svc.SetClientPermission(ctx, "u1", ClientPermission{ClientCode: "CAM", ClientName: "Cambria", PermissionType: LevelRead}, "a1")
	if err != nil {
		t.Fatalf("SetClientPermission: %v", err)
	}
	user, err = svc.SetClientPermission(ctx, "u1", ClientPermission{ClientCode: "cam", PermissionType: LevelAdmin}, "a1")
	if err != nil {
		t.Fatalf("SetClientPermission: %v", err)
	}
	if len(user.ClientPermissions) != 1 || user.ClientPermissions[0].PermissionType != LevelAdmin {
		t.Fatalf("expected single upgraded grant, got %+v", user.ClientPermissions)
	}
	if _, err := svc.SetClientPermission(ctx, "u1", ClientPermission{ClientCode: "X", PermissionType: Level("owner")}, "a1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid level error, got %v", err)
	}

	user, err = svc.RemoveClientPermission(ctx, "u1", "CAM")
	if err != nil {
		t.Fatalf("RemoveClientPermission: %v", err)
	}
	if len(user.ClientPermissions) != 0 {
		t.Fatalf("expected grant removed, got %+v", user.ClientPermissions)
	}
	if _, err := svc.RemoveClientPermission(ctx, "u1", "CAM"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func authzCount(t *testing.T, result string) float64 {
	t.Helper()
	obs.Init()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "cambria_authz_decisions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestAuthorizePropagatesOnlyFetchErrors(t *testing.T) {
	svc, _, _ := newTestRBAC(t, User{ID: "u1", Role: RoleBasic, ClientPermissions: []ClientPermission{{ClientCode: "CAM", PermissionType: LevelWrite}}})
	ctx := context.Background()
	allowBefore, denyBefore := authzCount(t, "allow"), authzCount(t, "deny")

	ok, err := svc.Authorize(ctx, "u1", "cam", LevelWrite)
	if err != nil || !ok {
		t.Fatalf("expected allow, got %v %v", ok, err)
	}
	ok, err = svc.Authorize(ctx, "u1", "other", LevelRead)
	if err != nil || ok {
		t.Fatalf("expected plain denial, got %v %v", ok, err)
	}
	if _, err := svc.Authorize(ctx, "missing", "CAM", LevelRead); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if got := authzCount(t, "allow") - allowBefore; got != 1 {
		t.Fatalf("expected one counted allow, got %v", got)
	}
	if got := authzCount(t, "deny") - denyBefore; got != 1 {
		t.Fatalf("expected one counted deny, got %v", got)
	}
}

func TestStandalonePermissionCRUD(t *testing.T) {
	svc, _, _ := newTestRBAC(t, User{ID: "u1", Name: "Jane"})
	ctx := context.Background()

	p, err := svc.CreatePermission(ctx, NewPermission{UserID: "u1", PermissionType: LevelRead, Resource: "logs", GrantedBy: "a1"})
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	if p.UserName != "Jane" {
		t.Fatalf("expected user name resolved, got %q", p.UserName)
	}
	if p.GrantedAt.IsZero() {
		t.Fatalf("expected grantedAt set")
	}

	dangling, err := svc.CreatePermission(ctx, NewPermission{UserID: "ghost", PermissionType: LevelAdmin, Resource: "clients"})
	if err != nil {
		t.Fatalf("missing user must be tolerated: %v", err)
	}
	if dangling.UserName != "" {
		t.Fatalf("unexpected user name %q", dangling.UserName)
	}

	if _, err := svc.CreatePermission(ctx, NewPermission{UserID: "u1", PermissionType: Level("owner"), Resource: "logs"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid type error, got %v", err)
	}
	if _, err := svc.CreatePermission(ctx, NewPermission{UserID: "u1", PermissionType: LevelRead}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected missing resource error, got %v", err)
	}

	byUser, _ := svc.PermissionsByUser(ctx, "u1")
	byType, _ := svc.PermissionsByType(ctx, LevelAdmin)
	if len(byUser) != 1 || len(byType) != 1 || byType[0].UserID != "ghost" {
		t.Fatalf("unexpected filtered listings: %+v %+v", byUser, byType)
	}

	write := LevelWrite
	updated, err := svc.UpdatePermission(ctx, p.ID, PermissionChanges{PermissionType: &write})
	if err != nil || updated.PermissionType != LevelWrite {
		t.Fatalf("UpdatePermission: %+v %v", updated, err)
	}
	if err := svc.DeletePermission(ctx, p.ID); err != nil {
		t.Fatalf("DeletePermission: %v", err)
	}
	if _, err := svc.GetPermission(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
