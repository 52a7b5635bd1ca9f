package auth

import "testing"

func basicUser(grants ...ClientPermission) User {
	return User{ID: "u1", Email: "user@example.com", Role: RoleBasic, Status: StatusActive, ClientPermissions: grants}
}

func grant(code string, level Level) ClientPermission {
	return ClientPermission{ClientCode: code, ClientName: code + " Inc", PermissionType: level}
}

func TestAdminBypassesEveryCheck(t *testing.T) {
	admin := User{ID: "a1", Role: RoleAdmin}
	for _, resource := range []string{"CAM", "unknown", ""} {
		for _, level := range []Level{LevelRead, LevelWrite, LevelAdmin, Level("bogus")} {
			if !HasPermission(admin, resource, level) {
				t.Fatalf("admin denied %s/%s", resource, level)
			}
		}
	}
}

func TestMissingGrantDenies(t *testing.T) {
	user := basicUser(grant("CAM", LevelAdmin))
	if HasPermission(user, "OTHER", LevelRead) {
		t.Fatalf("expected denial without grant")
	}
	if HasPermission(basicUser(), "CAM", LevelRead) {
		t.Fatalf("expected denial for user with no grants")
	}
}

func TestWriteGrantHierarchy(t *testing.T) {
	user := basicUser(grant("CAM", LevelWrite))
	if !HasPermission(user, "CAM", LevelRead) {
		t.Fatalf("write should imply read")
	}
	if !HasPermission(user, "CAM", LevelWrite) {
		t.Fatalf("write should satisfy write")
	}
	if HasPermission(user, "CAM", LevelAdmin) {
		t.Fatalf("write must not satisfy admin")
	}
}

func TestClientCodeMatchIsCaseInsensitive(t *testing.T) {
	user := basicUser(grant("CAM", LevelRead))
	if !HasPermission(user, "cam", LevelRead) {
		t.Fatalf("expected case-insensitive match")
	}
}

func TestUnknownGrantLevelNeverSatisfies(t *testing.T) {
	user := basicUser(grant("CAM", Level("owner")))
	if HasPermission(user, "CAM", LevelRead) {
		t.Fatalf("unknown grant level must deny")
	}
}

func TestLevelOrdering(t *testing.T) {
	cases := []struct {
		have, need Level
		want       bool
	}{
		{LevelRead, LevelRead, true},
		{LevelRead, LevelWrite, false},
		{LevelWrite, LevelRead, true},
		{LevelAdmin, LevelWrite, true},
		{LevelAdmin, Level(""), false},
	}
	for _, tc := range cases {
		if got := tc.have.AtLeast(tc.need); got != tc.want {
			t.Fatalf("%s.AtLeast(%s)=%v, want %v", tc.have, tc.need, got, tc.want)
		}
	}
	if _, err := ParseLevel(" WRITE "); err != nil {
		t.Fatalf("ParseLevel: %v", err)
	}
	if _, err := ParseLevel("owner"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

type testClient struct{ code string }

func (c testClient) ClientCode() string { return c.code }

func TestFilterReadable(t *testing.T) {
	all := []testClient{{"CAM"}, {"BRX"}, {"ZED"}}

	admin := User{Role: RoleAdmin}
	if got := FilterReadable(admin, all); len(got) != 3 {
		t.Fatalf("admin should see all clients, got %v", got)
	}

	user := basicUser(grant("cam", LevelRead), grant("ZED", LevelWrite), grant("BRX", Level("none")))
	got := FilterReadable(user, all)
	if len(got) != 2 || got[0].code != "CAM" || got[1].code != "ZED" {
		t.Fatalf("unexpected filtered clients: %v", got)
	}
}
