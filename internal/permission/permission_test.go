package permission

import "testing"

func TestHasPermissionExactAndWildcard(t *testing.T) {
	cases := []struct {
		name  string
		perms string
		id    string
		want  bool
	}{
		{"exact match", `["minion.list"]`, "minion.list", true},
		{"no match", `["minion.list"]`, "job.list", false},
		{"star component", `["minion.*"]`, "minion.list", true},
		{"star exact", `["*.list"]`, "minion.list", true},
		{"dot-star matches all", `[".*"]`, "anything.here", true},
		{"grouped entry", `[{"@fleetward":["minion.list"]}]`, "minion.list", true},
		{"grouped entry no match", `[{"@fleetward":["minion.list"]}]`, "job.list", false},
		{"superadmin bypass", `["admin.superadmin"]`, "job.list", true},
		{"empty perms", `[]`, "minion.list", false},
		{"malformed json fails closed", `not-json`, "minion.list", false},
		{"malformed entry fails closed", `[123]`, "minion.list", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := HasPermission(tc.perms, tc.id)
			if got != tc.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tc.perms, tc.id, got, tc.want)
			}
		})
	}
}

func TestSuperAdminImpliesEverything(t *testing.T) {
	perms := `["admin.superadmin"]`
	if !HasPermission(perms, SuperAdmin) {
		t.Fatal("expected superadmin entry to grant itself")
	}
	for _, id := range []string{"minion.list", "job.run", "whatever.verb"} {
		if !HasPermission(perms, id) {
			t.Errorf("expected superadmin bypass to grant %q", id)
		}
	}
}

func TestStarMatchesSingleComponent(t *testing.T) {
	// "minion.*" has two components, same as "minion.list.extra" has three: no match.
	if HasPermission(`["minion.*"]`, "minion.list.extra") {
		t.Fatal("expected star to match exactly one component, not a suffix")
	}
	if !HasPermission(`["minion.*"]`, "minion.list") {
		t.Fatal("expected star to match one component")
	}
}
