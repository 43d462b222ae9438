package app_test

import (
	"context"
	"errors"
	"testing"

	"campus-sync-service/internal/app"
	"campus-sync-service/internal/domain"
)

func TestCapabilityMonotonicity(t *testing.T) {
	cases := []struct {
		role      string
		canTeach  bool
		canManage bool
	}{
		{"student", false, false},
		{"instructor", true, false},
		{"admin", true, true},
	}
	for _, tc := range cases {
		caps := resolveWithRole(t, tc.role)
		if caps.CanTeach() != tc.canTeach {
			t.Fatalf("role %s: CanTeach=%v, want %v", tc.role, caps.CanTeach(), tc.canTeach)
		}
		if caps.CanManageUsers() != tc.canManage {
			t.Fatalf("role %s: CanManageUsers=%v, want %v", tc.role, caps.CanManageUsers(), tc.canManage)
		}
	}
}

func TestAdminRoleRecordGrantsManagement(t *testing.T) {
	// Capability comes from the role record alone, not from any email list.
	lookup := func(context.Context, string) (domain.RoleRecord, error) {
		return domain.RoleRecord{ID: "u1", Role: "admin"}, nil
	}
	caps := app.ResolveCapabilities(context.Background(), lookup, domain.Identity{ID: "u1", Email: "nobody@example.com"})
	if !caps.CanManageUsers() {
		t.Fatalf("expected admin role record to grant management")
	}
}

func TestUnknownRoleDefaultsToStudent(t *testing.T) {
	caps := resolveWithRole(t, "superuser")
	if caps.Role != domain.RoleStudent {
		t.Fatalf("expected student for unknown role, got %s", caps.Role)
	}
}

func TestLookupFailureDegradesToStudent(t *testing.T) {
	lookup := func(context.Context, string) (domain.RoleRecord, error) {
		return domain.RoleRecord{}, errors.New("network down")
	}
	caps := app.ResolveCapabilities(context.Background(), lookup, domain.Identity{ID: "u1"})
	if caps.Role != domain.RoleStudent {
		t.Fatalf("expected least-privilege fallback, got %s", caps.Role)
	}
	if caps.CanTeach() || caps.CanManageUsers() {
		t.Fatalf("expected no elevated capabilities after lookup failure")
	}
}

func resolveWithRole(t *testing.T, role string) app.Capabilities {
	t.Helper()
	lookup := func(context.Context, string) (domain.RoleRecord, error) {
		return domain.RoleRecord{ID: "u1", Role: role}, nil
	}
	return app.ResolveCapabilities(context.Background(), lookup, domain.Identity{ID: "u1"})
}
