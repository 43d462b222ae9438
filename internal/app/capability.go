package app

import (
	"context"
	"log"

	"campus-sync-service/internal/domain"
)

// RoleLookup fetches the role record for an identity.
type RoleLookup func(ctx context.Context, id string) (domain.RoleRecord, error)

// Capabilities is the frozen permission set derived from a role at resolution
// time. It is computed once per identity transition; a role record changed
// mid-session is not picked up until the next sign-in.
type Capabilities struct {
	Role domain.Role
}

// CanTeach reports whether the role may author courses, quizzes, and
// announcements.
func (c Capabilities) CanTeach() bool {
	return c.Role == domain.RoleInstructor || c.Role == domain.RoleAdmin
}

// CanManageUsers reports whether the role may edit other users' records.
func (c Capabilities) CanManageUsers() bool {
	return c.Role == domain.RoleAdmin
}

// ResolveCapabilities turns an identity plus a role lookup into capabilities.
// A failed lookup or an unknown role value degrades to student rather than
// failing the session.
func ResolveCapabilities(ctx context.Context, lookup RoleLookup, identity domain.Identity) Capabilities {
	record, err := lookup(ctx, identity.ID)
	if err != nil {
		log.Printf("role lookup for %s failed, defaulting to student: %v", identity.ID, err)
		return Capabilities{Role: domain.RoleStudent}
	}
	return Capabilities{Role: domain.NormalizeRole(record.Role)}
}
