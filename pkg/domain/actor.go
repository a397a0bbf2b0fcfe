// Package domain holds identity types shared across control-plane modules.
package domain

import (
	"fmt"
	"strings"
)

// Role is the trust level an external identity provider asserts for a caller.
type Role string

const (
	// RoleOwner sits outside the moderator set and implicitly holds every
	// capability, including the destructive ones.
	RoleOwner Role = "owner"
	// RoleModerator is bounded by the capability matrix.
	RoleModerator Role = "moderator"
	// RoleSystem is the escrow bot core signalling deal lifecycle events.
	RoleSystem Role = "system"
)

// ParseRole validates a role claim.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOwner, RoleModerator, RoleSystem:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Actor identifies who is performing an action. ID is opaque (the bot
// platform's user id for moderators, the issuer subject for owners).
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsOwner() bool  { return a.Role == RoleOwner }
func (a Actor) IsSystem() bool { return a.Role == RoleSystem }
func (a Actor) IsZero() bool   { return a.ID == "" }

func (a Actor) String() string {
	if a.IsZero() {
		return "anonymous"
	}
	return string(a.Role) + ":" + a.ID
}

// SystemActor is used for bootstrap writes that have no human caller.
var SystemActor = Actor{ID: "escrowops", Role: RoleSystem}

// AuditID is the actor id recorded in audit entries.
func (a Actor) AuditID() string {
	if a.IsZero() {
		return "anonymous"
	}
	return a.ID
}
