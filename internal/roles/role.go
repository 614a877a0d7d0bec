// Package roles resolves what a portal role may do. Everything here is pure:
// no I/O and no shared mutable state.
package roles

import (
	"errors"
	"fmt"
	"strings"
)

// Role is one of the fixed portal roles.
type Role string

const (
	PortalMember Role = "portal_member"
	Investor     Role = "investor"
	Admin        Role = "admin"
	SuperAdmin   Role = "super_admin"
)

// ErrUnknownRole is returned by Parse for values outside the role set.
var ErrUnknownRole = errors.New("roles: unknown role")

// hierarchy is ordered from least to most privileged.
var hierarchy = []Role{PortalMember, Investor, Admin, SuperAdmin}

// All returns every role, least privileged first.
func All() []Role {
	out := make([]Role, len(hierarchy))
	copy(out, hierarchy)
	return out
}

// Names returns the role values as strings, least privileged first.
func Names() []string {
	out := make([]string, len(hierarchy))
	for i, r := range hierarchy {
		out[i] = string(r)
	}
	return out
}

// Parse converts a stored role value into a Role.
func Parse(raw string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return r, nil
}

// Valid reports whether r belongs to the role set.
func (r Role) Valid() bool {
	return Default.Level(r) >= 0
}

func (r Role) String() string {
	return string(r)
}
