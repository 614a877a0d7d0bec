package rbac

import "github.com/dspops/portal/internal/roles"

// Check is an authorization predicate over the caller's roles.
type Check func(r *roles.Resolver, held []roles.Role) bool

// AnyRole passes when the caller holds one of allowed.
func AnyRole(allowed ...roles.Role) Check {
	return func(r *roles.Resolver, held []roles.Role) bool {
		return r.HasAnyRole(held, allowed)
	}
}

// MinimumRole passes when the caller ranks at or above minimum.
func MinimumRole(minimum roles.Role) Check {
	return func(r *roles.Resolver, held []roles.Role) bool {
		return r.HasMinimumRole(held, minimum)
	}
}

// Capability passes when the caller holds required.
func Capability(required roles.Capability) Check {
	return func(r *roles.Resolver, held []roles.Role) bool {
		return r.HasCapability(held, required)
	}
}

// All passes when every check passes; no checks always passes.
func All(checks ...Check) Check {
	return func(r *roles.Resolver, held []roles.Role) bool {
		for _, c := range checks {
			if !c(r, held) {
				return false
			}
		}
		return true
	}
}
