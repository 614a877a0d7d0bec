package roles

// Resolver answers role and capability questions over static tables.
type Resolver struct {
	order        []Role
	capabilities map[Role][]Capability
}

// NewResolver builds a resolver from a hierarchy (least privileged first)
// and a capability table. Both are copied.
func NewResolver(order []Role, capabilities map[Role][]Capability) *Resolver {
	r := &Resolver{
		order:        append([]Role(nil), order...),
		capabilities: make(map[Role][]Capability, len(capabilities)),
	}
	for role, caps := range capabilities {
		r.capabilities[role] = append([]Capability(nil), caps...)
	}
	return r
}

// Default is the portal's resolver.
var Default = NewResolver(hierarchy, map[Role][]Capability{
	PortalMember: {
		Wildcard("portal:profile"),
		Cap("portal:surveys", "take"),
		Cap("portal:events", "view"),
		Cap("portal:updates", "view"),
		Cap("portal:referrals", "create"),
		Cap("portal:contacts", "view"),
	},
	Investor: {
		Wildcard("portal:profile"),
		Cap("portal:events", "view"),
		Cap("portal:updates", "view"),
		Wildcard("investor"),
	},
	Admin: {
		Wildcard("portal"),
		Wildcard("admin:surveys"),
		Wildcard("admin:events"),
		Wildcard("admin:updates"),
		Wildcard("admin:referrals"),
		Wildcard("admin:contacts"),
		Cap("admin:users", "view"),
	},
	SuperAdmin: {
		Wildcard("portal"),
		Wildcard("admin"),
		Wildcard("investor"),
	},
})

// Level returns the hierarchy position of role, or -1 when it is not ranked.
func (r *Resolver) Level(role Role) int {
	for i, candidate := range r.order {
		if candidate == role {
			return i
		}
	}
	return -1
}

// Capabilities returns the deduplicated capabilities held across roles.
func (r *Resolver) Capabilities(held []Role) []Capability {
	seen := make(map[Capability]struct{})
	var out []Capability
	for _, role := range held {
		for _, c := range r.capabilities[role] {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// HasCapability reports whether any held role grants required.
func (r *Resolver) HasCapability(held []Role, required Capability) bool {
	for _, role := range held {
		for _, c := range r.capabilities[role] {
			if c.Grants(required) {
				return true
			}
		}
	}
	return false
}

// HasMinimumRole reports whether any held role ranks at or above minimum.
// Unranked roles never qualify, and an unranked minimum admits nobody.
func (r *Resolver) HasMinimumRole(held []Role, minimum Role) bool {
	floor := r.Level(minimum)
	if floor < 0 {
		return false
	}
	for _, role := range held {
		if r.Level(role) >= floor {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether held and allowed intersect.
func (r *Resolver) HasAnyRole(held []Role, allowed []Role) bool {
	for _, a := range allowed {
		for _, h := range held {
			if a == h {
				return true
			}
		}
	}
	return false
}

// HasCapability checks required against the default tables.
func HasCapability(held []Role, required Capability) bool {
	return Default.HasCapability(held, required)
}

// HasMinimumRole checks minimum against the default hierarchy.
func HasMinimumRole(held []Role, minimum Role) bool {
	return Default.HasMinimumRole(held, minimum)
}

// HasAnyRole reports whether held and allowed intersect.
func HasAnyRole(held []Role, allowed ...Role) bool {
	return Default.HasAnyRole(held, allowed)
}

func IsAdmin(held []Role) bool {
	return HasAnyRole(held, Admin, SuperAdmin)
}

func IsSuperAdmin(held []Role) bool {
	return HasAnyRole(held, SuperAdmin)
}

func IsInvestor(held []Role) bool {
	return HasAnyRole(held, Investor)
}
