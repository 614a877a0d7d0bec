package roles

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the last segment of a capability. AnyAction is the wildcard.
type Action string

const AnyAction Action = "*"

const separator = ":"

// ErrInvalidCapability is returned for malformed capability strings.
var ErrInvalidCapability = errors.New("roles: invalid capability")

// Capability is a (resource, action) pair such as portal:surveys / take.
// Resource is itself colon-namespaced and may be empty only for the
// global wildcard "*".
type Capability struct {
	Resource string
	Action   Action
}

// Cap builds a concrete capability.
func Cap(resource string, action Action) Capability {
	return Capability{Resource: resource, Action: action}
}

// Wildcard builds a capability granting every action under resource.
func Wildcard(resource string) Capability {
	return Capability{Resource: resource, Action: AnyAction}
}

// ParseCapability parses "ns:resource:action" or "ns:*" forms.
func ParseCapability(raw string) (Capability, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Capability{}, fmt.Errorf("%w: empty", ErrInvalidCapability)
	}
	idx := strings.LastIndex(raw, separator)
	resource, action := "", raw
	if idx >= 0 {
		resource, action = raw[:idx], raw[idx+1:]
		if resource == "" || action == "" {
			return Capability{}, fmt.Errorf("%w: %q", ErrInvalidCapability, raw)
		}
	}
	if action != string(AnyAction) && strings.Contains(action, string(AnyAction)) {
		return Capability{}, fmt.Errorf("%w: wildcard must be a whole segment in %q", ErrInvalidCapability, raw)
	}
	if strings.Contains(resource, string(AnyAction)) {
		return Capability{}, fmt.Errorf("%w: wildcard must be the last segment in %q", ErrInvalidCapability, raw)
	}
	return Capability{Resource: resource, Action: Action(action)}, nil
}

// MustParseCapability is ParseCapability for static tables.
func MustParseCapability(raw string) Capability {
	c, err := ParseCapability(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// IsWildcard reports whether c grants every action under its resource.
func (c Capability) IsWildcard() bool {
	return c.Action == AnyAction
}

func (c Capability) String() string {
	if c.Resource == "" {
		return string(c.Action)
	}
	return c.Resource + separator + string(c.Action)
}

// Grants reports whether holding c satisfies a request for required.
// A wildcard grants any capability whose string form starts with the
// wildcard's string form minus the trailing "*".
func (c Capability) Grants(required Capability) bool {
	if !c.IsWildcard() {
		return c == required
	}
	prefix := strings.TrimSuffix(c.String(), string(AnyAction))
	return strings.HasPrefix(required.String(), prefix)
}
