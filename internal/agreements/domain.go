// Package agreements stores per-user acknowledgments of versioned legal
// documents. Records are append-only.
package agreements

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies an agreement document.
type Kind string

const (
	KindNDA        Kind = "nda"
	KindMembership Kind = "membership"
)

// Current document versions. A stored agreement counts only when its
// version equals one of these exactly.
const (
	NDAVersion        = "2024-06-01"
	MembershipVersion = "2024-09-15"
)

// Kinds lists agreement kinds in the order users must accept them.
func Kinds() []Kind {
	return []Kind{KindNDA, KindMembership}
}

// ParseKind converts a path or body value into a Kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindNDA, KindMembership:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("agreements: unknown kind %q", raw)
}

// CurrentVersion returns the version users must accept for k.
func (k Kind) CurrentVersion() string {
	switch k {
	case KindNDA:
		return NDAVersion
	case KindMembership:
		return MembershipVersion
	}
	return ""
}

// Record is one user's acceptance of one document version.
type Record struct {
	UserID       uuid.UUID
	Version      string
	AgreedText   string
	TypedName    string
	ExpectedName string
	UserAgent    string
	AgreedAt     time.Time
}

// Status reports which current documents a user has accepted.
type Status struct {
	NDA        bool
	Membership bool
}

// Agreed reports the status for k.
func (s Status) Agreed(k Kind) bool {
	switch k {
	case KindNDA:
		return s.NDA
	case KindMembership:
		return s.Membership
	}
	return false
}
