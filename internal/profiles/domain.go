package profiles

import (
	"github.com/google/uuid"

	"github.com/dspops/portal/internal/roles"
)

// Profile is the portal's view of a user profile row.
type Profile struct {
	UserID          uuid.UUID
	FirstName       string
	LastName        string
	Role            roles.Role
	ProfileComplete bool
	CompanyName     string
}

// FullName is the name a user must type to attest an agreement.
func (p Profile) FullName() string {
	return p.FirstName + " " + p.LastName
}

// PromoteResult is returned by the promote_user procedure.
type PromoteResult struct {
	Success bool
	Message string
}

// ListFilter narrows an administrative profile listing.
type ListFilter struct {
	Role   roles.Role
	Limit  int
	Offset int
}
