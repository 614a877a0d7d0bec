// Package gate blocks portal access until the caller has accepted the
// current NDA and then the current membership agreement.
package gate

import "github.com/dspops/portal/internal/agreements"

// State is the gate's decision for one user.
type State string

const (
	StateLoading           State = "loading"
	StateNDAPending        State = "nda_pending"
	StateMembershipPending State = "membership_pending"
	StateSatisfied         State = "satisfied"
	StateUnauthenticated   State = "unauthenticated"
	StateError             State = "error"
)

// Sequence decides which document, if any, must be accepted next. The NDA
// always comes first, even when both are outstanding.
func Sequence(ndaAgreed, membershipAgreed bool) State {
	switch {
	case !ndaAgreed:
		return StateNDAPending
	case !membershipAgreed:
		return StateMembershipPending
	default:
		return StateSatisfied
	}
}

// Pending returns the agreement the state is waiting on.
func (s State) Pending() (agreements.Kind, bool) {
	switch s {
	case StateNDAPending:
		return agreements.KindNDA, true
	case StateMembershipPending:
		return agreements.KindMembership, true
	}
	return "", false
}

// Terminal reports whether no further user action can change the state
// within this evaluation.
func (s State) Terminal() bool {
	switch s {
	case StateSatisfied, StateUnauthenticated, StateError:
		return true
	}
	return false
}
