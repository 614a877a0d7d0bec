package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates no verified identity is present.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidToken indicates a bearer token failed verification.
	ErrInvalidToken = errors.New("invalid token")
)
