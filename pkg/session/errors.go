package session

import "errors"

// Session errors.
var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session: not found")

	// ErrInvalidID is returned when a session id is malformed.
	ErrInvalidID = errors.New("session: invalid id")

	// ErrExpired is returned when the session is authenticated but its
	// security token no longer matches the user's.
	ErrExpired = errors.New("session: expired")
)
