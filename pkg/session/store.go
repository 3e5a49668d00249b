package session

import (
	"context"
	"regexp"
	"time"
)

// DefaultMaxAge is the age after which the garbage collector removes sessions.
const DefaultMaxAge = 7 * 24 * time.Hour

// Store defines the interface for session persistence.
// Implementations must be safe for concurrent use with different ids;
// concurrent saves of the same id are last-writer-wins.
type Store interface {
	// New returns a fresh, unsaved session with a random id.
	New() *Session

	// Get loads a session by id.
	// Returns ErrNotFound if the session doesn't exist.
	Get(ctx context.Context, id string) (*Session, error)

	// Save persists the session under its current id.
	Save(ctx context.Context, s *Session) error

	// Delete removes the session.
	Delete(ctx context.Context, s *Session) error

	// Rotate moves the session to a new id, deleting the old entry.
	Rotate(ctx context.Context, s *Session) error

	// GC removes sessions not updated within maxAge.
	GC(ctx context.Context, maxAge time.Duration) (int, error)
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)

// ValidID reports whether id is a syntactically valid session id.
// Stores reject anything else so ids can safely be used as keys or file names.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
