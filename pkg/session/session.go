package session

import (
	"errors"
	"maps"
	"time"
)

// Session is the durable, cookie-identified record of authentication and
// context state across requests.
type Session struct {
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	UID       *int64         `json:"uid,omitempty"` // nil = anonymous session
	Context   map[string]any `json:"context"`       // lang, tz, ...
	ID        string         `json:"-"`             // opaque id, carried by the cookie
	Tenant    string         `json:"db,omitempty"`
	Login     string         `json:"login,omitempty"`
	Token     string         `json:"session_token,omitempty"` // per-user security token
	Debug     string         `json:"debug,omitempty"`

	dirty  bool
	isNew  bool
	rotate bool
}

// New creates an empty session with the given id.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Context:   make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
		isNew:     true,
	}
}

// IsAuthenticated returns true if the session has an associated user.
func (s *Session) IsAuthenticated() bool {
	return s.UID != nil && *s.UID > 0
}

// UserID returns the authenticated user id, or 0.
func (s *Session) UserID() int64 {
	if s.UID == nil {
		return 0
	}
	return *s.UID
}

// Authenticate binds the session to a user of the given tenant and
// schedules an id rotation.
func (s *Session) Authenticate(tenant string, uid int64, login, token string) {
	s.Tenant = tenant
	s.UID = &uid
	s.Login = login
	s.Token = token
	s.dirty = true
	s.rotate = true
}

// Logout drops the user binding. The context is preserved except for
// user-specific keys; keepTenant controls whether the tenant stays selected.
func (s *Session) Logout(keepTenant bool) {
	s.UID = nil
	s.Login = ""
	s.Token = ""
	if !keepTenant {
		s.Tenant = ""
	}
	delete(s.Context, "uid")
	s.dirty = true
	s.rotate = true
}

// SetContext stores a context value and marks the session dirty.
func (s *Session) SetContext(key string, val any) {
	if s.Context == nil {
		s.Context = make(map[string]any)
	}
	// Only strings are compared; other values may not be comparable.
	if cur, ok := s.Context[key].(string); ok {
		if v, ok := val.(string); ok && v == cur {
			return
		}
	}
	s.Context[key] = val
	s.dirty = true
}

// ContextCopy returns a shallow copy of the session context.
func (s *Session) ContextCopy() map[string]any {
	return maps.Clone(s.Context)
}

// SetDebug toggles debug mode.
func (s *Session) SetDebug(mode string) {
	if s.Debug != mode {
		s.Debug = mode
		s.dirty = true
	}
}

// IsDirty returns true if the session has unsaved changes.
func (s *Session) IsDirty() bool {
	return s.dirty
}

// MarkDirty marks the session as needing to be saved.
func (s *Session) MarkDirty() {
	s.dirty = true
}

// ClearDirty marks the session as clean (saved).
func (s *Session) ClearDirty() {
	s.dirty = false
}

// IsNew returns true if the session has never been persisted.
func (s *Session) IsNew() bool {
	return s.isNew
}

// ClearNew marks the session as persisted.
func (s *Session) ClearNew() {
	s.isNew = false
}

// MarkNew flags a session loaded from a store as never persisted under its id.
func (s *Session) MarkNew() {
	s.isNew = true
}

// ShouldRotate reports whether the session id must change before saving.
func (s *Session) ShouldRotate() bool {
	return s.rotate
}

// MarkRotate schedules an id rotation, e.g. after a privilege change.
func (s *Session) MarkRotate() {
	s.rotate = true
	s.dirty = true
}

// ClearRotate is called by the store once the id has been rotated.
func (s *Session) ClearRotate() {
	s.rotate = false
}

// IsExpired reports whether the session was last updated before now-maxAge.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return time.Since(s.UpdatedAt) > maxAge
}

// Value is a typed helper to retrieve context values.
func Value[T any](s *Session, key string) (T, error) {
	var zero T
	if s == nil {
		return zero, ErrNotFound
	}
	val, ok := s.Context[key]
	if !ok {
		return zero, ErrNotFound
	}
	typed, ok := val.(T)
	if !ok {
		return zero, errors.New("session: type mismatch for key: " + key)
	}
	return typed, nil
}

// ValueOr returns the typed context value or defaultVal.
func ValueOr[T any](s *Session, key string, defaultVal T) T {
	val, err := Value[T](s, key)
	if err != nil {
		return defaultVal
	}
	return val
}
