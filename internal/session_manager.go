package internal

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tonyluong2025/verp-sub017/pkg/cookie"
	"github.com/tonyluong2025/verp-sub017/pkg/session"
)

// Default session configuration.
const (
	defaultSessionCookieName = "session_id"
	defaultGCProbability     = 0.001
	gcTimeout                = time.Minute
)

// SessionManager loads and persists sessions and owns the session cookie.
type SessionManager struct {
	store         session.Store
	cookies       *cookie.Manager
	logger        *slog.Logger
	metrics       *Metrics
	cookieName    string
	maxAge        time.Duration
	gcProbability float64
	gcRunning     atomic.Bool
}

// SessionOption configures the SessionManager.
type SessionOption func(*SessionManager)

// NewSessionManager creates a new SessionManager with the given store and options.
func NewSessionManager(store session.Store, cookies *cookie.Manager, opts ...SessionOption) *SessionManager {
	if cookies == nil {
		cookies = cookie.New()
	}
	sm := &SessionManager{
		store:         store,
		cookies:       cookies,
		logger:        slog.New(slog.DiscardHandler),
		cookieName:    defaultSessionCookieName,
		maxAge:        session.DefaultMaxAge,
		gcProbability: defaultGCProbability,
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// WithSessionCookieName sets the session cookie name.
func WithSessionCookieName(name string) SessionOption {
	return func(sm *SessionManager) {
		if name != "" {
			sm.cookieName = name
		}
	}
}

// WithSessionMaxAge sets the cookie lifetime and the GC age.
func WithSessionMaxAge(d time.Duration) SessionOption {
	return func(sm *SessionManager) {
		if d > 0 {
			sm.maxAge = d
		}
	}
}

// WithSessionGCProbability sets the per-request chance of an opportunistic
// garbage collection. Zero disables it.
func WithSessionGCProbability(p float64) SessionOption {
	return func(sm *SessionManager) {
		if p >= 0 && p <= 1 {
			sm.gcProbability = p
		}
	}
}

// SetLogger sets the logger for session events. Called by App after initialization.
func (sm *SessionManager) SetLogger(l *slog.Logger, m *Metrics) {
	if l != nil {
		sm.logger = l
	}
	sm.metrics = m
}

// Store returns the underlying session store.
func (sm *SessionManager) Store() session.Store {
	return sm.store
}

// CookieName returns the session cookie name.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Load returns the session named by the request cookie. Unknown ids keep
// their value so the client cookie stays stable; missing, invalid and
// expired sessions yield a fresh one. Only store failures are errors.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*session.Session, error) {
	sid, err := sm.readCookie(r)
	if err != nil || !session.ValidID(sid) {
		return sm.store.New(), nil
	}

	sess, err := sm.store.Get(ctx, sid)
	switch {
	case errors.Is(err, session.ErrNotFound):
		sess = session.New(sid)
		sess.MarkNew()
		return sess, nil
	case err != nil:
		return nil, err
	}

	if sess.IsExpired(sm.maxAge) {
		if err := sm.store.Delete(ctx, sess); err != nil {
			sm.logger.Warn("delete expired session", slog.Any("error", err))
		}
		return sm.store.New(), nil
	}
	return sess, nil
}

func (sm *SessionManager) readCookie(r *http.Request) (string, error) {
	if sm.cookies.Signed() {
		return sm.cookies.GetSigned(r, sm.cookieName)
	}
	return sm.cookies.Get(r, sm.cookieName)
}

// Save persists a dirty session, rotating its id first when requested, and
// writes the cookie when the client does not hold the current id.
func (sm *SessionManager) Save(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *session.Session) error {
	if sess.ShouldRotate() {
		if sess.IsNew() {
			// Nothing stored under the old id; a client-chosen id is still replaced.
			sess.ID = sm.store.New().ID
			sess.ClearRotate()
		} else if err := sm.store.Rotate(ctx, sess); err != nil {
			return err
		}
	}
	if sess.IsDirty() {
		if err := sm.store.Save(ctx, sess); err != nil {
			return err
		}
		sess.ClearDirty()
		sess.ClearNew()
	}

	if current, err := sm.readCookie(r); err != nil || current != sess.ID {
		return sm.writeCookie(w, sess.ID)
	}
	return nil
}

func (sm *SessionManager) writeCookie(w http.ResponseWriter, sid string) error {
	maxAge := int(sm.maxAge / time.Second)
	if sm.cookies.Signed() {
		return sm.cookies.SetSigned(w, sm.cookieName, sid, maxAge)
	}
	sm.cookies.Set(w, sm.cookieName, sid, maxAge)
	return nil
}

// DeleteSession removes the session from the store and clears the cookie.
func (sm *SessionManager) DeleteSession(ctx context.Context, w http.ResponseWriter, sess *session.Session) error {
	sm.cookies.Delete(w, sm.cookieName)
	return sm.store.Delete(ctx, sess)
}

// MaybeGC runs a background garbage collection with the configured
// probability. At most one collection runs at a time.
func (sm *SessionManager) MaybeGC() {
	if sm.gcProbability <= 0 || rand.Float64() >= sm.gcProbability {
		return
	}
	go func() {
		_, _ = sm.GC(context.Background())
	}()
}

// GC removes sessions older than the max age.
func (sm *SessionManager) GC(ctx context.Context) (int, error) {
	if !sm.gcRunning.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer sm.gcRunning.Store(false)

	ctx, cancel := context.WithTimeout(ctx, gcTimeout)
	defer cancel()
	n, err := sm.store.GC(ctx, sm.maxAge)
	if err != nil {
		sm.logger.Error("session gc failed", slog.Any("error", err))
		return n, err
	}
	sm.metrics.sessionsCollected(n)
	if n > 0 {
		sm.logger.Info("session gc", slog.Int("removed", n))
	}
	return n, nil
}
