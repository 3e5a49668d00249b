package internal

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"

	"github.com/tonyluong2025/verp-sub017/pkg/i18n"
	"github.com/tonyluong2025/verp-sub017/pkg/jsonrpc"
	"github.com/tonyluong2025/verp-sub017/pkg/session"
)

// State is a step of the request lifecycle.
type State uint8

const (
	StateCreated State = iota
	StateMatched
	StateAuthenticated
	StateDispatched
	StateSucceeded
	StateFailed
	StateFinalized
)

var stateNames = [...]string{
	StateCreated:       "created",
	StateMatched:       "matched",
	StateAuthenticated: "authenticated",
	StateDispatched:    "dispatched",
	StateSucceeded:     "succeeded",
	StateFailed:        "failed",
	StateFinalized:     "finalized",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

var transitions = map[State][]State{
	StateCreated:       {StateMatched, StateFailed},
	StateMatched:       {StateAuthenticated, StateFailed},
	StateAuthenticated: {StateDispatched, StateFailed},
	StateDispatched:    {StateSucceeded, StateFailed},
	StateSucceeded:     {StateFinalized},
	StateFailed:        {StateFinalized},
}

// Request is the per-request state. It is used by one goroutine, owns at
// most one cursor and one environment, and ends its transaction exactly
// once.
type Request struct {
	http     *http.Request
	registry Registry
	cursor   Cursor
	env      Env
	table    *RoutingTable
	match    *Match
	session  *session.Session
	site     *Site
	rpc      *jsonrpc.Request
	history  *RerouteHistory
	args     map[string]any
	params   map[string]any
	tenant   string
	path     string
	lang     i18n.Lang
	uid      int64
	state    State
	readonly bool
	ended    bool
}

func newRequest(r *http.Request, registry Registry) *Request {
	return &Request{http: r, registry: registry, path: normalizePath(r.URL.Path)}
}

// State returns the current lifecycle state.
func (r *Request) State() State {
	return r.state
}

// transition moves the request to next. Illegal moves are programming
// errors and leave the state unchanged.
func (r *Request) transition(next State) error {
	if !slices.Contains(transitions[r.state], next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.state, next)
	}
	r.state = next
	return nil
}

// fail moves the request to StateFailed unless it already ended.
func (r *Request) fail() {
	if r.state != StateFailed && r.state != StateFinalized {
		_ = r.transition(StateFailed)
	}
}

// Endpoint returns the matched endpoint, or nil.
func (r *Request) Endpoint() *Endpoint {
	if r.match == nil {
		return nil
	}
	return r.match.Endpoint
}

func (r *Request) envContext() map[string]any {
	ctx := make(map[string]any)
	if r.session != nil {
		maps.Copy(ctx, r.session.ContextCopy())
	}
	if r.lang.Code != "" {
		ctx["lang"] = r.lang.Code
	}
	return ctx
}

// Env returns the environment of the request, opening the cursor on first
// use. Asking for another uid rebinds the environment to the same cursor.
func (r *Request) Env(ctx context.Context) (Env, error) {
	if r.env != nil && r.env.UID() == r.uid {
		return r.env, nil
	}
	if r.tenant == "" {
		return nil, ErrNoTenant
	}
	if r.registry == nil {
		return nil, ErrNoEnv
	}
	if r.cursor == nil {
		cr, err := r.registry.Begin(ctx, r.tenant, r.readonly)
		if err != nil {
			return nil, fmt.Errorf("open cursor on %s: %w", r.tenant, err)
		}
		r.cursor, r.ended = cr, false
	}
	r.env = r.registry.Env(r.cursor, r.tenant, r.uid, r.envContext())
	return r.env, nil
}

// setUID changes the identity of the request environment.
func (r *Request) setUID(uid int64) {
	r.uid = uid
}

// endTransaction commits on success and rolls back otherwise, then closes
// the cursor. Read-only requests always roll back. It is a no-op once the
// transaction ended or when no cursor was opened.
func (r *Request) endTransaction(ctx context.Context, success bool) error {
	if r.cursor == nil || r.ended {
		return nil
	}
	r.ended = true
	var err error
	if success && !r.readonly {
		err = r.cursor.Commit(ctx)
	} else {
		err = r.cursor.Rollback(ctx)
	}
	return errors.Join(err, r.cursor.Close(ctx))
}

// resetCursor drops the transaction so the next Env call starts a fresh
// one. Used between retries.
func (r *Request) resetCursor(ctx context.Context) error {
	err := r.endTransaction(ctx, false)
	r.cursor, r.env, r.ended = nil, nil, false
	return err
}
