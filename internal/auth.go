package internal

import (
	"crypto/subtle"
	"fmt"
	"log/slog"

	"github.com/tonyluong2025/verp-sub017/pkg/session"
)

var csrfExtractor = NewExtractor(FromForm(CSRFField), FromHeader(CSRFHeader))

// authenticate establishes the user of the request according to the auth
// mode of the endpoint.
func (a *App) authenticate(req *Request) error {
	ep := req.Endpoint()
	ctx := req.http.Context()
	sess := req.session

	if ep.Meta.Auth == AuthNone || req.tenant == "" {
		if ep.Meta.Auth != AuthNone {
			return ErrNotFound("No database selected")
		}
		return req.transition(StateAuthenticated)
	}

	if sess.IsAuthenticated() && sess.Tenant == req.tenant {
		req.setUID(sess.UserID())
		if err := a.checkSessionToken(req); err != nil {
			return err
		}
		return req.transition(StateAuthenticated)
	}

	switch ep.Meta.Auth {
	case AuthUser:
		return ErrSessionExpired("Session expired", WithError(session.ErrExpired))
	case AuthPublic:
		if a.directory != nil {
			env, err := req.Env(ctx)
			if err != nil {
				return err
			}
			uid, err := a.directory.PublicUser(ctx, env)
			if err != nil {
				return fmt.Errorf("public user of %s: %w", req.tenant, err)
			}
			req.setUID(uid)
		}
	}
	return req.transition(StateAuthenticated)
}

// checkSessionToken revokes sessions whose token no longer matches the
// user's current one, e.g. after a password change.
func (a *App) checkSessionToken(req *Request) error {
	if a.directory == nil {
		return nil
	}
	ctx := req.http.Context()
	env, err := req.Env(ctx)
	if err != nil {
		return err
	}
	token, err := a.directory.SessionToken(ctx, env, req.uid)
	if err != nil {
		return fmt.Errorf("session token of %d: %w", req.uid, err)
	}
	if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(req.session.Token)) == 1 {
		return nil
	}
	a.logger.InfoContext(ctx, "session token mismatch, logging out",
		slog.String("tenant", req.tenant),
		slog.Int64("uid", req.uid),
	)
	req.session.Logout(true)
	req.setUID(0)
	return ErrSessionExpired("Session expired", WithError(session.ErrExpired))
}

// checkCSRF validates the token of state-changing requests on routes with
// CSRF protection.
func (a *App) checkCSRF(req *Request) error {
	ep := req.Endpoint()
	if !ep.Meta.CSRFEnabled() || safeMethod(req.http.Method) {
		return nil
	}
	token, _ := csrfExtractor.Extract(req.http)
	if !a.csrf.Validate(req.session.ID, token) {
		a.logger.WarnContext(req.http.Context(), "invalid csrf token",
			slog.String("path", req.http.URL.Path),
			slog.Bool("present", token != ""),
		)
		return ErrBadRequest("Session expired (invalid CSRF token)")
	}
	return nil
}
