package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tonyluong2025/verp-sub017/pkg/db"
	"github.com/tonyluong2025/verp-sub017/pkg/htmx"
	"github.com/tonyluong2025/verp-sub017/pkg/i18n"
)

const (
	langCookieMaxAge = 365 * 24 * 60 * 60
	dbListTTL        = 30 * time.Second
)

// ServeHTTP runs one request through the lifecycle: prepare, route,
// authenticate, dispatch and finalize. Exactly one response is written.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	done := a.metrics.requestStarted()
	rw := NewResponseWriter(w)
	req := newRequest(r, a.registry)
	status := http.StatusInternalServerError

	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok && errors.Is(e, http.ErrAbortHandler) {
				panic(p)
			}
			ctx := context.WithoutCancel(r.Context())
			a.logger.ErrorContext(ctx, "panic while serving request",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			_ = req.endTransaction(ctx, false)
			if !rw.Written() {
				status = a.write(rw, r, a.hardPage(ctx, ""))
			}
		}
		done(routeLabel(req), status)
	}()

	resp := a.handle(req)
	status = a.finalize(rw, req, resp)
}

func routeLabel(req *Request) string {
	if ep := req.Endpoint(); ep != nil {
		return string(ep.Meta.Type)
	}
	return "none"
}

// handle produces the response of req. Failures at any stage go through
// the error translator.
func (a *App) handle(req *Request) *Response {
	resp, err := a.run(req)
	if err == nil {
		return resp
	}
	req.fail()
	return a.translate(req, err)
}

func (a *App) run(req *Request) (*Response, error) {
	if err := a.prepare(req); err != nil {
		return nil, err
	}
	if err := a.route(req); err != nil {
		return nil, err
	}
	if req.http.Method == http.MethodOptions && req.Endpoint().Meta.CORS != "" {
		return a.preflight(req)
	}
	if err := a.parseParams(req); err != nil {
		return nil, err
	}
	// A forged request is rejected the same way whoever is logged in.
	if err := a.checkCSRF(req); err != nil {
		return nil, err
	}
	if err := a.authenticate(req); err != nil {
		return nil, err
	}
	return a.dispatch(req)
}

// prepare loads the session, selects the tenant and the site.
func (a *App) prepare(req *Request) error {
	ctx := req.http.Context()
	sess, err := a.sessions.Load(ctx, req.http)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	req.session = sess

	tenant, err := a.resolveTenant(ctx, req)
	if err != nil {
		return err
	}
	if sess.Tenant != tenant {
		if sess.IsAuthenticated() {
			sess.Logout(false)
		}
		sess.Tenant = tenant
		sess.MarkDirty()
	}
	req.tenant = tenant
	req.site, _ = a.sites.Lookup(tenant, req.http.Host)
	return nil
}

// resolveTenant selects the database: a static host route first, then the
// db query parameter, the session database, the only database the host
// may use, and the configured default.
func (a *App) resolveTenant(ctx context.Context, req *Request) (string, error) {
	host := req.http.Host
	if a.hosts != nil {
		if t, ok := a.hosts.Resolve(host); ok {
			return t, nil
		}
	}
	dbs, err := a.databases(ctx, host)
	if err != nil {
		return "", err
	}
	if name := req.http.URL.Query().Get("db"); name != "" && slices.Contains(dbs, name) {
		return name, nil
	}
	if name := req.session.Tenant; name != "" && slices.Contains(dbs, name) {
		return name, nil
	}
	if len(dbs) == 1 {
		return dbs[0], nil
	}
	if a.defaultTenant != "" && slices.Contains(dbs, a.defaultTenant) {
		return a.defaultTenant, nil
	}
	return "", nil
}

// databases lists the valid tenants host may select.
func (a *App) databases(ctx context.Context, host string) ([]string, error) {
	if a.tenants == nil {
		if a.defaultTenant == "" {
			return nil, nil
		}
		return []string{a.defaultTenant}, nil
	}
	return a.dbList.GetOrSet(ctx, host, func(ctx context.Context) ([]string, time.Duration, error) {
		all, err := a.tenants.Databases(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("list databases: %w", err)
		}
		valid := slices.DeleteFunc(slices.Clone(all), func(name string) bool {
			return !db.ValidTenant(name)
		})
		if a.hosts != nil {
			valid = a.hosts.Filter(host, valid)
		}
		return valid, dbListTTL, nil
	})
}

// route matches the request path, applying the canonical language rules on
// frontend requests, and converts the URL arguments.
func (a *App) route(req *Request) error {
	ctx := req.http.Context()
	table, err := a.cache.Get(ctx, req.tenant)
	if err != nil {
		return err
	}
	req.table = table
	req.history = NewRerouteHistory(req.path, a.canonical.MaxReroutes())

	method := req.http.Method
	multilang := func(p string) bool {
		m, ok := table.Match(method, p)
		return !ok || m.Endpoint.IsMultilang()
	}

	var forced *i18n.Lang
	var cookie string
	if c, err := req.http.Cookie(LangCookie); err == nil {
		cookie = c.Value
	}

	for {
		m, found := table.Match(method, req.path)
		if req.site == nil || (found && !m.Endpoint.IsFrontend()) {
			req.match = m
			break
		}
		d := a.canonical.Decide(CanonicalInput{
			Langs:          req.site.Langs(),
			Forced:         forced,
			Multilang:      multilang,
			Method:         method,
			Path:           canonicalPath(req, forced == nil),
			RawQuery:       req.http.URL.RawQuery,
			Cookie:         cookie,
			AcceptLanguage: req.http.Header.Get("Accept-Language"),
			UserAgent:      req.http.UserAgent(),
		})
		switch d.Action {
		case ActionRedirect:
			return &RedirectError{Location: d.Path, Code: d.Code}
		case ActionReroute:
			if err := req.history.Add(d.Path); err != nil {
				return err
			}
			a.metrics.rerouted()
			req.path = d.Path
			lang := d.Lang
			forced = &lang
			continue
		}
		req.lang = d.Lang
		req.match = m
		break
	}
	a.defaultLang(req)

	if req.match == nil {
		return ErrNotFound("Not Found")
	}
	req.readonly = req.match.Endpoint.Meta.ReadOnly
	if err := req.transition(StateMatched); err != nil {
		return err
	}

	var env Env
	if req.tenant != "" && len(req.match.Raw) > 0 && a.registry != nil {
		if env, err = req.Env(ctx); err != nil {
			return err
		}
	}
	args, err := req.match.Bind(ctx, env)
	if err != nil {
		if errors.Is(err, ErrConverterMismatch) || errors.Is(err, ErrNoEnv) {
			return ErrNotFound("Not Found", WithError(err))
		}
		return err
	}
	req.args = args
	return nil
}

// canonicalPath is the path the canonicalizer judges. Matching strips
// trailing slashes, but "/fr/" must stay visible on the first pass so the
// language homepage is redirected to "/fr".
func canonicalPath(req *Request, first bool) string {
	raw := req.http.URL.Path
	if !first || raw != req.path+"/" || strings.Count(req.path, "/") != 1 || req.path == "/" {
		return req.path
	}
	if _, ok := req.site.Langs().Lookup(strings.TrimPrefix(req.path, "/")); !ok {
		return req.path
	}
	return raw
}

func (a *App) defaultLang(req *Request) {
	if req.lang.Code != "" {
		return
	}
	if req.site != nil {
		req.lang = req.site.Langs().Default()
		return
	}
	if req.session != nil {
		if code, ok := req.session.Context["lang"].(string); ok && code != "" {
			req.lang = i18n.Lang{Code: code, URLCode: code}
		}
	}
}

// preflight answers a CORS OPTIONS request without running the handler.
func (a *App) preflight(req *Request) (*Response, error) {
	for _, next := range []State{StateAuthenticated, StateDispatched, StateSucceeded} {
		if err := req.transition(next); err != nil {
			return nil, err
		}
	}
	methods := slices.DeleteFunc(slices.Clone(req.Endpoint().Meta.Methods), func(m string) bool {
		return m == http.MethodOptions
	})
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost}
	}
	resp := NewResponse(http.StatusOK, "", nil)
	resp.Header.Set("Access-Control-Max-Age", "86400")
	resp.Header.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	resp.Header.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
	return resp, nil
}

// finalize ends the transaction, persists the session and writes resp. It
// runs on a context that survives client disconnects.
func (a *App) finalize(w http.ResponseWriter, req *Request, resp *Response) int {
	ctx := context.WithoutCancel(req.http.Context())

	if err := req.endTransaction(ctx, req.state == StateSucceeded); err != nil {
		if req.state == StateSucceeded {
			resp = a.translate(req, ErrInternal("Internal Server Error", WithError(err)))
		} else {
			a.logger.WarnContext(ctx, "rollback failed", slog.Any("error", err))
		}
	}

	ep := req.Endpoint()
	if ep != nil && ep.Meta.CORS != "" {
		resp.Header.Set("Access-Control-Allow-Origin", ep.Meta.CORS)
	}
	if req.session != nil && (ep == nil || ep.Meta.ShouldSaveSession()) {
		if err := a.sessions.Save(ctx, w, req.http, req.session); err != nil {
			a.logger.ErrorContext(ctx, "save session failed", slog.Any("error", err))
		}
	}
	a.sessions.MaybeGC()
	handlerLang := slices.ContainsFunc(resp.Cookies, func(c *http.Cookie) bool { return c.Name == LangCookie })
	if ep.IsFrontend() && req.site != nil && req.lang.Code != "" && !handlerLang {
		if c, err := req.http.Cookie(LangCookie); err != nil || c.Value != req.lang.Code {
			http.SetCookie(w, a.cookies.Cookie(LangCookie, req.lang.Code, langCookieMaxAge))
		}
	}

	if err := req.transition(StateFinalized); err != nil {
		a.logger.ErrorContext(ctx, "finalize", slog.Any("error", err))
	}
	return a.write(w, req.http, resp)
}

// write sends resp and returns the status written.
func (a *App) write(w http.ResponseWriter, r *http.Request, resp *Response) int {
	h := w.Header()
	maps.Copy(h, resp.Header)
	for _, c := range resp.Cookies {
		http.SetCookie(w, c)
	}

	if resp.notModified(r) {
		h.Del("Content-Type")
		h.Del("Content-Length")
		w.WriteHeader(http.StatusNotModified)
		return http.StatusNotModified
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if loc := h.Get("Location"); loc != "" && isRedirect(status) && htmx.IsHTMX(r) {
		h.Del("Location")
		htmx.Redirect(w, r, loc, status)
		return http.StatusOK
	}

	bodyAllowed := status != http.StatusNoContent && status != http.StatusNotModified
	if bodyAllowed {
		h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	w.WriteHeader(status)
	if bodyAllowed && r.Method != http.MethodHead && len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			a.logger.DebugContext(r.Context(), "write response", slog.Any("error", err))
		}
	}
	return status
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400 && status != http.StatusNotModified
}
