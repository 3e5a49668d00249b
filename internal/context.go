package internal

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/tonyluong2025/verp-sub017/pkg/htmx"
	"github.com/tonyluong2025/verp-sub017/pkg/i18n"
	"github.com/tonyluong2025/verp-sub017/pkg/session"
)

// Context is the immutable view of a request given to handlers.
// It also implements context.Context by delegating to the request context.
type Context interface {
	context.Context

	// Request returns the underlying *http.Request.
	Request() *http.Request

	// Tenant returns the database serving the request, or "" for
	// tenant-less routes.
	Tenant() string

	// Env returns the data session of the request, opening the transaction
	// on first use. Returns ErrNoTenant on tenant-less requests.
	Env() (Env, error)

	// Session returns the session of the request. It is never nil.
	Session() *session.Session

	// UID returns the user the request runs as: the session user, the
	// public user on public routes, or 0.
	UID() int64

	// Lang returns the resolved language.
	Lang() i18n.Lang

	// Site returns the website serving the request, or nil.
	Site() *Site

	// Endpoint returns the matched endpoint.
	Endpoint() *Endpoint

	// Arg returns a converted URL argument.
	Arg(name string) any

	// Args returns all converted URL arguments.
	Args() map[string]any

	// Param returns a request parameter: a JSON-RPC param for json routes,
	// a query or form value otherwise. URL arguments take precedence.
	Param(name string) any

	// Params returns all request parameters merged with URL arguments.
	Params() map[string]any

	// Bind decodes Params into v, matching fields by their json tag.
	Bind(v any) error

	// CSRFToken issues a token bound to the session.
	CSRFToken() string

	// Login authenticates the session. Wrong credentials yield an
	// AccessDenied error.
	Login(login, password string) error

	// Logout drops the user from the session, keeping the tenant.
	Logout()

	// URL builds the path of the endpoint key, prefixed with the current
	// language when the endpoint is multilingual.
	URL(key string, values map[string]any) (string, error)

	// Header returns the request header value by name.
	Header(name string) string

	// SetHeader sets a response header.
	SetHeader(name, value string)

	// Cookie returns a plain cookie value.
	Cookie(name string) (string, error)

	// SetCookie sets a plain cookie on the response.
	SetCookie(name, value string, maxAge int)

	// IsHTMX returns true if the request originated from HTMX.
	IsHTMX() bool

	// Debug reports whether debug output is enabled for the request.
	Debug() bool

	// Logger returns the logger for advanced usage.
	Logger() *slog.Logger

	// LogDebug logs a debug message with optional attributes.
	LogDebug(msg string, attrs ...any)

	// LogInfo logs an info message with optional attributes.
	LogInfo(msg string, attrs ...any)

	// LogWarn logs a warning message with optional attributes.
	LogWarn(msg string, attrs ...any)

	// LogError logs an error message with optional attributes.
	LogError(msg string, attrs ...any)
}

// requestContext implements the Context interface. One is created per
// handler attempt, so headers set by a failed attempt never leak.
type requestContext struct {
	context.Context
	req     *Request
	app     *App
	header  http.Header
	cookies []*http.Cookie
}

func newContext(ctx context.Context, req *Request, app *App) *requestContext {
	return &requestContext{
		Context: ctx,
		req:     req,
		app:     app,
		header:  make(http.Header),
	}
}

func (c *requestContext) Request() *http.Request {
	return c.req.http
}

func (c *requestContext) Tenant() string {
	return c.req.tenant
}

func (c *requestContext) Env() (Env, error) {
	return c.req.Env(c)
}

func (c *requestContext) Session() *session.Session {
	return c.req.session
}

func (c *requestContext) UID() int64 {
	return c.req.uid
}

func (c *requestContext) Lang() i18n.Lang {
	return c.req.lang
}

func (c *requestContext) Site() *Site {
	return c.req.site
}

func (c *requestContext) Endpoint() *Endpoint {
	return c.req.Endpoint()
}

func (c *requestContext) Arg(name string) any {
	return c.req.args[name]
}

func (c *requestContext) Args() map[string]any {
	return maps.Clone(c.req.args)
}

func (c *requestContext) Param(name string) any {
	if v, ok := c.req.args[name]; ok {
		return v
	}
	return c.req.params[name]
}

func (c *requestContext) Params() map[string]any {
	out := make(map[string]any, len(c.req.params)+len(c.req.args))
	maps.Copy(out, c.req.params)
	maps.Copy(out, c.req.args)
	return out
}

func (c *requestContext) Bind(v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	if err := dec.Decode(c.Params()); err != nil {
		return ErrBadRequest("Invalid parameters", WithError(err))
	}
	return nil
}

func (c *requestContext) CSRFToken() string {
	return c.app.csrf.Issue(c.req.session.ID, c.app.csrfTTL)
}

func (c *requestContext) Login(login, password string) error {
	if c.req.tenant == "" {
		return ErrNoTenant
	}
	if c.app.directory == nil {
		return ErrForbidden("Authentication is not available")
	}
	env, err := c.req.Env(c)
	if err != nil {
		return err
	}
	uid, token, err := c.app.directory.Authenticate(c, env, login, password)
	if err != nil {
		return err
	}
	c.req.session.Authenticate(c.req.tenant, uid, login, token)
	c.req.setUID(uid)
	c.LogInfo("login successful", slog.String("login", login), slog.Int64("uid", uid))
	return nil
}

func (c *requestContext) Logout() {
	c.req.session.Logout(true)
	c.req.setUID(0)
}

func (c *requestContext) URL(key string, values map[string]any) (string, error) {
	if c.req.table == nil {
		return "", fmt.Errorf("no routing table for %s", key)
	}
	path, err := c.req.table.URL(c, key, values, FormatOptions{Slug: true})
	if err != nil {
		return "", err
	}
	ep, ok := c.req.table.Endpoint(key)
	if ok && ep.IsMultilang() && c.req.site != nil && !c.req.site.Langs().IsDefault(c.req.lang) {
		path = langPath(c.req.lang, path)
	}
	return path, nil
}

func (c *requestContext) Header(name string) string {
	return c.req.http.Header.Get(name)
}

func (c *requestContext) SetHeader(name, value string) {
	c.header.Set(name, value)
}

func (c *requestContext) Cookie(name string) (string, error) {
	return c.app.cookies.Get(c.req.http, name)
}

func (c *requestContext) SetCookie(name, value string, maxAge int) {
	c.cookies = append(c.cookies, c.app.cookies.Cookie(name, value, maxAge))
}

func (c *requestContext) IsHTMX() bool {
	return htmx.IsHTMX(c.req.http)
}

func (c *requestContext) Debug() bool {
	return c.app.devMode || c.req.session.Debug != ""
}

func (c *requestContext) Logger() *slog.Logger {
	return c.app.logger
}

func (c *requestContext) LogDebug(msg string, attrs ...any) {
	c.app.logger.DebugContext(c, msg, attrs...)
}

func (c *requestContext) LogInfo(msg string, attrs ...any) {
	c.app.logger.InfoContext(c, msg, attrs...)
}

func (c *requestContext) LogWarn(msg string, attrs ...any) {
	c.app.logger.WarnContext(c, msg, attrs...)
}

func (c *requestContext) LogError(msg string, attrs ...any) {
	c.app.logger.ErrorContext(c, msg, attrs...)
}

// apply copies the headers and cookies set by the handler onto resp.
func (c *requestContext) apply(resp *Response) {
	maps.Copy(resp.Header, c.header)
	resp.Cookies = append(resp.Cookies, c.cookies...)
}
