package verp

import (
	"github.com/tonyluong2025/verp-sub017/internal"
	"github.com/tonyluong2025/verp-sub017/pkg/logger"
	"github.com/tonyluong2025/verp-sub017/pkg/session"
)

// Type aliases - public API
type (
	// App is the request-dispatch engine.
	// It owns the route collector, the routing cache and the session manager.
	App = internal.App

	// Context gives handlers access to the request, its environment and
	// its session.
	Context = internal.Context

	// HandlerFunc is the signature for route handlers.
	HandlerFunc = internal.HandlerFunc

	// Middleware wraps a HandlerFunc at the endpoint level.
	Middleware = internal.Middleware

	// Module contributes routes at load time.
	Module = internal.Module

	// Registrar is the declaration surface given to a module.
	Registrar = internal.Registrar

	// RouteOption configures the routing metadata of a declaration.
	RouteOption = internal.RouteOption

	// RouteMeta is the merged routing metadata of an endpoint.
	RouteMeta = internal.RouteMeta

	// AuthMode selects how a route establishes its user.
	AuthMode = internal.AuthMode

	// RouteType selects request parsing and error serialization.
	RouteType = internal.RouteType

	// Endpoint is the resolved handler of a route chain.
	Endpoint = internal.Endpoint

	// Rule binds a URL pattern to an endpoint.
	Rule = internal.Rule

	// Response is what a handler produces.
	Response = internal.Response

	// Component is the interface for renderable templates.
	Component = internal.Component

	// Option configures the engine.
	Option = internal.Option

	// RunOption configures the server runtime.
	RunOption = internal.RunOption

	// Cursor is a transaction on a tenant database.
	Cursor = internal.Cursor

	// Env is the data session of a request.
	Env = internal.Env

	// Records is a record set of one model.
	Records = internal.Records

	// Registry opens cursors and environments for tenants.
	Registry = internal.Registry

	// Directory answers identity questions for a tenant.
	Directory = internal.Directory

	// ModuleSource lists the modules installed on a tenant.
	ModuleSource = internal.ModuleSource

	// StaticModules is a ModuleSource returning the same list for every tenant.
	StaticModules = internal.StaticModules

	// TenantLister enumerates the tenant databases.
	TenantLister = internal.TenantLister

	// Renderer renders named templates.
	Renderer = internal.Renderer

	// TemplRenderer is a Renderer backed by templ components.
	TemplRenderer = internal.TemplRenderer

	// Converter parses and formats one URL segment.
	Converter = internal.Converter

	// ConverterFactory builds a converter from route pattern arguments.
	ConverterFactory = internal.ConverterFactory

	// Site is a website bound to a tenant and a set of hosts.
	Site = internal.Site

	// Sites is the set of configured websites.
	Sites = internal.Sites

	// Rewrite is a site redirect rule.
	Rewrite = internal.Rewrite

	// Fallback resolves paths the routing table does not know.
	Fallback = internal.Fallback

	// FallbackFunc adapts a function to Fallback.
	FallbackFunc = internal.FallbackFunc

	// FallbackQuery describes an unrouted request.
	FallbackQuery = internal.FallbackQuery

	// FallbackResult is the answer of a Fallback.
	FallbackResult = internal.FallbackResult

	// RewriteFallback applies the rewrites of the current site.
	RewriteFallback = internal.RewriteFallback

	// AssetFallback serves tenant assets from object storage.
	AssetFallback = internal.AssetFallback

	// HTTPError is a classified failure rendered by the error translator.
	HTTPError = internal.HTTPError

	// HTTPErrorOption configures an HTTPError.
	HTTPErrorOption = internal.HTTPErrorOption

	// RedirectError asks the translator for a redirect.
	RedirectError = internal.RedirectError

	// Kind classifies failures.
	Kind = internal.Kind

	// Metrics holds the Prometheus collectors of the engine.
	Metrics = internal.Metrics

	// SessionOption configures the session manager.
	SessionOption = internal.SessionOption

	// Session is the per-client session record.
	Session = session.Session

	// SessionStore persists sessions.
	SessionStore = session.Store

	// PGRegistry is the PostgreSQL Registry.
	PGRegistry = internal.PGRegistry

	// PGDirectory is the PostgreSQL Directory.
	PGDirectory = internal.PGDirectory

	// ContextExtractor extracts a slog attribute from context.
	ContextExtractor = logger.ContextExtractor
)

// Auth modes and route types.
const (
	AuthNone   = internal.AuthNone
	AuthPublic = internal.AuthPublic
	AuthUser   = internal.AuthUser

	TypeHTTP = internal.TypeHTTP
	TypeJSON = internal.TypeJSON
)

// Error kinds.
const (
	KindUnhandled      = internal.KindUnhandled
	KindValidation     = internal.KindValidation
	KindAccessDenied   = internal.KindAccessDenied
	KindNotFound       = internal.KindNotFound
	KindSessionExpired = internal.KindSessionExpired
)

// Well-known names.
const (
	RegistryChannel = internal.RegistryChannel
	LangCookie      = internal.LangCookie
	CSRFField       = internal.CSRFField
	CSRFHeader      = internal.CSRFHeader
	LoginPath       = internal.LoginPath
	PublicLogin     = internal.PublicLogin
)

// Sentinel errors.
var (
	ErrNoTenant          = internal.ErrNoTenant
	ErrNoEnv             = internal.ErrNoEnv
	ErrBadPattern        = internal.ErrBadPattern
	ErrNoBaseRoute       = internal.ErrNoBaseRoute
	ErrUnknownConverter  = internal.ErrUnknownConverter
	ErrConverterMismatch = internal.ErrConverterMismatch
	ErrInvalidSite       = internal.ErrInvalidSite
	ErrUnknownTemplate   = internal.ErrUnknownTemplate
)

// New creates an engine with the given options.
// The App is immutable after creation.
//
// Example:
//
//	app, err := verp.New(
//	    verp.WithModules(web.New(web.Config{}), shop.Module{}),
//	    verp.WithRegistry(verp.NewPGRegistry(pools)),
//	    verp.WithDirectory(verp.NewPGDirectory(secret)),
//	)
//	if err != nil {
//	    return err
//	}
//	err = app.Run(":8069", verp.Logger(log))
func New(opts ...Option) (*App, error) {
	return internal.New(opts...)
}

// NewPGRegistry creates a Registry over the tenant pools.
var NewPGRegistry = internal.NewPGRegistry

// NewPGDirectory creates a Directory signing session tokens with secret.
var NewPGDirectory = internal.NewPGDirectory

// NewMetrics creates and registers the engine collectors.
var NewMetrics = internal.NewMetrics

// NewSites validates and indexes websites.
var NewSites = internal.NewSites

// LoadSites reads websites from YAML.
var LoadSites = internal.LoadSites

// NewTemplRenderer creates a renderer with the built-in error pages.
var NewTemplRenderer = internal.NewTemplRenderer

// NewAssetFallback creates a fallback serving tenant assets.
var NewAssetFallback = internal.NewAssetFallback

// Responses

// NewResponse creates a response with a body.
func NewResponse(status int, contentType string, body []byte) *Response {
	return internal.NewResponse(status, contentType, body)
}

// Render creates a response rendered through the configured Renderer.
func Render(template string, values map[string]any) *Response {
	return internal.Render(template, values)
}

// RenderComponent creates a response rendering a component.
func RenderComponent(status int, c Component) *Response {
	return internal.RenderComponent(status, c)
}

// Redirect creates a redirect response.
func Redirect(url string, code int) *Response {
	return internal.Redirect(url, code)
}

// JSON creates a JSON response.
func JSON(status int, v any) (*Response, error) {
	return internal.JSON(status, v)
}

// File creates a binary response with a content ETag.
func File(contentType string, body []byte) *Response {
	return internal.File(contentType, body)
}

// Errors

// ErrBadRequest creates a validation failure (400).
func ErrBadRequest(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrBadRequest(message, opts...)
}

// ErrForbidden creates an access denied failure (403).
func ErrForbidden(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrForbidden(message, opts...)
}

// ErrNotFound creates a not found failure (404).
func ErrNotFound(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrNotFound(message, opts...)
}

// ErrSessionExpired creates a failure sending the client to the login page.
func ErrSessionExpired(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrSessionExpired(message, opts...)
}

// ErrInternal creates an unhandled failure (500).
func ErrInternal(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrInternal(message, opts...)
}

// WithError attaches the underlying error.
func WithError(err error) HTTPErrorOption {
	return internal.WithError(err)
}

// WithDebug attaches debug details shown in dev mode.
func WithDebug(debug string) HTTPErrorOption {
	return internal.WithDebug(debug)
}

// WithArguments attaches the arguments echoed in JSON-RPC errors.
func WithArguments(args ...any) HTTPErrorOption {
	return internal.WithArguments(args...)
}

// AsHTTPError classifies err.
func AsHTTPError(err error) *HTTPError {
	return internal.AsHTTPError(err)
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return internal.IsKind(err, kind)
}

// Helpers

// Arg returns the converted URL argument name as T.
func Arg[T any](c Context, name string) T {
	return internal.Arg[T](c, name)
}

// Param returns the request parameter name as T.
func Param[T ~string | ~int | ~int64 | ~float64 | ~bool](c Context, name string) T {
	return internal.Param[T](c, name)
}

// ParamDefault returns the request parameter name as T or defaultValue.
func ParamDefault[T ~string | ~int | ~int64 | ~float64 | ~bool](c Context, name string, defaultValue T) T {
	return internal.ParamDefault(c, name, defaultValue)
}

// SessionValue retrieves a typed value from the session context.
func SessionValue[T any](sess *Session, key string) (T, error) {
	return session.Value[T](sess, key)
}

// SessionValueOr retrieves a typed value or returns the default.
func SessionValueOr[T any](sess *Session, key string, defaultVal T) T {
	return session.ValueOr(sess, key, defaultVal)
}
