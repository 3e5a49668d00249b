package internal

import (
	"net/http"
	"slices"
	"strings"
)

// AuthMode selects the authentication strategy of a route.
type AuthMode string

const (
	// AuthNone establishes no user; the route works without a tenant.
	AuthNone AuthMode = "none"
	// AuthPublic falls back to the public user when nobody is logged in.
	AuthPublic AuthMode = "public"
	// AuthUser requires an authenticated session.
	AuthUser AuthMode = "user"
)

// RouteType selects request parsing and error serialization.
type RouteType string

const (
	TypeHTTP RouteType = "http"
	TypeJSON RouteType = "json"
)

// RouteMeta is the merged routing metadata of an endpoint.
type RouteMeta struct {
	CSRF        *bool
	Multilang   *bool
	SaveSession *bool
	Auth        AuthMode
	Type        RouteType
	CORS        string
	Routes      []string
	Methods     []string // nil = any method
	Middlewares []Middleware
	Website     bool
	ReadOnly    bool
}

// RouteOption sets one field of a route declaration. Options of later
// declarations in an override chain overwrite earlier ones.
type RouteOption func(*RouteMeta)

// Routes sets the URL patterns. Several patterns are aliases of one endpoint.
func Routes(patterns ...string) RouteOption {
	return func(m *RouteMeta) {
		m.Routes = slices.Clone(patterns)
	}
}

// Methods restricts the accepted HTTP methods.
func Methods(methods ...string) RouteOption {
	return func(m *RouteMeta) {
		m.Methods = make([]string, len(methods))
		for i, meth := range methods {
			m.Methods[i] = strings.ToUpper(meth)
		}
	}
}

// Auth sets the authentication mode.
func Auth(mode AuthMode) RouteOption {
	return func(m *RouteMeta) {
		m.Auth = mode
	}
}

// Type sets the request type.
func Type(t RouteType) RouteOption {
	return func(m *RouteMeta) {
		m.Type = t
	}
}

// CheckCSRF enables or disables CSRF validation.
func CheckCSRF(enabled bool) RouteOption {
	return func(m *RouteMeta) {
		m.CSRF = &enabled
	}
}

// CORS allows cross-origin requests from origin.
func CORS(origin string) RouteOption {
	return func(m *RouteMeta) {
		m.CORS = origin
	}
}

// Website marks a frontend route taking part in site and language handling.
func Website(enabled bool) RouteOption {
	return func(m *RouteMeta) {
		m.Website = enabled
	}
}

// Multilang overrides whether a website route accepts a language prefix.
func Multilang(enabled bool) RouteOption {
	return func(m *RouteMeta) {
		m.Multilang = &enabled
	}
}

// SaveSession controls whether the session is persisted after the request.
func SaveSession(enabled bool) RouteOption {
	return func(m *RouteMeta) {
		m.SaveSession = &enabled
	}
}

// ReadOnly rolls the transaction back instead of committing it.
func ReadOnly(enabled bool) RouteOption {
	return func(m *RouteMeta) {
		m.ReadOnly = enabled
	}
}

// Use wraps the handler with endpoint-level middlewares.
func Use(mw ...Middleware) RouteOption {
	return func(m *RouteMeta) {
		m.Middlewares = append(slices.Clone(m.Middlewares), mw...)
	}
}

// CSRFEnabled reports whether CSRF validation applies. Defaults to true for
// http routes and false for json routes.
func (m RouteMeta) CSRFEnabled() bool {
	if m.CSRF != nil {
		return *m.CSRF
	}
	return m.Type == TypeHTTP
}

// IsMultilang reports whether the route accepts a language prefix.
// Defaults to the Website flag.
func (m RouteMeta) IsMultilang() bool {
	if m.Multilang != nil {
		return *m.Multilang
	}
	return m.Website
}

// ShouldSaveSession defaults to true.
func (m RouteMeta) ShouldSaveSession() bool {
	return m.SaveSession == nil || *m.SaveSession
}

// AllowsMethod reports whether method is accepted.
func (m RouteMeta) AllowsMethod(method string) bool {
	if len(m.Methods) == 0 {
		return true
	}
	if method == http.MethodHead && slices.Contains(m.Methods, http.MethodGet) {
		return true
	}
	return slices.Contains(m.Methods, method)
}

// withDefaults fills unset fields after merging.
func (m RouteMeta) withDefaults() RouteMeta {
	if m.Auth == "" {
		m.Auth = AuthUser
	}
	if m.Type == "" {
		m.Type = TypeHTTP
	}
	return m
}
