// Package web provides the built-in routes every deployment serves: login,
// logout, session information, version information, health probes and
// metrics.
package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	verp "github.com/tonyluong2025/verp-sub017"
	"github.com/tonyluong2025/verp-sub017/pkg/health"
	"github.com/tonyluong2025/verp-sub017/pkg/jsonrpc"
)

// Name is the module name.
const Name = "web"

// Default paths.
const (
	HomePath      = "/web"
	LivenessPath  = "/web/health/live"
	ReadinessPath = "/web/health/ready"
	MetricsPath   = "/metrics"
)

// DefaultHealthTimeout bounds the readiness checks.
const DefaultHealthTimeout = 5 * time.Second

// Config configures the web module.
type Config struct {
	// Metrics is served on MetricsPath when set.
	Metrics http.Handler
	// Checks are run by the readiness probe.
	Checks health.Checks
	// Version is reported by version_info. Defaults to "dev".
	Version       string
	HealthTimeout time.Duration
}

// Module is the web module.
type Module struct {
	cfg Config
}

// New creates the web module.
func New(cfg Config) *Module {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	return &Module{cfg: cfg}
}

// Name implements verp.Module.
func (m *Module) Name() string { return Name }

// Routes implements verp.Module.
func (m *Module) Routes(r verp.Registrar) {
	r.Route("web.Home", "login", m.login,
		verp.Routes(verp.LoginPath),
		verp.Methods(http.MethodGet, http.MethodPost),
		verp.Auth(verp.AuthNone),
	)
	r.Route("web.Session", "logout", m.logout,
		verp.Routes("/web/session/logout"),
		verp.Auth(verp.AuthNone),
		verp.CSRF(false),
	)
	r.Route("web.Session", "get_session_info", m.sessionInfo,
		verp.Routes("/web/session/get_session_info"),
		verp.Type(verp.TypeJSON),
		verp.Auth(verp.AuthUser),
	)
	r.Route("web.WebClient", "version_info", m.versionInfo,
		verp.Routes("/web/webclient/version_info"),
		verp.Type(verp.TypeJSON),
		verp.Auth(verp.AuthNone),
	)
	r.Route("web.Health", "live", m.live,
		verp.Routes(LivenessPath),
		verp.Methods(http.MethodGet, http.MethodHead),
		verp.Auth(verp.AuthNone),
		verp.SaveSession(false),
	)
	r.Route("web.Health", "ready", m.ready,
		verp.Routes(ReadinessPath),
		verp.Methods(http.MethodGet, http.MethodHead),
		verp.Auth(verp.AuthNone),
		verp.SaveSession(false),
	)
	if m.cfg.Metrics != nil {
		r.Route("web.Metrics", "metrics", m.metrics,
			verp.Routes(MetricsPath),
			verp.Methods(http.MethodGet),
			verp.Auth(verp.AuthNone),
			verp.SaveSession(false),
		)
	}
}

func (m *Module) login(c verp.Context) (any, error) {
	redirect := safeRedirect(verp.Param[string](c, "redirect"), HomePath)
	req := c.Request()

	if req.Method == http.MethodGet {
		if c.Session().IsAuthenticated() && c.Session().Tenant == c.Tenant() {
			return verp.Redirect(redirect, http.StatusSeeOther), nil
		}
		return loginForm(c, redirect, ""), nil
	}

	var form loginParams
	if err := c.Bind(&form); err != nil {
		return nil, err
	}
	login, password := strings.TrimSpace(form.Login), form.Password
	if login == "" || password == "" {
		return loginForm(c, redirect, "Login and password are required"), nil
	}

	err := c.Login(login, password)
	switch {
	case err == nil:
		return verp.Redirect(redirect, http.StatusSeeOther), nil
	case errors.Is(err, verp.ErrNoTenant):
		return loginForm(c, redirect, "No database selected"), nil
	case verp.IsKind(err, verp.KindAccessDenied):
		c.LogInfo("login failed", "login", login)
		return loginForm(c, redirect, "Wrong login/password"), nil
	default:
		return nil, err
	}
}

type loginParams struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (m *Module) logout(c verp.Context) (any, error) {
	c.Logout()
	return verp.Redirect(safeRedirect(verp.Param[string](c, "redirect"), verp.LoginPath), http.StatusSeeOther), nil
}

// SessionInfo is the result of get_session_info.
type SessionInfo struct {
	Context map[string]any `json:"user_context"`
	DB      string         `json:"db"`
	Login   string         `json:"username"`
	UID     int64          `json:"uid"`
}

func (m *Module) sessionInfo(c verp.Context) (any, error) {
	sess := c.Session()
	ctx := sess.ContextCopy()
	if ctx == nil {
		ctx = map[string]any{}
	}
	if lang := c.Lang().Code; lang != "" {
		ctx["lang"] = lang
	}
	return SessionInfo{
		UID:     c.UID(),
		DB:      c.Tenant(),
		Login:   sess.Login,
		Context: ctx,
	}, nil
}

// VersionInfo is the result of version_info.
type VersionInfo struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion string `json:"protocol_version"`
}

func (m *Module) versionInfo(verp.Context) (any, error) {
	return VersionInfo{ServerVersion: m.cfg.Version, ProtocolVersion: jsonrpc.Version}, nil
}

func (m *Module) live(verp.Context) (any, error) {
	return verp.JSON(http.StatusOK, health.Report{Status: health.StatusHealthy})
}

func (m *Module) ready(c verp.Context) (any, error) {
	rep := health.Run(c.Request().Context(), m.checks(c),
		health.WithTimeout(m.cfg.HealthTimeout),
		health.WithLogger(c.Logger()),
	)
	status := http.StatusOK
	if !rep.Healthy() {
		status = http.StatusServiceUnavailable
	}
	return verp.JSON(status, rep)
}

// checks adds a probe of the request tenant to the configured checks.
func (m *Module) checks(c verp.Context) health.Checks {
	checks := make(health.Checks, len(m.cfg.Checks)+1)
	for name, fn := range m.cfg.Checks {
		checks[name] = fn
	}
	if c.Tenant() != "" {
		checks["tenant"] = func(context.Context) error {
			_, err := c.Env()
			return err
		}
	}
	return checks
}

func (m *Module) metrics(c verp.Context) (any, error) {
	return m.cfg.Metrics, nil
}

// safeRedirect keeps redirects on the same host.
func safeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return fallback
	}
	return target
}
