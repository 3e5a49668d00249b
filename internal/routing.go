package internal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// placeholderRe matches `<name>`, `<conv:name>` and `<conv(args):name>`.
var placeholderRe = regexp.MustCompile(`<(?:([A-Za-z_][A-Za-z0-9_]*)(?:\(([^)]*)\))?:)?([A-Za-z_][A-Za-z0-9_]*)>`)

var allMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodTrace,
}

type routeParam struct {
	conv Converter
	name string
	key  string // chi URL param key
}

// patternPart is either static text or a placeholder.
type patternPart struct {
	param  *routeParam
	static string
}

type compiledRoute struct {
	endpoint   *Endpoint
	pattern    string
	chiPattern string
	params     []*routeParam
	parts      []patternPart
}

// normalizePath strips trailing slashes so "/x" and "/x/" are one route.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

// compilePattern translates a declared pattern into a chi pattern.
func compilePattern(pattern string, reg *ConverterRegistry) (*compiledRoute, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrBadPattern, pattern)
	}
	norm := normalizePath(pattern)
	cr := &compiledRoute{pattern: norm}

	var (
		b    strings.Builder
		last int
		seen = make(map[string]bool)
	)
	addStatic := func(s string) error {
		if strings.ContainsAny(s, "<>{}*") {
			return fmt.Errorf("%w: %q", ErrBadPattern, pattern)
		}
		if s != "" {
			b.WriteString(s)
			cr.parts = append(cr.parts, patternPart{static: s})
		}
		return nil
	}
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(norm, -1) {
		if err := addStatic(norm[last:loc[0]]); err != nil {
			return nil, err
		}
		convName := "default"
		if loc[2] >= 0 {
			convName = norm[loc[2]:loc[3]]
		}
		var args []string
		if loc[4] >= 0 {
			args = parseConverterArgs(norm[loc[4]:loc[5]])
		}
		name := norm[loc[6]:loc[7]]
		if seen[name] {
			return nil, fmt.Errorf("%w: %q repeats <%s>", ErrBadPattern, pattern, name)
		}
		seen[name] = true

		conv, err := reg.Build(convName, args)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", pattern, err)
		}
		p := &routeParam{conv: conv, name: name, key: name}
		if _, ok := conv.(pathConverter); ok {
			if loc[1] != len(norm) {
				return nil, fmt.Errorf("%w: %q: path placeholder must be last", ErrBadPattern, pattern)
			}
			p.key = "*"
			b.WriteString("*")
		} else {
			b.WriteString("{" + name + ":" + conv.Regexp() + "}")
		}
		cr.params = append(cr.params, p)
		cr.parts = append(cr.parts, patternPart{param: p})
		last = loc[1]
	}
	if err := addStatic(norm[last:]); err != nil {
		return nil, err
	}
	cr.chiPattern = b.String()
	return cr, nil
}

func methodsOf(m RouteMeta) []string {
	if len(m.Methods) == 0 {
		return allMethods
	}
	methods := append([]string(nil), m.Methods...)
	add := func(meth string) {
		for _, x := range methods {
			if x == meth {
				return
			}
		}
		methods = append(methods, meth)
	}
	for _, x := range m.Methods {
		if x == http.MethodGet {
			add(http.MethodHead)
		}
	}
	if m.CORS != "" {
		add(http.MethodOptions)
	}
	return methods
}

// RoutingTable is the compiled, immutable route set of one tenant.
type RoutingTable struct {
	builtAt time.Time
	mux     *chi.Mux
	routes  map[string]*compiledRoute // method + " " + chi pattern
	byKey   map[string][]*compiledRoute
	tenant  string
	rules   []Rule
}

// BuildTable compiles rules. Invalid patterns are logged and skipped; on
// duplicate (method, pattern) pairs the first rule wins.
func BuildTable(tenant string, rules []Rule, reg *ConverterRegistry, logger *slog.Logger) (t *RoutingTable, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("%w: %v", ErrBadPattern, r)
		}
	}()

	t = &RoutingTable{
		builtAt: time.Now(),
		mux:     chi.NewMux(),
		routes:  make(map[string]*compiledRoute),
		byKey:   make(map[string][]*compiledRoute),
		tenant:  tenant,
	}
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for _, rule := range rules {
		cr, err := compilePattern(rule.Pattern, reg)
		if err != nil {
			logger.Warn("skipping route", slog.String("route", rule.Endpoint.Key), slog.Any("error", err))
			continue
		}
		cr.endpoint = rule.Endpoint
		registered := false
		for _, m := range methodsOf(rule.Endpoint.Meta) {
			key := m + " " + cr.chiPattern
			if prev, dup := t.routes[key]; dup {
				if prev.endpoint != cr.endpoint {
					logger.Warn("route shadowed by earlier declaration",
						slog.String("pattern", rule.Pattern),
						slog.String("method", m),
						slog.String("route", rule.Endpoint.Key),
						slog.String("kept", prev.endpoint.Key),
					)
				}
				continue
			}
			t.routes[key] = cr
			t.mux.Method(m, cr.chiPattern, noop)
			registered = true
		}
		if registered {
			t.rules = append(t.rules, Rule{Pattern: cr.pattern, Endpoint: rule.Endpoint})
			t.byKey[rule.Endpoint.Key] = append(t.byKey[rule.Endpoint.Key], cr)
		}
	}
	return t, nil
}

// Tenant returns the tenant the table was built for.
func (t *RoutingTable) Tenant() string { return t.tenant }

// BuiltAt returns the build time.
func (t *RoutingTable) BuiltAt() time.Time { return t.builtAt }

// Rules returns the compiled rules in declaration order.
func (t *RoutingTable) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Endpoint returns the endpoint registered under key.
func (t *RoutingTable) Endpoint(key string) (*Endpoint, bool) {
	routes := t.byKey[key]
	if len(routes) == 0 {
		return nil, false
	}
	return routes[0].endpoint, true
}

// Match is a routing decision: the endpoint and the raw segment values.
// Typed arguments are produced by Bind once an environment exists.
type Match struct {
	Endpoint *Endpoint
	Raw      map[string]string
	route    *compiledRoute
	Pattern  string
}

// Match finds the route for method and path.
func (t *RoutingTable) Match(method, path string) (*Match, bool) {
	rctx := chi.NewRouteContext()
	pattern := t.mux.Find(rctx, method, normalizePath(path))
	if pattern == "" {
		return nil, false
	}
	cr, ok := t.routes[method+" "+pattern]
	if !ok {
		return nil, false
	}
	raw := make(map[string]string, len(cr.params))
	for _, p := range cr.params {
		raw[p.name] = rctx.URLParam(p.key)
	}
	return &Match{Endpoint: cr.endpoint, Raw: raw, route: cr, Pattern: cr.pattern}, true
}

// Bind converts the raw segments with env. A converter mismatch is reported
// as ErrConverterMismatch.
func (m *Match) Bind(ctx context.Context, env Env) (map[string]any, error) {
	args := make(map[string]any, len(m.route.params))
	for _, p := range m.route.params {
		v, err := p.conv.Parse(ctx, env, m.Raw[p.name])
		if err != nil {
			return nil, err
		}
		args[p.name] = v
	}
	return args, nil
}

// rebindArgs moves record arguments parsed with a placeholder environment
// onto env.
func rebindArgs(args map[string]any, env Env) {
	for k, v := range args {
		if rec, ok := v.(Records); ok {
			args[k] = rec.WithEnv(env)
		}
	}
}

// URL builds the path of the endpoint identified by key from values. Among
// the patterns whose placeholders are all provided, the one using the most
// values wins.
func (t *RoutingTable) URL(ctx context.Context, key string, values map[string]any, opts FormatOptions) (string, error) {
	var best *compiledRoute
	for _, cr := range t.byKey[key] {
		if hasAll(cr, values) && (best == nil || len(cr.params) > len(best.params)) {
			best = cr
		}
	}
	if best == nil {
		return "", fmt.Errorf("no route %s accepts %d values", key, len(values))
	}
	var b strings.Builder
	for _, part := range best.parts {
		if part.param == nil {
			b.WriteString(part.static)
			continue
		}
		s, err := part.param.conv.Format(ctx, values[part.param.name], opts)
		if err != nil {
			return "", err
		}
		if part.param.key == "*" {
			b.WriteString(s)
		} else {
			b.WriteString(url.PathEscape(s))
		}
	}
	return b.String(), nil
}

func hasAll(cr *compiledRoute, values map[string]any) bool {
	for _, p := range cr.params {
		if _, ok := values[p.name]; !ok {
			return false
		}
	}
	return true
}
