// Package hostrouter resolves the tenant database serving a request from
// its Host header.
//
// Two mechanisms combine:
//
//   - Static routes: exact hosts ("shop.example.com") and wildcards
//     ("*.example.com"). The route value is the tenant name; in wildcard
//     routes "%d" stands for the matched subdomain.
//   - A database filter: a regular expression in which "%h" is replaced by
//     the escaped host and "%d" by its first label ("www." stripped). It
//     restricts which databases a host may select, e.g. "^%d$".
//
// Exact routes take priority over wildcards. Matching is case-insensitive
// and ports are ignored.
package hostrouter

import (
	"net/http"
	"regexp"
	"strings"
)

// Routes maps host patterns to tenant names.
type Routes map[string]string

// Router resolves hosts to tenants.
type Router struct {
	exact    map[string]string
	wildcard map[string]string // "example.com" for "*.example.com"
	filter   string
}

// New builds a Router. An empty filter allows every database.
func New(routes Routes, filter string) *Router {
	r := &Router{
		exact:    make(map[string]string),
		wildcard: make(map[string]string),
		filter:   filter,
	}
	for pattern, tenant := range routes {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(pattern, "*."); ok {
			r.wildcard[rest] = tenant
		} else {
			r.exact[pattern] = tenant
		}
	}
	return r
}

// Resolve returns the statically routed tenant of host.
func (r *Router) Resolve(host string) (string, bool) {
	host = normalizeHost(host)
	if t, ok := r.exact[host]; ok {
		return t, true
	}
	if sub, domain, ok := strings.Cut(host, "."); ok {
		if t, ok := r.wildcard[domain]; ok {
			return strings.ReplaceAll(t, "%d", sub), true
		}
	}
	return "", false
}

// Filter returns the databases of dbs that host may select, keeping order.
func (r *Router) Filter(host string, dbs []string) []string {
	if r.filter == "" {
		return dbs
	}
	re, err := r.compile(host)
	if err != nil {
		return nil
	}
	var out []string
	for _, db := range dbs {
		if re.MatchString(db) {
			out = append(out, db)
		}
	}
	return out
}

// Allowed reports whether host may select db.
func (r *Router) Allowed(host, db string) bool {
	return len(r.Filter(host, []string{db})) == 1
}

func (r *Router) compile(host string) (*regexp.Regexp, error) {
	h := normalizeHost(host)
	h = strings.TrimPrefix(h, "www.")
	d, _, _ := strings.Cut(h, ".")
	expr := strings.NewReplacer(
		"%h", regexp.QuoteMeta(h),
		"%d", regexp.QuoteMeta(d),
	).Replace(r.filter)
	// Anchored at the start only, like a prefix match.
	return regexp.Compile(`^(?:` + expr + `)`)
}

// Domain returns the normalized host of r: lowercase, port stripped.
func Domain(r *http.Request) string {
	return normalizeHost(r.Host)
}

// Subdomain returns the part of the request host before baseDomain, or "".
func Subdomain(r *http.Request, baseDomain string) string {
	host := normalizeHost(r.Host)
	sub, ok := strings.CutSuffix(host, "."+strings.ToLower(baseDomain))
	if !ok {
		return ""
	}
	return sub
}

func normalizeHost(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		// "[::1]:8080" keeps its brackets; a bare "[::1]" has no port.
		if !strings.Contains(host[idx:], "]") {
			host = host[:idx]
		}
	}
	return strings.ToLower(host)
}
