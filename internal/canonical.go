package internal

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/tonyluong2025/verp-sub017/pkg/i18n"
)

// DefaultMaxReroutes bounds internal reroutes per request.
const DefaultMaxReroutes = 10

// LangCookie remembers the last resolved frontend language.
const LangCookie = "frontend_lang"

// DefaultBotSignatures are matched case-insensitively against User-Agent.
// Bots are never redirected to a language prefix so default-language
// content stays indexable.
var DefaultBotSignatures = []string{
	"bot", "crawl", "slurp", "spider", "curl", "wget",
	"facebookexternalhit", "whatsapp", "trendsmap", "linkedinbot",
	"redditbot", "twitterbot", "ubermetrics", "lighthouse",
}

// CanonicalAction is the outcome of a canonicalization pass.
type CanonicalAction int

const (
	// ActionServe keeps the URL and serves in Decision.Lang.
	ActionServe CanonicalAction = iota
	// ActionRedirect sends the client to Decision.Path.
	ActionRedirect
	// ActionReroute dispatches Decision.Path internally.
	ActionReroute
)

// Decision is the canonicalizer verdict for one pass.
type Decision struct {
	Lang   i18n.Lang
	Path   string
	Code   int
	Action CanonicalAction
}

// CanonicalInput describes a frontend request.
type CanonicalInput struct {
	Langs *i18n.Set
	// Forced is set once a reroute resolved the language.
	Forced *i18n.Lang
	// Multilang reports whether the route serving path accepts a language
	// prefix. Unrouted paths count as multilang.
	Multilang      func(path string) bool
	Method         string
	Path           string
	RawQuery       string
	Cookie         string
	AcceptLanguage string
	UserAgent      string
}

// Canonicalizer enforces language prefixes on frontend URLs.
type Canonicalizer struct {
	botSignatures []string
	maxReroutes   int
}

// NewCanonicalizer creates a canonicalizer. Zero or nil arguments select
// DefaultMaxReroutes and DefaultBotSignatures.
func NewCanonicalizer(maxReroutes int, botSignatures []string) *Canonicalizer {
	if maxReroutes <= 0 {
		maxReroutes = DefaultMaxReroutes
	}
	if botSignatures == nil {
		botSignatures = DefaultBotSignatures
	}
	sigs := make([]string, len(botSignatures))
	for i, s := range botSignatures {
		sigs[i] = strings.ToLower(s)
	}
	return &Canonicalizer{botSignatures: sigs, maxReroutes: maxReroutes}
}

// MaxReroutes returns the reroute limit.
func (c *Canonicalizer) MaxReroutes() int {
	return c.maxReroutes
}

// IsBot reports whether userAgent belongs to a crawler.
func (c *Canonicalizer) IsBot(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	return slices.ContainsFunc(c.botSignatures, func(sig string) bool {
		return strings.Contains(ua, sig)
	})
}

// splitLang splits "/fr/x" into ("fr", "/x"). trailing is set for "/fr/".
func splitLang(path string) (first, rest string, trailing bool) {
	trimmed := strings.TrimPrefix(path, "/")
	first, tail, found := strings.Cut(trimmed, "/")
	if !found {
		return first, "/", false
	}
	if tail == "" {
		return first, "/", true
	}
	return first, "/" + tail, false
}

// Decide runs one canonicalization pass.
func (c *Canonicalizer) Decide(in CanonicalInput) Decision {
	def := in.Langs.Default()
	if in.Forced != nil {
		return Decision{Action: ActionServe, Lang: *in.Forced}
	}
	safe := in.Method == http.MethodGet || in.Method == http.MethodHead
	multilang := in.Multilang
	if multilang == nil {
		multilang = func(string) bool { return true }
	}
	// POST and other unsafe methods are rerouted instead of redirected.
	move := func(code int, target, reroute string, lang i18n.Lang) Decision {
		if safe {
			return Decision{Action: ActionRedirect, Code: code, Path: withQuery(target, in.RawQuery), Lang: lang}
		}
		return Decision{Action: ActionReroute, Path: reroute, Lang: lang}
	}

	first, rest, trailing := splitLang(in.Path)
	if lang, ok := in.Langs.Lookup(first); ok {
		switch {
		case !multilang(rest):
			return move(http.StatusMovedPermanently, rest, rest, def)
		case in.Langs.IsDefault(lang):
			return move(http.StatusMovedPermanently, rest, rest, def)
		case first != lang.URLCode:
			return move(http.StatusMovedPermanently, langPath(lang, rest), rest, lang)
		case trailing:
			return move(http.StatusMovedPermanently, langPath(lang, "/"), rest, lang)
		}
		return Decision{Action: ActionReroute, Path: rest, Lang: lang}
	}

	if !multilang(in.Path) {
		return Decision{Action: ActionServe, Lang: def}
	}
	pref := in.Langs.Preferred(in.Cookie, in.AcceptLanguage)
	if !in.Langs.IsDefault(pref) && safe && !c.IsBot(in.UserAgent) {
		return Decision{
			Action: ActionRedirect,
			Code:   http.StatusFound,
			Path:   withQuery(langPath(pref, in.Path), in.RawQuery),
			Lang:   pref,
		}
	}
	return Decision{Action: ActionServe, Lang: def}
}

// langPath prefixes path with the language URL code; the homepage maps to
// "/<code>" without a trailing slash.
func langPath(l i18n.Lang, path string) string {
	if path == "/" || path == "" {
		return "/" + l.URLCode
	}
	return "/" + l.URLCode + path
}

func withQuery(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	return path + "?" + rawQuery
}

// RerouteHistory records the paths dispatched for one request.
type RerouteHistory struct {
	seen []string
	max  int
}

// NewRerouteHistory starts a history at the requested path.
func NewRerouteHistory(start string, max int) *RerouteHistory {
	if max <= 0 {
		max = DefaultMaxReroutes
	}
	return &RerouteHistory{seen: []string{start}, max: max}
}

// Add records a reroute to path. Revisiting a path fails with
// ErrRerouteLoop; going past the limit fails with ErrRerouteLimit.
func (h *RerouteHistory) Add(path string) error {
	if slices.Contains(h.seen, path) {
		return fmt.Errorf("%w: %s", ErrRerouteLoop, strings.Join(append(h.seen, path), " -> "))
	}
	if len(h.seen) > h.max {
		return fmt.Errorf("%w: %d", ErrRerouteLimit, h.max)
	}
	h.seen = append(h.seen, path)
	return nil
}

// Count returns the number of reroutes performed.
func (h *RerouteHistory) Count() int {
	return len(h.seen) - 1
}
