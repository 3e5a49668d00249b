// Package website provides the routes shared by every published website.
package website

import (
	"net/http"
	"net/url"
	"strings"

	verp "github.com/tonyluong2025/verp-sub017"
)

// Name is the module name.
const Name = "website"

// LangCookieMaxAge keeps the chosen language for a year.
const LangCookieMaxAge = 365 * 24 * 60 * 60

// Module is the website module.
type Module struct{}

// Name implements verp.Module.
func (Module) Name() string { return Name }

// Routes implements verp.Module.
func (m Module) Routes(r verp.Registrar) {
	r.Route("website.Website", "change_lang", m.changeLang,
		verp.Routes("/website/lang/<string:lang>"),
		verp.Methods(http.MethodGet),
		verp.Auth(verp.AuthPublic),
		verp.Website(true),
		verp.Multilang(false),
	)
}

// changeLang stores the chosen language and sends the visitor to the
// localized version of r.
func (Module) changeLang(c verp.Context) (any, error) {
	site := c.Site()
	if site == nil {
		return nil, verp.ErrNotFound("No website on this host")
	}
	langs := site.Langs()
	lang, ok := langs.Lookup(verp.Arg[string](c, "lang"))
	if !ok {
		return nil, verp.ErrNotFound("Unknown language")
	}

	target := localPath(verp.ParamDefault(c, "r", "/"))
	switch {
	case langs.IsDefault(lang):
	case target == "/":
		target = "/" + lang.URLCode
	default:
		target = "/" + lang.URLCode + target
	}
	c.SetCookie(verp.LangCookie, lang.Code, LangCookieMaxAge)
	return verp.Redirect(target, http.StatusSeeOther), nil
}

// localPath drops anything that would leave the host.
func localPath(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return "/"
	}
	return target
}
