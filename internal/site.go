package internal

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tonyluong2025/verp-sub017/pkg/i18n"
)

// ErrInvalidSite is returned for a site definition that cannot be served.
var ErrInvalidSite = errors.New("verp: invalid site")

// Rewrite maps an unrouted frontend path to another URL.
type Rewrite struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Code int    `yaml:"code"` // 301, 302 or 308; 0 means 301
}

// Site is a published website: the languages it serves and the hosts it
// answers on.
type Site struct {
	langs       *i18n.Set
	Name        string      `yaml:"name"`
	Tenant      string      `yaml:"tenant"`
	DefaultLang string      `yaml:"default_lang"`
	Domains     []string    `yaml:"domains"`
	Languages   []i18n.Lang `yaml:"languages"`
	Rewrites    []Rewrite   `yaml:"rewrites"`
}

// Langs returns the language set of the site.
func (s *Site) Langs() *i18n.Set {
	return s.langs
}

func (s *Site) init() error {
	if s.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidSite)
	}
	if len(s.Languages) == 0 {
		s.Languages = []i18n.Lang{{Code: "en_US", URLCode: "en", Name: "English"}}
	}
	if s.DefaultLang == "" {
		s.DefaultLang = s.Languages[0].Code
	}
	set, err := i18n.NewSet(s.DefaultLang, s.Languages...)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSite, s.Name, err)
	}
	s.langs = set
	for i, rw := range s.Rewrites {
		if !strings.HasPrefix(rw.From, "/") || rw.To == "" {
			return fmt.Errorf("%w: %s: rewrite %q", ErrInvalidSite, s.Name, rw.From)
		}
		switch rw.Code {
		case 0:
			s.Rewrites[i].Code = http.StatusMovedPermanently
		case http.StatusMovedPermanently, http.StatusFound, http.StatusPermanentRedirect:
		default:
			return fmt.Errorf("%w: %s: rewrite code %d", ErrInvalidSite, s.Name, rw.Code)
		}
		s.Rewrites[i].From = normalizePath(rw.From)
	}
	return nil
}

// rewrite returns the rewrite registered for path.
func (s *Site) rewrite(path string) (Rewrite, bool) {
	path = normalizePath(path)
	for _, rw := range s.Rewrites {
		if rw.From == path {
			return rw, true
		}
	}
	return Rewrite{}, false
}

// Sites indexes websites by host and tenant.
type Sites struct {
	byHost   map[string]*Site
	byTenant map[string]*Site
	all      []*Site
}

// NewSites validates sites and indexes them. The first site of a tenant
// serves hosts that no site claims.
func NewSites(sites ...*Site) (*Sites, error) {
	s := &Sites{
		byHost:   make(map[string]*Site),
		byTenant: make(map[string]*Site),
	}
	for _, site := range sites {
		if err := site.init(); err != nil {
			return nil, err
		}
		for _, d := range site.Domains {
			d = strings.ToLower(strings.TrimSpace(d))
			if other, ok := s.byHost[d]; ok {
				return nil, fmt.Errorf("%w: domain %s claimed by %s and %s", ErrInvalidSite, d, other.Name, site.Name)
			}
			s.byHost[d] = site
		}
		if _, ok := s.byTenant[site.Tenant]; !ok {
			s.byTenant[site.Tenant] = site
		}
		s.all = append(s.all, site)
	}
	return s, nil
}

// LoadSites reads a YAML document of the form:
//
//	sites:
//	  - name: shop
//	    tenant: acme
//	    domains: [shop.acme.test]
//	    default_lang: en_US
//	    languages:
//	      - {code: en_US, url_code: en, name: English}
//	      - {code: fr_FR, url_code: fr, name: Français}
//	    rewrites:
//	      - {from: /old-shop, to: /shop, code: 301}
func LoadSites(r io.Reader) (*Sites, error) {
	var doc struct {
		Sites []*Site `yaml:"sites"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	return NewSites(doc.Sites...)
}

// Lookup returns the site serving host for tenant. A nil *Sites has no
// sites.
func (s *Sites) Lookup(tenant, host string) (*Site, bool) {
	if s == nil {
		return nil, false
	}
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok && !strings.HasPrefix(host, "[") {
		host = h
	}
	if site, ok := s.byHost[host]; ok && (tenant == "" || site.Tenant == "" || site.Tenant == tenant) {
		return site, true
	}
	site, ok := s.byTenant[tenant]
	return site, ok
}

// All returns the sites in declaration order.
func (s *Sites) All() []*Site {
	if s == nil {
		return nil
	}
	return append([]*Site(nil), s.all...)
}
