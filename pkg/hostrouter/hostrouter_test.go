package hostrouter_test

import (
	"net/http/httptest"
	"testing"

	"github.com/tonyluong2025/verp-sub017/pkg/hostrouter"
)

func TestRouter_Resolve(t *testing.T) {
	router := hostrouter.New(hostrouter.Routes{
		"shop.example.com": "shop",
		"*.example.com":    "%d",
		"*.tenants.io":     "shared",
	}, "")

	tests := []struct {
		name   string
		host   string
		want   string
		wantOK bool
	}{
		{"exact", "shop.example.com", "shop", true},
		{"exact with port and case", "Shop.Example.COM:8069", "shop", true},
		{"wildcard subdomain substitution", "acme.example.com", "acme", true},
		{"wildcard fixed tenant", "foo.tenants.io", "shared", true},
		{"apex does not match wildcard", "example.com", "", false},
		{"unknown", "other.org", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := router.Resolve(tt.host)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Resolve(%q) = (%q, %v), want (%q, %v)", tt.host, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRouter_Filter(t *testing.T) {
	dbs := []string{"acme", "acme_test", "globex", "www"}

	tests := []struct {
		name   string
		filter string
		host   string
		want   []string
	}{
		{"no filter", "", "acme.example.com", dbs},
		{"subdomain exact", "^%d$", "acme.example.com", []string{"acme"}},
		{"www stripped", "^%d$", "www.globex.com", []string{"globex"}},
		{"subdomain prefix", "%d", "acme.example.com:8069", []string{"acme", "acme_test"}},
		{"full host escaped", "^%h$", "acme.example.com", nil},
		{"static filter", "^acme", "anything", []string{"acme", "acme_test"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hostrouter.New(nil, tt.filter).Filter(tt.host, dbs)
			if len(got) != len(tt.want) {
				t.Fatalf("Filter = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Filter = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestRouter_Allowed(t *testing.T) {
	router := hostrouter.New(nil, "^%d$")
	if !router.Allowed("acme.example.com", "acme") {
		t.Error("acme should be allowed for acme.example.com")
	}
	if router.Allowed("acme.example.com", "globex") {
		t.Error("globex should not be allowed for acme.example.com")
	}
}

func TestDomainAndSubdomain(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Host = "Bar.Foo.Example.com:443"

	if got := hostrouter.Domain(req); got != "bar.foo.example.com" {
		t.Errorf("Domain = %q", got)
	}
	if got := hostrouter.Subdomain(req, "example.com"); got != "bar.foo" {
		t.Errorf("Subdomain = %q", got)
	}
	if got := hostrouter.Subdomain(req, "other.com"); got != "" {
		t.Errorf("Subdomain other = %q", got)
	}

	req.Host = "[::1]:8080"
	if got := hostrouter.Domain(req); got != "[::1]" {
		t.Errorf("Domain ipv6 = %q", got)
	}
}
