package website_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verp "github.com/tonyluong2025/verp-sub017"
	"github.com/tonyluong2025/verp-sub017/modules/website"
	"github.com/tonyluong2025/verp-sub017/pkg/session/filestore"
	"github.com/tonyluong2025/verp-sub017/verptest"
)

const sitesYAML = `
sites:
  - name: shop
    tenant: acme
    default_lang: en_US
    languages:
      - {code: en_US, url_code: en, name: English}
      - {code: fr_FR, url_code: fr, name: Français}
`

func newHandler(t *testing.T, withSites bool) http.Handler {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	opts := []verp.Option{
		verp.WithModules(website.Module{}),
		verp.WithRegistry(verptest.NewRegistry()),
		verp.WithDirectory(verptest.NewDirectory()),
		verp.WithDefaultTenant("acme"),
		verp.WithSession(store),
	}
	if withSites {
		sites, err := verp.LoadSites(strings.NewReader(sitesYAML))
		require.NoError(t, err)
		opts = append(opts, verp.WithSites(sites))
	}
	app, err := verp.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app.Router()
}

func langCookies(rec *httptest.ResponseRecorder) []string {
	var out []string
	for _, c := range rec.Result().Cookies() {
		if c.Name == verp.LangCookie {
			out = append(out, c.Value)
		}
	}
	return out
}

func TestChangeLang(t *testing.T) {
	t.Parallel()

	h := newHandler(t, true)

	tests := []struct {
		name     string
		path     string
		location string
		cookie   string
	}{
		{"to french root", "/website/lang/fr", "/fr", "fr_FR"},
		{"to french page", "/website/lang/fr_FR?r=/shop/cart", "/fr/shop/cart", "fr_FR"},
		{"to default", "/website/lang/en?r=/shop", "/shop", "en_US"},
		{"foreign target", "/website/lang/fr?r=//evil.example", "/fr", "fr_FR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
			assert.Equal(t, []string{tt.cookie}, langCookies(rec))
		})
	}
}

func TestChangeLang_UnknownLanguage(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newHandler(t, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/website/lang/de", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, langCookies(rec), "de")
}

func TestChangeLang_NoSite(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newHandler(t, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/website/lang/fr", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
