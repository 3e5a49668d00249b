package internal_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyluong2025/verp-sub017/internal"
	"github.com/tonyluong2025/verp-sub017/pkg/i18n"
)

func siteLangs(t *testing.T) *i18n.Set {
	t.Helper()
	s, err := i18n.NewSet("en_US",
		i18n.Lang{Code: "en_US", URLCode: "en", Name: "English"},
		i18n.Lang{Code: "fr_FR", URLCode: "fr", Name: "Français"},
		i18n.Lang{Code: "de_DE", URLCode: "de", Name: "Deutsch"},
	)
	require.NoError(t, err)
	return s
}

func TestCanonicalizer_Decide(t *testing.T) {
	t.Parallel()

	langs := siteLangs(t)
	c := internal.NewCanonicalizer(0, nil)
	onlyContact := func(p string) bool { return p != "/web/login" }

	tests := []struct {
		name       string
		in         internal.CanonicalInput
		wantAction internal.CanonicalAction
		wantCode   int
		wantPath   string
		wantLang   string
	}{
		{
			name:       "default lang prefix is dropped",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/en/contact"},
			wantAction: internal.ActionRedirect,
			wantCode:   http.StatusMovedPermanently,
			wantPath:   "/contact",
			wantLang:   "en_US",
		},
		{
			name:       "default lang homepage",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/en"},
			wantAction: internal.ActionRedirect,
			wantCode:   http.StatusMovedPermanently,
			wantPath:   "/",
			wantLang:   "en_US",
		},
		{
			name:       "locale alias is canonicalized",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/fr_FR/contact"},
			wantAction: internal.ActionRedirect,
			wantCode:   http.StatusMovedPermanently,
			wantPath:   "/fr/contact",
			wantLang:   "fr_FR",
		},
		{
			name:       "wrong case is canonicalized",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/FR/contact", RawQuery: "a=1"},
			wantAction: internal.ActionRedirect,
			wantCode:   http.StatusMovedPermanently,
			wantPath:   "/fr/contact?a=1",
			wantLang:   "fr_FR",
		},
		{
			name:       "homepage trailing slash",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/fr/"},
			wantAction: internal.ActionRedirect,
			wantCode:   http.StatusMovedPermanently,
			wantPath:   "/fr",
			wantLang:   "fr_FR",
		},
		{
			name:       "canonical lang url is rerouted",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/fr/contact"},
			wantAction: internal.ActionReroute,
			wantPath:   "/contact",
			wantLang:   "fr_FR",
		},
		{
			name:       "lang homepage is rerouted to root",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/fr"},
			wantAction: internal.ActionReroute,
			wantPath:   "/",
			wantLang:   "fr_FR",
		},
		{
			name:       "lang prefix on a single-language route",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/fr/web/login", Multilang: onlyContact},
			wantAction: internal.ActionRedirect,
			wantCode:   http.StatusMovedPermanently,
			wantPath:   "/web/login",
			wantLang:   "en_US",
		},
		{
			name:       "preferred lang from cookie",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/contact", Cookie: "fr_FR"},
			wantAction: internal.ActionRedirect,
			wantCode:   http.StatusFound,
			wantPath:   "/fr/contact",
			wantLang:   "fr_FR",
		},
		{
			name:       "preferred lang from header on homepage",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/", AcceptLanguage: "de-DE,de;q=0.9"},
			wantAction: internal.ActionRedirect,
			wantCode:   http.StatusFound,
			wantPath:   "/de",
			wantLang:   "de_DE",
		},
		{
			name:       "bots are served the default lang",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/contact", Cookie: "fr", UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1)"},
			wantAction: internal.ActionServe,
			wantLang:   "en_US",
		},
		{
			name:       "post is never redirected",
			in:         internal.CanonicalInput{Method: http.MethodPost, Path: "/contact", Cookie: "fr"},
			wantAction: internal.ActionServe,
			wantLang:   "en_US",
		},
		{
			name:       "post with a default prefix is rerouted",
			in:         internal.CanonicalInput{Method: http.MethodPost, Path: "/en/contact"},
			wantAction: internal.ActionReroute,
			wantPath:   "/contact",
			wantLang:   "en_US",
		},
		{
			name:       "single-language route ignores preference",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/web/login", Cookie: "fr", Multilang: onlyContact},
			wantAction: internal.ActionServe,
			wantLang:   "en_US",
		},
		{
			name:       "default preference is served in place",
			in:         internal.CanonicalInput{Method: http.MethodGet, Path: "/contact", AcceptLanguage: "ja"},
			wantAction: internal.ActionServe,
			wantLang:   "en_US",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := tt.in
			in.Langs = langs
			d := c.Decide(in)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantCode, d.Code)
			assert.Equal(t, tt.wantPath, d.Path)
			assert.Equal(t, tt.wantLang, d.Lang.Code)
		})
	}
}

func TestCanonicalizer_SingleRedirect(t *testing.T) {
	t.Parallel()

	langs := siteLangs(t)
	c := internal.NewCanonicalizer(0, nil)

	first := c.Decide(internal.CanonicalInput{
		Langs: langs, Method: http.MethodGet, Path: "/shop", AcceptLanguage: "fr",
	})
	require.Equal(t, internal.ActionRedirect, first.Action)
	require.Equal(t, "/fr/shop", first.Path)

	// Following the redirect lands on a canonical URL: a reroute, never a
	// second redirect.
	second := c.Decide(internal.CanonicalInput{
		Langs: langs, Method: http.MethodGet, Path: first.Path, AcceptLanguage: "fr",
	})
	require.Equal(t, internal.ActionReroute, second.Action)
	require.Equal(t, "/shop", second.Path)

	forced := second.Lang
	third := c.Decide(internal.CanonicalInput{
		Langs: langs, Method: http.MethodGet, Path: second.Path, AcceptLanguage: "fr", Forced: &forced,
	})
	assert.Equal(t, internal.ActionServe, third.Action)
	assert.Equal(t, "fr_FR", third.Lang.Code)
}

func TestCanonicalizer_IsBot(t *testing.T) {
	t.Parallel()

	c := internal.NewCanonicalizer(0, nil)
	assert.True(t, c.IsBot("curl/8.0"))
	assert.True(t, c.IsBot("LinkedInBot/1.0"))
	assert.False(t, c.IsBot("Mozilla/5.0 (X11; Linux x86_64) Firefox/130.0"))

	custom := internal.NewCanonicalizer(3, []string{"Probe"})
	assert.True(t, custom.IsBot("uptime-probe"))
	assert.False(t, custom.IsBot("curl/8.0"))
	assert.Equal(t, 3, custom.MaxReroutes())
}

func TestRerouteHistory(t *testing.T) {
	t.Parallel()

	t.Run("loop is detected", func(t *testing.T) {
		t.Parallel()
		h := internal.NewRerouteHistory("/a", 0)
		require.NoError(t, h.Add("/b"))
		require.NoError(t, h.Add("/c"))
		err := h.Add("/a")
		require.ErrorIs(t, err, internal.ErrRerouteLoop)
		assert.Contains(t, err.Error(), "/a -> /b -> /c -> /a")
		assert.Equal(t, 2, h.Count())
	})

	t.Run("limit is enforced", func(t *testing.T) {
		t.Parallel()
		h := internal.NewRerouteHistory("/p0", 2)
		require.NoError(t, h.Add("/p1"))
		require.NoError(t, h.Add("/p2"))
		require.ErrorIs(t, h.Add("/p3"), internal.ErrRerouteLimit)
	})
}
