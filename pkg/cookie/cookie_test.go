package cookie_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyluong2025/verp-sub017/pkg/cookie"
)

const secret = "0123456789abcdef0123456789abcdef"

// roundTrip copies the Set-Cookie headers of rec into a new request.
func roundTrip(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestManager_PlainCookie(t *testing.T) {
	t.Parallel()

	m := cookie.New(cookie.WithSecure(true), cookie.WithDomain("example.com"))
	rec := httptest.NewRecorder()
	m.Set(rec, "frontend_lang", "fr_FR", 3600)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "fr_FR", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, "example.com", c.Domain)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 3600, c.MaxAge)

	got, err := m.Get(roundTrip(rec), "frontend_lang")
	require.NoError(t, err)
	assert.Equal(t, "fr_FR", got)

	_, err = m.Get(roundTrip(rec), "missing")
	require.ErrorIs(t, err, cookie.ErrNotFound)
}

func TestManager_Delete(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	cookie.New().Delete(rec, "session_id")
	c := rec.Result().Cookies()[0]
	assert.Equal(t, "session_id", c.Name)
	assert.Less(t, c.MaxAge, 0)
}

func TestManager_Signed(t *testing.T) {
	t.Parallel()

	m := cookie.New(cookie.WithSecret(secret))
	require.True(t, m.Signed())

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetSigned(rec, "session_id", "abc-123", 0))

	got, err := m.GetSigned(roundTrip(rec), "session_id")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", got)

	raw := rec.Result().Cookies()[0].Value
	enc, sig, _ := strings.Cut(raw, ".")
	tampered := enc + "." + strings.Repeat("A", len(sig))
	_, err = m.Verify(tampered)
	require.ErrorIs(t, err, cookie.ErrBadSig)

	_, err = m.Verify("no-dot")
	require.ErrorIs(t, err, cookie.ErrBadSig)

	other := cookie.New(cookie.WithSecret(strings.Repeat("z", 32)))
	_, err = other.Verify(raw)
	require.ErrorIs(t, err, cookie.ErrBadSig)
}

func TestManager_ShortSecretIgnored(t *testing.T) {
	t.Parallel()

	m := cookie.New(cookie.WithSecret("short"))
	assert.False(t, m.Signed())
	_, err := m.Sign("x")
	require.ErrorIs(t, err, cookie.ErrNoSecret)
}
