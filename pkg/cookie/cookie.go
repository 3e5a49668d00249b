// Package cookie writes cookies with shared attributes and optionally signs
// their values with HMAC-SHA256.
//
// Signed values are encoded as base64url(value) "." base64url(mac). A
// signature mismatch is reported as [ErrBadSig]; callers treat it like a
// missing cookie.
package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrNotFound = errors.New("cookie: not found")
	ErrNoSecret = errors.New("cookie: secret required")
	ErrBadSig   = errors.New("cookie: invalid signature")
)

// Manager applies common attributes to every cookie it writes.
type Manager struct {
	secret   []byte // nil = unsigned
	domain   string
	path     string
	secure   bool
	httpOnly bool
	sameSite http.SameSite
}

// Option configures the Manager.
type Option func(*Manager)

// New creates a Manager. Defaults: Path "/", HttpOnly, SameSite=Lax.
func New(opts ...Option) *Manager {
	m := &Manager{
		path:     "/",
		httpOnly: true,
		sameSite: http.SameSiteLaxMode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithSecret enables signing. Secrets shorter than 32 bytes are ignored.
func WithSecret(secret string) Option {
	return func(m *Manager) {
		if len(secret) >= 32 {
			m.secret = []byte(secret)
		}
	}
}

// WithDomain sets the Domain attribute.
func WithDomain(domain string) Option {
	return func(m *Manager) { m.domain = domain }
}

// WithPath sets the Path attribute.
func WithPath(path string) Option {
	return func(m *Manager) { m.path = path }
}

// WithSecure sets the Secure flag.
func WithSecure(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

// WithHTTPOnly sets the HttpOnly flag.
func WithHTTPOnly(httpOnly bool) Option {
	return func(m *Manager) { m.httpOnly = httpOnly }
}

// WithSameSite sets the SameSite attribute.
func WithSameSite(ss http.SameSite) Option {
	return func(m *Manager) { m.sameSite = ss }
}

// Signed reports whether a secret is configured.
func (m *Manager) Signed() bool {
	return m.secret != nil
}

// Get returns a plain cookie value.
func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrNotFound
		}
		return "", err
	}
	return c.Value, nil
}

// Cookie builds a cookie carrying the manager's attributes. maxAge follows
// http.Cookie semantics: 0 = session cookie, negative = delete.
func (m *Manager) Cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     m.path,
		Domain:   m.domain,
		MaxAge:   maxAge,
		Secure:   m.secure,
		HttpOnly: m.httpOnly,
		SameSite: m.sameSite,
	}
}

// Set writes a plain cookie.
func (m *Manager) Set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, m.Cookie(name, value, maxAge))
}

// Delete expires a cookie.
func (m *Manager) Delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, m.Cookie(name, "", -1))
}

// Sign returns the signed encoding of value.
func (m *Manager) Sign(value string) (string, error) {
	if m.secret == nil {
		return "", ErrNoSecret
	}
	return base64.RawURLEncoding.EncodeToString([]byte(value)) +
		"." + base64.RawURLEncoding.EncodeToString(m.mac([]byte(value))), nil
}

// Verify decodes a value produced by Sign.
func (m *Manager) Verify(raw string) (string, error) {
	if m.secret == nil {
		return "", ErrNoSecret
	}
	enc, encSig, ok := strings.Cut(raw, ".")
	if !ok {
		return "", ErrBadSig
	}
	value, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", ErrBadSig
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return "", ErrBadSig
	}
	if !hmac.Equal(sig, m.mac(value)) {
		return "", ErrBadSig
	}
	return string(value), nil
}

// GetSigned returns the verified value of a signed cookie.
func (m *Manager) GetSigned(r *http.Request, name string) (string, error) {
	if m.secret == nil {
		return "", ErrNoSecret
	}
	raw, err := m.Get(r, name)
	if err != nil {
		return "", err
	}
	return m.Verify(raw)
}

// SetSigned writes a signed cookie.
func (m *Manager) SetSigned(w http.ResponseWriter, name, value string, maxAge int) error {
	signed, err := m.Sign(value)
	if err != nil {
		return err
	}
	http.SetCookie(w, m.Cookie(name, signed, maxAge))
	return nil
}

func (m *Manager) mac(value []byte) []byte {
	h := hmac.New(sha256.New, m.secret)
	h.Write(value)
	return h.Sum(nil)
}
