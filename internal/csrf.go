package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Default CSRF settings.
const (
	// CSRFField is the form field carrying the token. It is stripped from the
	// parameters given to handlers.
	CSRFField = "csrf_token"

	// CSRFHeader carries the token for scripted requests.
	CSRFHeader = "X-CSRF-Token"

	// DefaultCSRFTTL is used when a token is issued without a validity window.
	DefaultCSRFTTL = 365 * 24 * time.Hour
)

// CSRF issues and validates tokens of the form hex(hmac) "o" expiry, where
// hmac = HMAC-SHA256(secret, sessionID || expiry) and expiry is a unix time.
type CSRF struct {
	now    func() time.Time
	secret []byte
}

// NewCSRF creates a token issuer keyed with secret.
func NewCSRF(secret string) *CSRF {
	return &CSRF{secret: []byte(secret), now: time.Now}
}

// Issue returns a token bound to sid valid for ttl.
func (c *CSRF) Issue(sid string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = DefaultCSRFTTL
	}
	expiry := strconv.FormatInt(c.now().Add(ttl).Unix(), 10)
	return hex.EncodeToString(c.mac(sid, expiry)) + "o" + expiry
}

// Validate checks token against sid. Expired, malformed and forged tokens
// all fail.
func (c *CSRF) Validate(sid, token string) bool {
	if sid == "" || token == "" {
		return false
	}
	i := strings.LastIndexByte(token, 'o')
	if i <= 0 {
		return false
	}
	sum, expiry := token[:i], token[i+1:]
	ts, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil || c.now().Unix() > ts {
		return false
	}
	got, err := hex.DecodeString(sum)
	if err != nil {
		return false
	}
	return hmac.Equal(got, c.mac(sid, expiry))
}

func (c *CSRF) mac(sid, expiry string) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(sid))
	h.Write([]byte(expiry))
	return h.Sum(nil)
}

// safeMethod reports whether method is exempt from CSRF validation.
func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
