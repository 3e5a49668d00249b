package internal

import (
	"net/http"
	"strings"
)

// ExtractorSource extracts a value from a request.
// Returns the value and true if found, or ("", false) if not present.
type ExtractorSource = func(*http.Request) (string, bool)

// Extractor tries multiple sources in order and returns the first match.
type Extractor struct {
	sources []ExtractorSource
}

// NewExtractor creates an Extractor that tries the given sources in order.
func NewExtractor(sources ...ExtractorSource) Extractor {
	return Extractor{sources: sources}
}

// Extract iterates sources in order and returns the first non-empty value.
// Returns ("", false) if all sources miss.
func (e Extractor) Extract(r *http.Request) (string, bool) {
	for _, src := range e.sources {
		if v, ok := src(r); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// FromHeader returns a source that reads from a request header.
func FromHeader(name string) ExtractorSource {
	return func(r *http.Request) (string, bool) {
		v := r.Header.Get(name)
		return v, v != ""
	}
}

// FromQuery returns a source that reads from a query parameter.
func FromQuery(name string) ExtractorSource {
	return func(r *http.Request) (string, bool) {
		v := r.URL.Query().Get(name)
		return v, v != ""
	}
}

// FromCookie returns a source that reads from a plain cookie.
func FromCookie(name string) ExtractorSource {
	return func(r *http.Request) (string, bool) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", false
		}
		return c.Value, true
	}
}

// FromForm returns a source that reads from a form field. The form must
// already be parsed; the body is never read here.
func FromForm(name string) ExtractorSource {
	return func(r *http.Request) (string, bool) {
		if r.Form == nil {
			return "", false
		}
		v := r.Form.Get(name)
		return v, v != ""
	}
}

// FromBearerToken returns a source that reads a Bearer token from the Authorization header.
// Uses case-insensitive comparison on the "Bearer " prefix.
func FromBearerToken() ExtractorSource {
	return func(r *http.Request) (string, bool) {
		auth := r.Header.Get("Authorization")
		if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
			return "", false
		}
		token := auth[7:]
		return token, token != ""
	}
}
