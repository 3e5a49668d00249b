package internal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Component is the interface for renderable templates.
// This is compatible with templ.Component.
type Component interface {
	Render(ctx context.Context, w io.Writer) error
}

// Response is the outcome of a request before it is written. A response
// built with Render is deferred: its body is produced inside the request
// transaction so template failures reach the error translator.
type Response struct {
	Header  http.Header
	Cookies []*http.Cookie
	Body    []byte

	// Template and Values describe a deferred render.
	Template string
	Values   map[string]any

	component Component
	Status    int
}

// NewResponse creates a response with a body and content type.
func NewResponse(status int, contentType string, body []byte) *Response {
	r := &Response{Status: status, Header: make(http.Header), Body: body}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

// Render creates a deferred response rendering template with values
// through the configured Renderer.
func Render(template string, values map[string]any) *Response {
	return &Response{Status: http.StatusOK, Header: make(http.Header), Template: template, Values: values}
}

// RenderComponent creates a deferred response rendering a component.
func RenderComponent(status int, c Component) *Response {
	return &Response{Status: status, Header: make(http.Header), component: c}
}

// Redirect creates a redirect response. HTMX requests receive an
// HX-Redirect header instead.
func Redirect(url string, code int) *Response {
	if code == 0 {
		code = http.StatusSeeOther
	}
	r := &Response{Status: code, Header: make(http.Header)}
	r.Header.Set("Location", url)
	return r
}

// JSON creates a JSON response.
func JSON(status int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return NewResponse(status, "application/json; charset=utf-8", body), nil
}

// File creates a binary response with a strong ETag derived from its
// content, enabling conditional requests.
func File(contentType string, body []byte) *Response {
	r := NewResponse(http.StatusOK, contentType, body)
	sum := sha256.Sum256(body)
	r.Header.Set("ETag", `"`+hex.EncodeToString(sum[:16])+`"`)
	return r
}

// Capture runs an http.Handler and records its output as a Response.
func Capture(h http.Handler, r *http.Request) *Response {
	rec := &captureWriter{header: make(http.Header)}
	h.ServeHTTP(rec, r)
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return &Response{Status: rec.status, Header: rec.header, Body: rec.body.Bytes()}
}

// SetCookie adds a cookie to the response.
func (r *Response) SetCookie(c *http.Cookie) *Response {
	r.Cookies = append(r.Cookies, c)
	return r
}

// IsDeferred reports whether the body still has to be rendered.
func (r *Response) IsDeferred() bool {
	return r.Template != "" || r.component != nil
}

// resolve renders a deferred body.
func (r *Response) resolve(ctx context.Context, renderer Renderer, env Env) error {
	switch {
	case r.component != nil:
		var buf bytes.Buffer
		if err := r.component.Render(ctx, &buf); err != nil {
			return fmt.Errorf("render component: %w", err)
		}
		r.Body, r.component = buf.Bytes(), nil
	case r.Template != "":
		if renderer == nil {
			return fmt.Errorf("render %s: no renderer configured", r.Template)
		}
		body, err := renderer.Render(ctx, env, r.Template, r.Values)
		if err != nil {
			return fmt.Errorf("render %s: %w", r.Template, err)
		}
		r.Body, r.Template = body, ""
	default:
		return nil
	}
	if r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "text/html; charset=utf-8")
	}
	return nil
}

// notModified reports whether the request already holds this version of
// the response.
func (r *Response) notModified(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	etag := r.Header.Get("ETag")
	if etag == "" || r.Status != http.StatusOK {
		return false
	}
	for tag := range strings.SplitSeq(req.Header.Get("If-None-Match"), ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == etag {
			return true
		}
	}
	return false
}

// captureWriter buffers a handler response.
type captureWriter struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (w *captureWriter) Header() http.Header { return w.header }

func (w *captureWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}
