package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/a-h/templ"
)

// ErrUnknownTemplate is returned when a renderer has no template of the name.
var ErrUnknownTemplate = errors.New("unknown template")

// TemplateFunc builds the component of a named template from its values.
type TemplateFunc func(values map[string]any) templ.Component

// TemplRenderer is a Renderer backed by templ components registered by
// name. It ships the http_routing error pages.
type TemplRenderer struct {
	mu        sync.RWMutex
	templates map[string]TemplateFunc
}

// NewTemplRenderer creates a renderer with the default error pages.
func NewTemplRenderer() *TemplRenderer {
	r := &TemplRenderer{templates: make(map[string]TemplateFunc)}
	for _, status := range []int{
		http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusInternalServerError,
	} {
		r.Register(errorTemplate(status), errorPageTemplate)
	}
	return r
}

// Register adds or replaces the template name.
func (r *TemplRenderer) Register(name string, fn TemplateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = fn
}

// Render implements Renderer. The environment is not consulted: templ
// components are compiled in.
func (r *TemplRenderer) Render(ctx context.Context, _ Env, name string, values map[string]any) ([]byte, error) {
	r.mu.RLock()
	fn, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var buf bytes.Buffer
	if err := fn(values).Render(ctx, &buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func errorTemplate(status int) string {
	return "http_routing." + strconv.Itoa(status)
}

// errorPageTemplate renders the values prepared by the error translator.
// Message and debug are already sanitized.
func errorPageTemplate(values map[string]any) templ.Component {
	status, _ := values["status"].(int)
	message, _ := values["message"].(string)
	debug, _ := values["debug"].(string)
	return errorPage(status, message, debug)
}

// errorPage is the minimal page also used when a template fails. It never
// touches the database.
func errorPage(status int, message, debug string) templ.Component {
	title := strconv.Itoa(status) + " " + http.StatusText(status)
	body := []templ.Component{element("h1", text(title))}
	if message != "" {
		body = append(body, element("p", templ.Raw(message)))
	}
	if debug != "" {
		body = append(body, element("pre", templ.Raw(debug)))
	}
	return document(title, element("main", body...))
}

// document wraps body in an HTML page titled title.
func document(title string, body ...templ.Component) templ.Component {
	return templ.Join(
		templ.Raw("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">"),
		element("title", text(title)),
		templ.Raw("</head>"),
		element("body", body...),
		templ.Raw("</html>\n"),
	)
}

// element renders children inside tag.
func element(tag string, children ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<"+tag+">"); err != nil {
			return err
		}
		for _, c := range children {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</"+tag+">")
		return err
	})
}

// text renders s escaped.
func text(s string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, templ.EscapeString(s))
		return err
	})
}
