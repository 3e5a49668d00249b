package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tonyluong2025/verp-sub017/pkg/jsonrpc"
	"github.com/tonyluong2025/verp-sub017/pkg/sanitizer"
)

// LoginPath is where expired http sessions are sent.
const LoginPath = "/web/login"

// FallbackStatus is the status of the built-in page served when rendering
// the error template fails.
const FallbackStatus = http.StatusInternalServerError

// translate turns err into a response. The transaction of the failed
// request is rolled back before anything else happens.
func (a *App) translate(req *Request, err error) *Response {
	ctx := context.WithoutCancel(req.http.Context())
	if rerr := req.endTransaction(ctx, false); rerr != nil {
		a.logger.WarnContext(ctx, "rollback failed", slog.Any("error", rerr))
	}

	var redirect *RedirectError
	if errors.As(err, &redirect) {
		return Redirect(redirect.Location, redirect.Code)
	}

	httpErr := AsHTTPError(err)
	a.logFailure(ctx, req, httpErr)

	if req.Endpoint().IsJSON() {
		return a.jsonError(req, httpErr)
	}

	switch httpErr.Kind {
	case KindSessionExpired:
		return Redirect(LoginPath+"?redirect="+url.QueryEscape(req.http.URL.RequestURI()), http.StatusSeeOther)
	case KindNotFound:
		if req.match == nil {
			if resp := a.serveFallback(ctx, req); resp != nil {
				return resp
			}
		}
	}
	return a.errorPage(ctx, req, httpErr)
}

func (a *App) logFailure(ctx context.Context, req *Request, e *HTTPError) {
	attrs := []any{
		slog.String("method", req.http.Method),
		slog.String("path", req.http.URL.Path),
		slog.String("tenant", req.tenant),
		slog.String("kind", e.Kind.String()),
		slog.Int("status", e.StatusCode()),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
	}
	switch e.Kind {
	case KindUnhandled:
		if e.Debug != "" {
			attrs = append(attrs, slog.String("stack", e.Debug))
		}
		a.logger.ErrorContext(ctx, "request failed", attrs...)
	case KindNotFound:
		a.logger.DebugContext(ctx, "request failed", attrs...)
	default:
		a.logger.InfoContext(ctx, "request failed", attrs...)
	}
}

// serveFallback runs the fallbacks in order for an unrouted path.
func (a *App) serveFallback(ctx context.Context, req *Request) *Response {
	q := FallbackQuery{Request: req.http, Site: req.site, Tenant: req.tenant, Path: req.path}
	for _, fb := range a.fallbacks {
		res, err := fb.Resolve(ctx, q)
		if err != nil {
			a.logger.WarnContext(ctx, "fallback failed", slog.String("path", req.path), slog.Any("error", err))
			continue
		}
		switch res.Outcome {
		case FallbackFound:
			if res.Response != nil {
				return res.Response
			}
		case FallbackCandidate:
			code := res.Code
			if code == 0 {
				code = http.StatusMovedPermanently
			}
			return Redirect(res.Location, code)
		}
	}
	return nil
}

func (a *App) debugEnabled(req *Request) bool {
	return a.devMode || (req.session != nil && req.session.Debug != "")
}

// jsonError encodes e as a JSON-RPC failure. The transport status stays 200.
func (a *App) jsonError(req *Request, e *HTTPError) *Response {
	code, message := jsonrpc.CodeServerError, "Verp Server Error"
	switch e.Kind {
	case KindSessionExpired:
		code, message = jsonrpc.CodeSessionInvalid, "Verp Session Expired"
	case KindNotFound:
		code, message = jsonrpc.CodeNotFound, "404: Not Found"
	}

	data := &jsonrpc.ErrorData{
		Name:      e.Kind.String(),
		Message:   e.Message,
		Arguments: e.Arguments,
		Context:   map[string]any{},
	}
	if data.Arguments == nil {
		data.Arguments = []any{}
	}
	if a.debugEnabled(req) {
		data.Debug = e.Debug
		if data.Debug == "" && e.Err != nil {
			data.Debug = e.Err.Error()
		}
	}

	var id json.RawMessage
	if req.rpc != nil {
		id = req.rpc.ID
	}
	body, err := json.Marshal(jsonrpc.Failure(id, &jsonrpc.Error{Code: code, Message: message, Data: data}))
	if err != nil {
		body = []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":200,"message":"Verp Server Error"}}`)
	}
	return NewResponse(http.StatusOK, "application/json", body)
}

// errorPage renders http_routing.<status> on a fresh read-only cursor. A
// failing template yields the built-in page.
func (a *App) errorPage(ctx context.Context, req *Request, e *HTTPError) *Response {
	status := e.StatusCode()
	message := sanitizer.Text(e.Message)
	var debug string
	if a.debugEnabled(req) {
		debug = e.Debug
		if debug == "" && e.Err != nil {
			debug = e.Err.Error()
		}
		debug = sanitizer.Text(debug)
	}
	values := map[string]any{
		"status":  status,
		"name":    e.Kind.String(),
		"message": message,
		"debug":   debug,
	}

	body, err := a.renderErrorTemplate(ctx, req, errorTemplate(status), values)
	if err == nil {
		return NewResponse(status, "text/html; charset=utf-8", body)
	}
	a.logger.ErrorContext(ctx, "error page failed",
		slog.Int("status", status),
		slog.Any("error", err),
	)
	return a.hardPage(ctx, message)
}

func (a *App) renderErrorTemplate(ctx context.Context, req *Request, name string, values map[string]any) ([]byte, error) {
	if a.renderer == nil {
		return nil, ErrUnknownTemplate
	}
	var env Env
	if req.tenant != "" && a.registry != nil {
		cr, err := a.registry.Begin(ctx, req.tenant, true)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = cr.Rollback(ctx)
			_ = cr.Close(ctx)
		}()
		env = a.registry.Env(cr, req.tenant, req.uid, req.envContext())
	}
	return a.renderer.Render(ctx, env, name, values)
}

func (a *App) hardPage(ctx context.Context, message string) *Response {
	var buf bytes.Buffer
	_ = errorPage(FallbackStatus, message, "").Render(ctx, &buf)
	return NewResponse(FallbackStatus, "text/html; charset=utf-8", buf.Bytes())
}
