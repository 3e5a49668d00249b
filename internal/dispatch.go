package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/tonyluong2025/verp-sub017/pkg/jsonrpc"
)

// Dispatch defaults.
const (
	DefaultRetryAttempts = 5
	DefaultRetryDelay    = 10 * time.Millisecond
	maxFormMemory        = 32 << 20
)

// parseParams reads the request parameters: the JSON-RPC params object on
// json routes, the query and form values otherwise.
func (a *App) parseParams(req *Request) error {
	ep := req.Endpoint()
	if ep.IsJSON() {
		if req.http.Method == http.MethodGet || req.http.Method == http.MethodHead {
			req.params = map[string]any{}
			return nil
		}
		rpc, err := jsonrpc.Parse(req.http.Body)
		if err != nil {
			return ErrBadRequest("Invalid JSON-RPC request", WithError(err))
		}
		params, err := rpc.ParamsMap()
		if err != nil {
			return ErrBadRequest("Invalid JSON-RPC params", WithError(err))
		}
		req.rpc, req.params = rpc, params
		return nil
	}

	if err := parseForm(req.http); err != nil {
		return ErrBadRequest("Invalid form data", WithError(err))
	}
	params := make(map[string]any, len(req.http.Form))
	for k, vs := range req.http.Form {
		switch {
		case k == CSRFField:
		case len(vs) == 1:
			params[k] = vs[0]
		default:
			params[k] = slices.Clone(vs)
		}
	}
	req.params = params
	return nil
}

func parseForm(r *http.Request) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		err := r.ParseMultipartForm(maxFormMemory)
		if errors.Is(err, http.ErrNotMultipart) {
			return r.ParseForm()
		}
		return err
	}
	return r.ParseForm()
}

// dispatch runs the endpoint handler inside the request transaction,
// retrying it on a fresh cursor after serialization failures. The response
// is fully rendered before dispatch returns.
func (a *App) dispatch(req *Request) (*Response, error) {
	if err := req.transition(StateDispatched); err != nil {
		return nil, err
	}
	ep := req.Endpoint()
	ctx := req.http.Context()

	var resp *Response
	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			if attempt > 1 {
				a.metrics.retried()
				if err := req.resetCursor(ctx); err != nil {
					a.logger.WarnContext(ctx, "reset cursor failed", slog.Any("error", err))
				}
			}
			r, err := a.attempt(ctx, req, ep)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Attempts(a.retryAttempts),
		retry.Delay(a.retryDelay),
		retry.MaxJitter(a.retryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(a.retryIf),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			a.logger.InfoContext(ctx, "serialization failure, retrying",
				slog.String("endpoint", ep.Key),
				slog.Uint64("attempt", uint64(n)+1),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	if err := req.transition(StateSucceeded); err != nil {
		return nil, err
	}
	return resp, nil
}

// attempt runs the handler once on the current cursor.
func (a *App) attempt(ctx context.Context, req *Request, ep *Endpoint) (*Response, error) {
	var env Env
	if req.tenant != "" && ep.Meta.Auth != AuthNone && a.registry != nil {
		e, err := req.Env(ctx)
		if err != nil {
			return nil, err
		}
		env = e
		rebindArgs(req.args, env)
	}

	c := newContext(ctx, req, a)
	out, err := invoke(ep.Handler(), c)
	if err != nil {
		return nil, err
	}
	resp, err := a.normalize(req, out)
	if err != nil {
		return nil, err
	}
	c.apply(resp)
	if resp.IsDeferred() {
		if env == nil && req.env != nil {
			env = req.env
		}
		if err := resp.resolve(ctx, a.renderer, env); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// invoke calls h, converting a panic into an Unhandled error.
func invoke(h HandlerFunc, c Context) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, http.ErrAbortHandler) {
				panic(r)
			}
			err = ErrInternal("Internal Server Error",
				WithError(fmt.Errorf("panic: %v", r)),
				WithDebug(string(debug.Stack())),
			)
		}
	}()
	return h(c)
}

// normalize turns a handler result into a Response.
func (a *App) normalize(req *Request, out any) (*Response, error) {
	if resp, ok := out.(*Response); ok && resp != nil {
		if resp.Header == nil {
			resp.Header = make(http.Header)
		}
		if resp.Status == 0 {
			resp.Status = http.StatusOK
		}
		return resp, nil
	}

	if req.Endpoint().IsJSON() {
		var id json.RawMessage
		if req.rpc != nil {
			id = req.rpc.ID
		}
		body, err := json.Marshal(jsonrpc.Success(id, out))
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return NewResponse(http.StatusOK, "application/json", body), nil
	}

	switch v := out.(type) {
	case nil:
		return NewResponse(http.StatusNoContent, "", nil), nil
	case Component:
		return RenderComponent(http.StatusOK, v), nil
	case string:
		return NewResponse(http.StatusOK, "text/html; charset=utf-8", []byte(v)), nil
	case []byte:
		return NewResponse(http.StatusOK, "application/octet-stream", v), nil
	case http.Handler:
		return Capture(v, req.http), nil
	default:
		return JSON(http.StatusOK, v)
	}
}
