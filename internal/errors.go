package internal

import (
	"errors"
	"net/http"
)

var (
	ErrRerouteLoop       = errors.New("rerouting loop is forbidden")
	ErrRerouteLimit      = errors.New("rerouting limit exceeded")
	ErrIllegalTransition = errors.New("illegal request state transition")
	ErrUnknownConverter  = errors.New("unknown converter")
	ErrBadPattern        = errors.New("invalid route pattern")
	ErrNoBaseRoute       = errors.New("override without base route")
	ErrNoEnv             = errors.New("converter requires an environment")
	ErrNoTenant          = errors.New("no tenant selected")
)

// Kind classifies failures for translation into responses.
type Kind int

const (
	KindUnhandled Kind = iota
	KindValidation
	KindAccessDenied
	KindNotFound
	KindSessionExpired
)

var kindNames = map[Kind]string{
	KindUnhandled:      "verp.http.ServerError",
	KindValidation:     "verp.exceptions.ValidationError",
	KindAccessDenied:   "verp.exceptions.AccessDenied",
	KindNotFound:       "werkzeug.exceptions.NotFound",
	KindSessionExpired: "verp.http.SessionExpiredException",
}

// String returns the stable name used in JSON-RPC error payloads.
func (k Kind) String() string {
	return kindNames[k]
}

// HTTPError is a classified failure carrying everything needed to render it.
type HTTPError struct {
	// Err is the underlying error (for logging, not exposed to users).
	Err error

	// Message is the user-facing error message.
	Message string

	// Debug holds a stack trace or detail shown only in dev mode.
	Debug string

	// Arguments are exposed in JSON-RPC error data.
	Arguments []any

	// Kind selects the translation strategy.
	Kind Kind

	// Code is the HTTP status code (e.g., 404, 500).
	Code int
}

func (e *HTTPError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func (e *HTTPError) StatusCode() int {
	return e.Code
}

func (e *HTTPError) StatusText() string {
	return http.StatusText(e.Code)
}

// HTTPErrorOption configures an HTTPError.
type HTTPErrorOption func(*HTTPError)

func WithError(err error) HTTPErrorOption {
	return func(e *HTTPError) {
		e.Err = err
	}
}

func WithDebug(debug string) HTTPErrorOption {
	return func(e *HTTPError) {
		e.Debug = debug
	}
}

func WithArguments(args ...any) HTTPErrorOption {
	return func(e *HTTPError) {
		e.Arguments = args
	}
}

func newHTTPError(kind Kind, code int, message string, opts []HTTPErrorOption) *HTTPError {
	e := &HTTPError{Kind: kind, Code: code, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.Arguments) == 0 && message != "" {
		e.Arguments = []any{message}
	}
	return e
}

// Convenience constructors for the failure taxonomy.

func ErrBadRequest(message string, opts ...HTTPErrorOption) *HTTPError {
	return newHTTPError(KindValidation, http.StatusBadRequest, message, opts)
}

func ErrForbidden(message string, opts ...HTTPErrorOption) *HTTPError {
	return newHTTPError(KindAccessDenied, http.StatusForbidden, message, opts)
}

func ErrNotFound(message string, opts ...HTTPErrorOption) *HTTPError {
	return newHTTPError(KindNotFound, http.StatusNotFound, message, opts)
}

func ErrSessionExpired(message string, opts ...HTTPErrorOption) *HTTPError {
	return newHTTPError(KindSessionExpired, http.StatusSeeOther, message, opts)
}

func ErrInternal(message string, opts ...HTTPErrorOption) *HTTPError {
	return newHTTPError(KindUnhandled, http.StatusInternalServerError, message, opts)
}

// RedirectError short-circuits a request with a redirect. The canonicalizer
// returns it before any handler runs.
type RedirectError struct {
	Location string
	Code     int
}

func (e *RedirectError) Error() string {
	return http.StatusText(e.Code) + ": " + e.Location
}

// AsHTTPError classifies err. Unknown errors become Unhandled with err kept
// for logging.
func AsHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return ErrInternal("Internal Server Error", WithError(err))
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Kind == kind
	}
	return kind == KindUnhandled && err != nil
}
