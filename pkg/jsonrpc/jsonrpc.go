// Package jsonrpc implements the JSON-RPC 2.0 envelope spoken by json routes.
//
// A call carries its arguments as a named-parameter object:
//
//	{"jsonrpc": "2.0", "method": "call", "id": 7, "params": {"context": {...}, "foo": 1}}
//
// Replies carry either a result or an error whose code is one of the stable
// application codes below, never a transport status.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Version is the protocol version echoed in every reply.
const Version = "2.0"

// Application error codes.
const (
	CodeSessionInvalid = 100 // session expired or invalid
	CodeServerError    = 200 // any other failure
	CodeNotFound       = 404
)

// Protocol error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
)

// MaxBodySize bounds a request body.
const MaxBodySize = 10 << 20

var (
	ErrParse          = errors.New("jsonrpc: invalid JSON")
	ErrInvalidRequest = errors.New("jsonrpc: invalid request")
	ErrBodyTooLarge   = errors.New("jsonrpc: request body too large")
)

// Request is a parsed call. ID is kept raw: clients send numbers or strings
// and expect the same token back.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a reply envelope. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error member of a reply.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData describes the failure for the client. Debug holds a stack
// trace only in development mode.
type ErrorData struct {
	Name      string         `json:"name"`
	Message   string         `json:"message"`
	Debug     string         `json:"debug"`
	Arguments []any          `json:"arguments"`
	Context   map[string]any `json:"context"`
}

func (e *Error) Error() string {
	return e.Message
}

// Parse reads a request from r. Method may be empty: the route, not the
// method, selects the handler.
func Parse(r io.Reader) (*Request, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxBodySize+1))
	if err != nil {
		return nil, errors.Join(ErrParse, err)
	}
	if len(body) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &Request{JSONRPC: Version}, nil
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.Join(ErrParse, err)
	}
	if req.JSONRPC != "" && req.JSONRPC != Version {
		return nil, ErrInvalidRequest
	}
	if p := bytes.TrimSpace(req.Params); len(p) > 0 && p[0] != '{' && !bytes.Equal(p, []byte("null")) {
		return nil, errors.Join(ErrInvalidRequest, errors.New("params must be an object"))
	}
	return &req, nil
}

// ParamsMap decodes params into a map. Missing or null params yield an
// empty map.
func (r *Request) ParamsMap() (map[string]any, error) {
	out := make(map[string]any)
	p := bytes.TrimSpace(r.Params)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}
	return out, nil
}

// Success builds a result reply.
func Success(id json.RawMessage, result any) Response {
	return Response{JSONRPC: Version, ID: nullID(id), Result: result}
}

// Failure builds an error reply.
func Failure(id json.RawMessage, e *Error) Response {
	return Response{JSONRPC: Version, ID: nullID(id), Error: e}
}

// MarshalJSON always emits "result" on success replies, null included.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id"`
			Error   *Error          `json:"error"`
		}{r.JSONRPC, nullID(r.ID), r.Error})
	}
	return json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  any             `json:"result"`
	}{r.JSONRPC, nullID(r.ID), r.Result})
}

func nullID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
