package internal

import (
	"slices"
)

// Endpoint pairs the live handler of a route chain with its merged metadata.
// Endpoints are immutable and shared by every tenant with the same chain.
type Endpoint struct {
	handler HandlerFunc

	// Key identifies the chain as "controller.method".
	Key string

	// Module and Controller name the declaration providing the handler.
	Module     string
	Controller string

	Meta RouteMeta
}

// Handler returns the handler wrapped in the endpoint middlewares.
func (e *Endpoint) Handler() HandlerFunc {
	h := e.handler
	for _, mw := range slices.Backward(e.Meta.Middlewares) {
		h = mw(h)
	}
	return h
}

// IsFrontend reports whether the endpoint takes part in site handling.
func (e *Endpoint) IsFrontend() bool {
	return e != nil && e.Meta.Website
}

// IsMultilang reports whether the endpoint accepts a language prefix.
func (e *Endpoint) IsMultilang() bool {
	return e != nil && e.Meta.Website && e.Meta.IsMultilang()
}

// IsJSON reports whether the endpoint speaks JSON-RPC.
func (e *Endpoint) IsJSON() bool {
	return e != nil && e.Meta.Type == TypeJSON
}
