package internal

// HandlerFunc is the signature for route handlers.
// The returned value is normalized into a response: *Response, Component,
// string, []byte, nil, or any JSON-serializable value.
// Returning a non-nil error hands the request to the error translator.
type HandlerFunc func(c Context) (any, error)

// Middleware wraps a HandlerFunc to add cross-cutting concerns at the
// endpoint level.
//
// Example:
//
//	func RequireDebug(next verp.HandlerFunc) verp.HandlerFunc {
//	    return func(c verp.Context) (any, error) {
//	        if !c.Debug() {
//	            return nil, verp.ErrForbidden("debug mode only")
//	        }
//	        return next(c)
//	    }
//	}
type Middleware func(next HandlerFunc) HandlerFunc

// Module contributes routes at load time.
//
// Example:
//
//	type Shop struct{}
//
//	func (Shop) Name() string { return "shop" }
//
//	func (s Shop) Routes(r verp.Registrar) {
//	    r.Route("shop.Main", "product", s.product,
//	        verp.Routes(`/shop/<model("product"):product>`),
//	        verp.Auth(verp.AuthPublic), verp.Website(true))
//	}
type Module interface {
	Name() string
	Routes(r Registrar)
}

// Registrar is the declaration surface given to a module.
type Registrar interface {
	// Route declares the base of the route chain controller.method.
	Route(controller, method string, h HandlerFunc, opts ...RouteOption)

	// Override extends an existing chain. A nil handler keeps the previous
	// implementation and only merges metadata.
	Override(controller, method string, h HandlerFunc, opts ...RouteOption)
}
