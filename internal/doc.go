// Package internal implements the verp request-dispatch engine.
//
// This package is internal and should not be used directly. Import
// "github.com/tonyluong2025/verp-sub017" instead, which re-exports the
// public API.
//
// # Routes
//
// Modules declare routes through a Registrar. Each route belongs to a chain
// named "controller.method"; later modules extend a chain with Override,
// replacing the handler and merging metadata:
//
//	func (Shop) Routes(r verp.Registrar) {
//	    r.Route("shop.Main", "product", showProduct,
//	        verp.Routes(`/shop/<model("product"):product>`),
//	        verp.Auth(verp.AuthPublic),
//	        verp.Website(true),
//	    )
//	}
//
// The Collector resolves chains against the modules installed on a tenant
// and the RoutingCache compiles one immutable RoutingTable per tenant. A
// NOTIFY on RegistryChannel drops the table of a tenant.
//
// # Lifecycle
//
// Every request runs through the same stages: load the session and select
// the tenant, match the route (applying language prefixes on websites),
// authenticate, validate the CSRF token, and dispatch the handler inside a
// transaction. Serialization failures replay the handler on a fresh cursor.
// Any failure is handed to the error translator, which rolls back and
// renders an HTML page, a redirect to the login page or a JSON-RPC error.
//
// # Handlers
//
// Handlers return a value and an error. The value is normalized into a
// response:
//
//   - *Response is sent as is
//   - string is sent as HTML, []byte as a download
//   - templ components and Render templates are rendered inside the transaction
//   - nil is 204 No Content
//   - anything else is encoded as JSON, or as the JSON-RPC result on json routes
//
// Context embeds context.Context, so it can be passed to database calls
// and HTTP clients directly.
package internal
