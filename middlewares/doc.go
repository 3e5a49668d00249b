// Package middlewares provides transport-level HTTP middleware that wraps
// the verp engine.
//
// The engine handles CORS, CSRF, sessions and language per route and per
// site. The middlewares here run before routing and are independent of it.
//
// # Request ID
//
// RequestID assigns a unique ID to each request for tracing. It checks
// incoming headers for an existing ID or generates a new ULID.
//
//	handler := middlewares.RequestID()(app)
//
// Use RequestIDExtractor with logger.New to add request_id to every log line:
//
//	log := logger.New(cfg, middlewares.RequestIDExtractor())
//
// # Recover
//
// Recover catches panics raised outside the engine and answers 500 when no
// response was started.
//
//	handler := middlewares.Recover(log)(app)
//
// # Timeout
//
// Timeout puts a deadline on the request context:
//
//	handler := middlewares.Timeout(30*time.Second, log)(app)
//
// # Access log
//
// AccessLog writes one structured log line per request:
//
//	handler := middlewares.AccessLog(log)(app)
//
// Order matters. RequestID should be outermost so the ID reaches every log
// line, followed by AccessLog, Recover and Timeout.
package middlewares
