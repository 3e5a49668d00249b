// Package htmx detects HTMX requests and redirects them client-side.
//
// A plain 30x answer to an HTMX request would be followed by the XHR and
// swapped into the page; HX-Redirect makes the browser navigate instead.
package htmx

import "net/http"

const (
	HeaderRequest  = "HX-Request"
	HeaderBoosted  = "HX-Boosted"
	HeaderRedirect = "HX-Redirect"
	HeaderRefresh  = "HX-Refresh"
)

// IsHTMX reports whether r was issued by HTMX.
func IsHTMX(r *http.Request) bool {
	return r.Header.Get(HeaderRequest) == "true"
}

// IsBoosted reports whether r comes from an hx-boost link or form.
func IsBoosted(r *http.Request) bool {
	return r.Header.Get(HeaderBoosted) == "true"
}

// Redirect sends url with status to regular requests, and an HX-Redirect
// header with status 200 to HTMX requests.
func Redirect(w http.ResponseWriter, r *http.Request, url string, status int) {
	if IsHTMX(r) {
		w.Header().Set(HeaderRedirect, url)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, url, status)
}
