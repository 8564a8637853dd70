// internal/middleware/security.go
//
// Security-header middleware for the admin API.
//
// Injects headers suited to a JSON-only control surface on every response:
//
//   • Cache-Control             –  cache statistics must never be cached
//   • Content-Security-Policy   –  nothing may be loaded or framed
//   • X-Frame-Options           –  click-jacking defence
//   • X-Content-Type-Options    –  MIME-sniffing defence
//   • Referrer-Policy           –  drops the Referer entirely
//
// Notes
// -----
// • Headers are set *before* next.ServeHTTP, because anything added after
//   the first Write never reaches the client.  Handlers may still override
//   a value by setting it themselves.
// • Oxford commas, two spaces after periods.

package middleware

import "net/http"

// Security sets security headers for every response.
func Security(next http.Handler) http.Handler {
	const (
		cache = "no-store"
		csp   = "default-src 'none'; frame-ancestors 'none'"
		xfo   = "DENY"
		nosn  = "nosniff"
		refer = "no-referrer"
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", cache)
		h.Set("Content-Security-Policy", csp)
		h.Set("X-Frame-Options", xfo)
		h.Set("X-Content-Type-Options", nosn)
		h.Set("Referrer-Policy", refer)
		next.ServeHTTP(w, r)
	})
}
