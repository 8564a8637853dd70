// internal/tenant/middleware.go
//
// HTTP middleware that scopes a request to a tenant.
//
// Context
// -------
// The tenant id arrives in a header (X-Tenant-ID by default).  A missing
// header scopes the request to the provider default; an invalid id is a
// 400.  Everything downstream reads the tenant with Current(r.Context()).
package tenant

import (
	"errors"
	"net/http"
)

// HeaderTenantID is the default header carrying the tenant id.
const HeaderTenantID = "X-Tenant-ID"

// Middleware resolves the tenant named by header and stores it in the
// request context.
func Middleware(p *Provider, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = HeaderTenantID
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(header)
			if id == "" {
				next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), p.Default())))
				return
			}
			t, err := p.Load(r.Context(), id)
			if errors.Is(err, ErrInvalidTenantID) {
				http.Error(w, "invalid tenant id", http.StatusBadRequest)
				return
			}
			if err != nil {
				http.Error(w, "tenant unavailable", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), t)))
		})
	}
}
