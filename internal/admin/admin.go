// internal/admin/admin.go
//
// Operator HTTP surface for tcached.
//
// Context
// -------
// The cache engine is a library; this package is the small control plane
// wrapped around it by cmd/tcached.  Routes:
//
//	GET    /healthz         liveness plus L2 reachability
//	GET    /metrics         Prometheus exposition
//	GET    /cache/stats     JSON counters per cache instance
//	GET    /tenants         tenants currently held by the provider
//	DELETE /tenants/{id}    drop one tenant so the next request reloads it
//	DELETE /cache/tenant    purge every cache for X-Tenant-ID
//	DELETE /cache/content   invalidate one content entry for X-Tenant-ID
//
// The two /cache mutations run under tenant.Middleware, so they act on the
// tenant named in the request header and nothing else.  They are also
// subject to the tenant's rate limit.
//
// Notes
// -----
//   - Errors are rendered with platformerrors.ToJSON and mapped to status
//     codes by error code.
//   - Oxford commas, two spaces after periods.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	platformerrors "github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/tenantcache/internal/cache"
	"github.com/yanizio/tenantcache/internal/contentcache"
	"github.com/yanizio/tenantcache/internal/keyspace"
	"github.com/yanizio/tenantcache/internal/middleware"
	"github.com/yanizio/tenantcache/internal/tenant"
	"github.com/yanizio/tenantcache/internal/tiered"
)

// Purger is one cache instance the admin surface can report on and purge.
// *contentcache.Cache, *lookup.FolderResolver, and *lookup.KnowledgeBase
// all satisfy it.
type Purger interface {
	Name() string
	InvalidateTenant(ctx context.Context) (int, error)
	Metrics() tiered.Snapshot
}

// Options wires the handlers to the running process.
type Options struct {
	Provider *tenant.Provider
	Content  *contentcache.Cache
	Caches   []Purger    // every cache, Content included
	L2       cache.Store // nil in L1-only mode
	Header   string      // tenant header, default X-Tenant-ID
	Logger   *zap.SugaredLogger
}

type handlers struct {
	Options
}

// Routes builds the admin router.
func Routes(o Options) chi.Router {
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	h := &handlers{Options: o}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer, middleware.AccessLog(o.Logger), middleware.Security)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/cache/stats", h.stats)
	r.Get("/tenants", h.tenants)
	r.Delete("/tenants/{id}", h.forgetTenant)

	r.Group(func(scoped chi.Router) {
		scoped.Use(tenant.Middleware(o.Provider, o.Header))
		scoped.Use(h.rateLimit)
		scoped.Delete("/cache/tenant", h.purgeTenant)
		scoped.Delete("/cache/content", h.invalidateContent)
	})
	return r
}

//
// Handlers
//

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	l2 := "disabled"
	status := http.StatusOK
	if h.L2 != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		l2 = "up"
		if err := h.L2.Ping(ctx); err != nil {
			l2 = "down"
			h.Logger.Warnw("health: l2 ping failed", "err", err)
		}
	}
	writeJSON(w, status, map[string]any{"status": "ok", "l2": l2})
}

type cacheStats struct {
	tiered.Snapshot
	HitRate float64 `json:"hit_rate"`
}

func (h *handlers) stats(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]cacheStats, len(h.Caches))
	for _, c := range h.Caches {
		s := c.Metrics()
		out[c.Name()] = cacheStats{Snapshot: s, HitRate: s.HitRate()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) tenants(w http.ResponseWriter, _ *http.Request) {
	ids := h.Provider.Loaded()
	if ids == nil {
		ids = []string{}
	}
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, map[string]any{"loaded": ids})
}

func (h *handlers) forgetTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !keyspace.ValidTenantID(id) {
		writeError(w, platformerrors.WithContext(
			platformerrors.New(platformerrors.CodeInvalidInput, "invalid tenant id"), "tenant", id))
		return
	}
	h.Provider.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) purgeTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed := make(map[string]int, len(h.Caches))
	total := 0
	for _, c := range h.Caches {
		n, err := c.InvalidateTenant(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		removed[c.Name()] = n
		total += n
	}
	h.Logger.Infow("admin tenant purge", "tenant", tenant.CurrentID(ctx), "removed", total)
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant":  tenant.CurrentID(ctx),
		"removed": removed,
		"total":   total,
	})
}

// contentRequest names one content entry.  Type defaults to transform.
type contentRequest struct {
	Content   string `json:"content"`
	Hash      string `json:"hash"`
	Type      string `json:"type"`
	Qualifier string `json:"qualifier"`
}

func (h *handlers) invalidateContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
		writeError(w, platformerrors.Wrap(err, platformerrors.CodeInvalidInput, "decode request body"))
		return
	}
	o := contentcache.Options{Qualifier: req.Qualifier}
	if req.Type != "" {
		typ, err := keyspace.ParseType(req.Type)
		if err != nil {
			writeError(w, platformerrors.Wrap(err, platformerrors.CodeInvalidInput, "unknown cache type"))
			return
		}
		o.Type = typ
	}

	var err error
	switch {
	case req.Hash != "":
		err = h.Content.InvalidateByHash(r.Context(), req.Hash, o)
	case req.Content != "":
		err = h.Content.Invalidate(r.Context(), req.Content, o)
	default:
		err = platformerrors.New(platformerrors.CodeInvalidInput, "content or hash is required")
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Provider.Allow(r.Context()) {
			err := platformerrors.Wrap(tenant.ErrRateLimited, platformerrors.CodeRateLimit, "tenant rate limited")
			writeError(w, platformerrors.WithContext(err, "tenant", tenant.CurrentID(r.Context())))
			return
		}
		next.ServeHTTP(w, r)
	})
}

//
// Rendering
//

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(platformerrors.GetCode(err)), platformerrors.ToJSON(err))
}

func statusFor(code platformerrors.ErrorCode) int {
	switch code {
	case platformerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case platformerrors.CodeForbidden:
		return http.StatusForbidden
	case platformerrors.CodeNotFound:
		return http.StatusNotFound
	case platformerrors.CodeRateLimit:
		return http.StatusTooManyRequests
	case platformerrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
