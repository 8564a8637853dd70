// Package metrics holds Prometheus instruments that are used across the
// cache engine.  All collectors are registered with the global registry, so
// mounting promhttp.Handler() is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveTenants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcache_active_tenants",
			Help: "Number of tenant configurations currently loaded in memory.",
		})

	TenantLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tcache_tenant_load_total",
			Help: "Cumulative number of tenant configurations successfully loaded.",
		})

	TenantLoadFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tcache_tenant_load_fallback_total",
			Help: "Tenant loads that fell back to the default configuration.",
		})

	TenantEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tcache_tenant_evict_total",
			Help: "Cumulative number of tenant configurations evicted from memory.",
		})

	// CacheEvents counts lookups, writes, and failures per cache instance.
	// The event label mirrors the fields of tiered.Snapshot.
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcache_cache_events_total",
			Help: "Cache events by cache name and event kind.",
		}, []string{"cache", "event"})

	L1Entries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcache_l1_entries",
			Help: "Entries currently held in the process-local tier.",
		}, []string{"cache"})

	L1Bytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcache_l1_bytes",
			Help: "Approximate bytes held in the process-local tier.",
		}, []string{"cache"})

	RefreshInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcache_refresh_inflight",
			Help: "Background stale-while-revalidate refreshes currently running.",
		}, []string{"cache"})

	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcache_l2_breaker_transitions_total",
			Help: "Circuit breaker state changes on the shared tier.",
		}, []string{"store", "to"})
)

func init() {
	prometheus.MustRegister(
		ActiveTenants,
		TenantLoadTotal,
		TenantLoadFallbackTotal,
		TenantEvictTotal,
		CacheEvents,
		L1Entries,
		L1Bytes,
		RefreshInflight,
		BreakerTransitions,
	)
}
