// internal/tiered/metrics.go
//
// Per-cache counters.
//
// Context
// -------
// Every Cache owns one Metrics value.  Counters are atomics so recording
// never takes a lock, and each increment is mirrored into the Prometheus
// CounterVec `tcache_cache_events_total{cache,event}`.  Reset zeroes the
// local counters only; Prometheus counters stay monotonic.
package tiered

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yanizio/tenantcache/internal/metrics"
)

type event int

const (
	evL1Hit event = iota
	evL1Miss
	evL2Hit
	evL2Miss
	evStaleServe
	evRefresh
	evRefreshFailure
	evFetch
	evWrite
	evInvalidation
	evError
	evEviction
	numEvents
)

var eventNames = [numEvents]string{
	"l1_hit", "l1_miss", "l2_hit", "l2_miss", "stale_serve", "refresh",
	"refresh_failure", "fetch", "write", "invalidation", "error", "eviction",
}

// Metrics records cache events.
type Metrics struct {
	counts [numEvents]atomic.Int64
	prom   [numEvents]prometheus.Counter
}

func newMetrics(name string) *Metrics {
	m := &Metrics{}
	for i := range m.prom {
		m.prom[i] = metrics.CacheEvents.WithLabelValues(name, eventNames[i])
	}
	return m
}

func (m *Metrics) inc(ev event) {
	m.counts[ev].Add(1)
	m.prom[ev].Inc()
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	for i := range m.counts {
		m.counts[i].Store(0)
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	L1Hits          int64 `json:"l1_hits"`
	L1Misses        int64 `json:"l1_misses"`
	L2Hits          int64 `json:"l2_hits"`
	L2Misses        int64 `json:"l2_misses"`
	StaleServes     int64 `json:"stale_serves"`
	Refreshes       int64 `json:"refreshes"`
	RefreshFailures int64 `json:"refresh_failures"`
	Fetches         int64 `json:"fetches"`
	Writes          int64 `json:"writes"`
	Invalidations   int64 `json:"invalidations"`
	Errors          int64 `json:"errors"`
	Evictions       int64 `json:"evictions"`
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	c := func(ev event) int64 { return m.counts[ev].Load() }
	return Snapshot{
		L1Hits:          c(evL1Hit),
		L1Misses:        c(evL1Miss),
		L2Hits:          c(evL2Hit),
		L2Misses:        c(evL2Miss),
		StaleServes:     c(evStaleServe),
		Refreshes:       c(evRefresh),
		RefreshFailures: c(evRefreshFailure),
		Fetches:         c(evFetch),
		Writes:          c(evWrite),
		Invalidations:   c(evInvalidation),
		Errors:          c(evError),
		Evictions:       c(evEviction),
	}
}

// Lookups is the number of reads that reached the cache.  Every read has
// exactly one L1 outcome.
func (s Snapshot) Lookups() int64 { return s.L1Hits + s.L1Misses }

// HitRate is the share of lookups answered fresh by either tier.
func (s Snapshot) HitRate() float64 {
	n := s.Lookups()
	if n == 0 {
		return 0
	}
	return float64(s.L1Hits+s.L2Hits) / float64(n)
}
