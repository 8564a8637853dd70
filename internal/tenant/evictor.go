// evictor.go houses the eviction loop for Provider.  Every EvictInterval it
// scans the map and removes:
//
//   - fallback tenants whose retry window has passed
//   - tenants idle longer than idleTTL
//   - least-recently-used tenants when map size exceeds maxEntries
//
// Each eviction is logged at debug level and updates Prometheus counters.
package tenant

import (
	"sort"
	"time"

	"github.com/yanizio/tenantcache/internal/metrics"
)

func (p *Provider) evictLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.evictTicker.C:
			p.evictOnce(p.now())
		}
	}
}

func (p *Provider) evictOnce(now time.Time) {
	var count int

	// ----------------------------------------------------------------
	// Idle and expiry pass
	// ----------------------------------------------------------------
	p.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		idle := time.Duration(now.UnixNano() - ent.lastSeen.Load())
		switch {
		case ent.expired(now):
			p.drop(key, ent, "fallback expired")
		case idle > p.idleTTL:
			p.drop(key, ent, "idle "+idle.Truncate(time.Second).String())
		default:
			count++
		}
		return true
	})

	// ----------------------------------------------------------------
	// LRU pass
	// ----------------------------------------------------------------
	if p.maxEntries > 0 && count > p.maxEntries {
		type kv struct {
			key string
			at  int64
		}
		all := make([]kv, 0, count)
		p.m.Range(func(key, value any) bool {
			all = append(all, kv{key: key.(string), at: value.(*entry).lastSeen.Load()})
			return true
		})
		sort.Slice(all, func(i, j int) bool { return all[i].at < all[j].at })
		for i := 0; i < len(all)-p.maxEntries; i++ {
			if v, ok := p.m.Load(all[i].key); ok {
				p.drop(all[i].key, v.(*entry), "lru pressure")
			}
		}
	}

	p.pruneUsage(now)
}

func (p *Provider) drop(key any, ent *entry, reason string) {
	if !p.m.CompareAndDelete(key, ent) {
		return
	}
	p.log.Debugw("tenant evicted", "tenant", key, "reason", reason)
	metrics.TenantEvictTotal.Inc()
	metrics.ActiveTenants.Dec()
}
