package lookup

import (
	"context"
	"strings"
	"time"

	"github.com/yanizio/tenantcache/internal/keyspace"
	"github.com/yanizio/tenantcache/internal/tenant"
	"github.com/yanizio/tenantcache/internal/tiered"
)

// KBEntry is one ADR or changelog record.
type KBEntry struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Status string    `json:"status,omitempty"`
	Date   time.Time `json:"date"`
	Body   string    `json:"body"`
	Tags   []string  `json:"tags,omitempty"`
}

// KBSource fetches entries from the knowledge store.  kind is
// keyspace.TypeADR or keyspace.TypeChangelog.
type KBSource interface {
	LookupKB(ctx context.Context, kind keyspace.Type, id string) (KBEntry, error)
}

// KBSourceFunc adapts a function to KBSource.
type KBSourceFunc func(ctx context.Context, kind keyspace.Type, id string) (KBEntry, error)

func (f KBSourceFunc) LookupKB(ctx context.Context, kind keyspace.Type, id string) (KBEntry, error) {
	return f(ctx, kind, id)
}

// KnowledgeBase caches ADR and changelog lookups per tenant.
type KnowledgeBase struct {
	src     KBSource
	cache   *tiered.Cache[keyspace.Key, KBEntry]
	resolve tenant.Resolver
}

// NewKnowledgeBase wraps src with an entry cache.
func NewKnowledgeBase(src KBSource, o Options, opts ...tiered.Option) *KnowledgeBase {
	resolve := o.resolver()
	return &KnowledgeBase{
		src:     src,
		resolve: resolve,
		cache: tiered.New[keyspace.Key](tiered.Config[KBEntry]{
			Name:           "kb",
			MaxEntries:     o.MaxEntries,
			L2:             o.L2,
			StaleWindow:    o.StaleWindow,
			RefreshTimeout: o.RefreshTimeout,
			TTLOverride:    tenant.TTLOverride(resolve),
			Logger:         o.Logger,
		}, opts...),
	}
}

// ADR returns the architecture decision record id, e.g. "ADR-0042".
func (kb *KnowledgeBase) ADR(ctx context.Context, id string) (KBEntry, error) {
	return kb.get(ctx, keyspace.TypeADR, tenant.FeatureADR, id)
}

// Changelog returns the changelog entry for a version, e.g. "v1.4.0".
func (kb *KnowledgeBase) Changelog(ctx context.Context, version string) (KBEntry, error) {
	return kb.get(ctx, keyspace.TypeChangelog, tenant.FeatureChangelog, version)
}

func (kb *KnowledgeBase) get(ctx context.Context, kind keyspace.Type, f tenant.Feature, id string) (KBEntry, error) {
	t := kb.resolve(ctx)
	if !t.HasFeature(f) {
		return KBEntry{}, featureDisabled(t, f)
	}
	id = strings.TrimSpace(id)
	k, err := keyspace.New(t.ID(), kind, strings.ToLower(id), "")
	if err != nil {
		return KBEntry{}, err
	}
	return kb.cache.GetOrFetch(ctx, k, func(ctx context.Context) (KBEntry, error) {
		return kb.src.LookupKB(ctx, kind, id)
	}, tiered.WithStaleWhileRevalidate())
}

// Forget drops a cached entry, e.g. after an ADR is superseded.
func (kb *KnowledgeBase) Forget(ctx context.Context, kind keyspace.Type, id string) error {
	k, err := keyspace.New(kb.resolve(ctx).ID(), kind, strings.ToLower(strings.TrimSpace(id)), "")
	if err != nil {
		return err
	}
	kb.cache.Delete(ctx, k)
	return nil
}

// InvalidateTenant drops every cached ADR and changelog entry of the
// scoped tenant.
func (kb *KnowledgeBase) InvalidateTenant(ctx context.Context) (int, error) {
	return kb.cache.DeleteTenant(ctx, kb.resolve(ctx).ID())
}

func (kb *KnowledgeBase) Name() string { return kb.cache.Name() }

// Metrics returns the cache counters.
func (kb *KnowledgeBase) Metrics() tiered.Snapshot { return kb.cache.Metrics() }

// Close waits for background refreshes.
func (kb *KnowledgeBase) Close() error { return kb.cache.Close() }
