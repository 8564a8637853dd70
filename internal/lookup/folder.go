package lookup

import (
	"context"
	"path"
	"strings"

	"github.com/yanizio/tenantcache/internal/contentcache"
	"github.com/yanizio/tenantcache/internal/keyspace"
	"github.com/yanizio/tenantcache/internal/tenant"
	"github.com/yanizio/tenantcache/internal/tiered"
)

// FolderSource maps a folder path to the id the document store uses.
type FolderSource interface {
	ResolveFolder(ctx context.Context, path string) (string, error)
}

// FolderSourceFunc adapts a function to FolderSource.
type FolderSourceFunc func(ctx context.Context, path string) (string, error)

func (f FolderSourceFunc) ResolveFolder(ctx context.Context, p string) (string, error) {
	return f(ctx, p)
}

// FolderResolver caches folder id lookups per tenant.
type FolderResolver struct {
	src     FolderSource
	cache   *tiered.Cache[keyspace.Key, string]
	resolve tenant.Resolver
}

// NewFolderResolver wraps src with a folder_id cache.
func NewFolderResolver(src FolderSource, o Options, opts ...tiered.Option) *FolderResolver {
	resolve := o.resolver()
	return &FolderResolver{
		src:     src,
		resolve: resolve,
		cache: tiered.New[keyspace.Key](tiered.Config[string]{
			Name:           "folder",
			MaxEntries:     o.MaxEntries,
			L2:             o.L2,
			StaleWindow:    o.StaleWindow,
			RefreshTimeout: o.RefreshTimeout,
			TTLOverride:    tenant.TTLOverride(resolve),
			Logger:         o.Logger,
		}, opts...),
	}
}

// cleanPath makes "/Docs//ADR/" and "docs/adr" the same folder.
func cleanPath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	return strings.Trim(path.Clean("/"+p), "/")
}

func (r *FolderResolver) key(ctx context.Context, p string) (keyspace.Key, error) {
	return keyspace.New(r.resolve(ctx).ID(), keyspace.TypeFolderID, contentcache.GenerateContentHash(cleanPath(p)), "")
}

// Resolve returns the folder id for p.
func (r *FolderResolver) Resolve(ctx context.Context, p string) (string, error) {
	t := r.resolve(ctx)
	if !t.HasFeature(tenant.FeatureFolderLookup) {
		return "", featureDisabled(t, tenant.FeatureFolderLookup)
	}
	k, err := r.key(ctx, p)
	if err != nil {
		return "", err
	}
	clean := cleanPath(p)
	return r.cache.GetOrFetch(ctx, k, func(ctx context.Context) (string, error) {
		return r.src.ResolveFolder(ctx, clean)
	}, tiered.WithStaleWhileRevalidate())
}

// Forget drops the cached id for p, e.g. after a folder move.
func (r *FolderResolver) Forget(ctx context.Context, p string) error {
	k, err := r.key(ctx, p)
	if err != nil {
		return err
	}
	r.cache.Delete(ctx, k)
	return nil
}

// InvalidateTenant drops every cached folder id of the scoped tenant.
func (r *FolderResolver) InvalidateTenant(ctx context.Context) (int, error) {
	return r.cache.DeleteTenant(ctx, r.resolve(ctx).ID())
}

// Name reports the cache name used in metrics.
func (r *FolderResolver) Name() string { return r.cache.Name() }

// Metrics returns the cache counters.
func (r *FolderResolver) Metrics() tiered.Snapshot { return r.cache.Metrics() }

// Close waits for background refreshes.
func (r *FolderResolver) Close() error { return r.cache.Close() }
