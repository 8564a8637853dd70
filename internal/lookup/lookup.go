// Package lookup caches small, frequently repeated lookups that sit next to
// the transformation pipeline: folder path to folder id, and ADR or
// changelog entries.  Both ride on the tiered engine with
// stale-while-revalidate, so a slow upstream only ever delays the first
// request for a key.
package lookup

import (
	"errors"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	"github.com/yanizio/tenantcache/internal/cache"
	"github.com/yanizio/tenantcache/internal/tenant"
)

// ErrFeatureDisabled is returned when the scoped tenant lacks the feature
// that gates a lookup.
var ErrFeatureDisabled = errors.New("feature disabled for tenant")

// Options is shared by the lookup services.
type Options struct {
	L2             cache.Store
	MaxEntries     int
	StaleWindow    time.Duration
	RefreshTimeout time.Duration
	Logger         *zap.SugaredLogger
	Resolver       tenant.Resolver
}

func (o Options) resolver() tenant.Resolver {
	if o.Resolver == nil {
		return tenant.Current
	}
	return o.Resolver
}

func featureDisabled(t *tenant.Tenant, f tenant.Feature) error {
	err := platformerrors.Wrap(ErrFeatureDisabled, platformerrors.CodeForbidden, string(f)+" disabled")
	return platformerrors.WithContext(err, "tenant", t.ID())
}
