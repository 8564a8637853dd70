// internal/tenant/source_sql.go
//
// Control-plane database tenant source.
//
// Workflow
// --------
//  1. Fetch the active `tenant` row (meta.ByID).
//  2. Fetch its `tenant_config` rows (meta.ConfigByTenant).
//  3. Fold the rows into a Config (configFromKV).
//
// A missing or suspended tenant yields ErrNotFound.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/tenantcache/internal/tenant/meta"
)

// SQLSource reads tenants from the control-plane database.
type SQLSource struct {
	db *sqlx.DB
}

// NewSQLSource wraps an open pool.  The caller owns db.
func NewSQLSource(db *sqlx.DB) *SQLSource { return &SQLSource{db: db} }

func (s *SQLSource) Lookup(ctx context.Context, id string) (Config, error) {
	rec, err := meta.ByID(ctx, s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Config{}, ErrNotFound
	}
	if err != nil {
		return Config{}, fmt.Errorf("tenant row %s: %w", id, err)
	}

	kv, err := meta.ConfigByTenant(ctx, s.db, rec.ID)
	if err != nil {
		return Config{}, fmt.Errorf("tenant config %s: %w", id, err)
	}
	return configFromKV(rec.Name, kv)
}

// IDs lists every active tenant.
func (s *SQLSource) IDs(ctx context.Context) ([]string, error) {
	recs, err := meta.AllActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids, nil
}
