// internal/tenant/meta/config.go
//
// Per-tenant configuration fetcher.
//
// Context
// -------
// Every tenant can define string settings in the `tenant_config` table:
// feature lists, persona allow-lists, quotas, TTL overrides, and rate
// limits.  The tenant source pulls all rows in a single query at cold load
// and folds them into a Config; nothing here is consulted per request.
//
// Notes
// -----
//   - Keys are case-sensitive and unique per tenant.
//   - The helper never logs; callers wrap errors with context.
package meta

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// ConfigByTenant loads every `tenant_config` row for tenantID and returns
// them as a map[key]value.
func ConfigByTenant(ctx context.Context, db *sqlx.DB, tenantID string) (map[string]string, error) {
	const q = `
	    SELECT  ` + "`key`, value" + `
	    FROM    tenant_config
	    WHERE   tenant_id = ?`

	rows := make([]struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}, 0, 8)

	if err := db.SelectContext(ctx, &rows, q, tenantID); err != nil {
		return nil, err
	}

	cfg := make(map[string]string, len(rows))
	for _, r := range rows {
		cfg[r.Key] = r.Value
	}
	return cfg, nil
}
