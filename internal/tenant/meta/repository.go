// internal/tenant/meta/repository.go
//
// Tenant-table query helpers.
//
// Context
// -------
//   - `ByID`      — SQL tenant source on cold load.
//   - `AllActive` — admin listing and cache warm-up.
//
// Both exclude suspended or deleted rows at SQL level so callers stay
// simple.
//
// Notes
// -----
//   - Column list matches the fields in `Record`; update both together.
//   - Errors are returned verbatim; `sql.ErrNoRows` means "no such tenant".
package meta

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const columns = `id, name, suspended_at, deleted_at, created_at, updated_at`

// AllActive returns every tenant that is neither suspended nor deleted.
func AllActive(ctx context.Context, db *sqlx.DB) ([]Record, error) {
	const q = `
        SELECT ` + columns + `
        FROM   tenant
        WHERE  suspended_at IS NULL
          AND  deleted_at   IS NULL
        ORDER  BY id`
	var rows []Record
	if err := db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// ByID fetches a single active tenant row.
func ByID(ctx context.Context, db *sqlx.DB, id string) (*Record, error) {
	const q = `
        SELECT ` + columns + `
        FROM   tenant
        WHERE  id = ?
          AND  suspended_at IS NULL
          AND  deleted_at   IS NULL
        LIMIT  1`
	var rec Record
	if err := db.GetContext(ctx, &rec, q, id); err != nil {
		return nil, err
	}
	return &rec, nil
}
