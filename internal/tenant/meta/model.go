// internal/tenant/meta/model.go
//
// `tenant` table row model.
//
// Context
// -------
// The `Record` struct mirrors one row in the control-plane **tenant**
// table.  The SQL tenant source reads it to confirm a tenant exists and is
// active before pulling its key-value settings from `tenant_config`.
//
// Schema reference
//
//	CREATE TABLE tenant (
//	    id            VARCHAR(64)   PRIMARY KEY,
//	    name          VARCHAR(256)  NOT NULL,
//	    suspended_at  TIMESTAMP NULL,
//	    deleted_at    TIMESTAMP NULL,
//	    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
//	    updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
//	);
//
//	CREATE TABLE tenant_config (
//	    tenant_id  VARCHAR(64)   NOT NULL,
//	    `key`      VARCHAR(128)  NOT NULL,
//	    value      VARCHAR(1024) NOT NULL,
//	    PRIMARY KEY (tenant_id, `key`)
//	);
//
// Notes
// -----
// • Nullable timestamps are `*time.Time`; callers must nil-check before use.
// • Pure data model for sqlx scans.
package meta

import "time"

// Record mirrors one row in the `tenant` table.
type Record struct {
	ID          string     `db:"id"`
	Name        string     `db:"name"`
	SuspendedAt *time.Time `db:"suspended_at"`
	DeletedAt   *time.Time `db:"deleted_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}
