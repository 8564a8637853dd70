// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `loader.go` calls `validateStruct` right after it unmarshals the merged
// Koanf tree.  Any validation error aborts startup, so the binary never
// runs with partial or malformed configuration.
//
// Custom rules
// ------------
//   • `tenant_id`   – restricted tenant identifier (keyspace.ValidTenantID).
//   • `cache_type`  – one of the known cache types (keyspace.Type.Valid).
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.
package config

import (
	"github.com/go-playground/validator/v10"

	"github.com/yanizio/tenantcache/internal/keyspace"
)

//
// validator instance (package-level singleton)
//

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("tenant_id", func(fl validator.FieldLevel) bool {
		return keyspace.ValidTenantID(fl.Field().String())
	})
	_ = val.RegisterValidation("cache_type", func(fl validator.FieldLevel) bool {
		return keyspace.Type(fl.Field().String()).Valid()
	})
	return val
}

//
// public API
//

// validateStruct returns the validation errors, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
