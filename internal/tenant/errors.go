package tenant

import (
	"errors"

	platformerrors "github.com/jmgilman/go/errors"
)

var (
	// ErrNotFound is returned by a Source when it has no record of a tenant.
	ErrNotFound = errors.New("tenant not found")

	// ErrInvalidTenantID rejects identifiers that could not be used as a key
	// namespace.
	ErrInvalidTenantID = errors.New("invalid tenant id")

	// ErrQuotaExceeded is returned when a daily or concurrency quota is spent.
	ErrQuotaExceeded = errors.New("tenant quota exceeded")

	// ErrRateLimited is returned by Wait-style callers when the tenant's
	// request rate is exhausted.
	ErrRateLimited = errors.New("tenant rate limited")
)

func invalidID(id string) error {
	err := platformerrors.Wrap(ErrInvalidTenantID, platformerrors.CodeInvalidInput, "invalid tenant id")
	return platformerrors.WithContext(err, "tenant", id)
}

func quotaExceeded(id, quota string) error {
	err := platformerrors.Wrap(ErrQuotaExceeded, platformerrors.CodeRateLimit, quota+" quota exceeded")
	return platformerrors.WithContextMap(err, map[string]interface{}{"tenant": id, "quota": quota})
}
