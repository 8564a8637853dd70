package contentcache

import (
	"encoding/json"
	"errors"

	platformerrors "github.com/jmgilman/go/errors"
)

// ErrInvalidValue rejects values that are not well-formed JSON.
var ErrInvalidValue = errors.New("cache value is not valid JSON")

func checkValue(v json.RawMessage) error {
	if json.Valid(v) {
		return nil
	}
	return platformerrors.Wrap(ErrInvalidValue, platformerrors.CodeInvalidInput, "invalid cache value")
}
