package permissions

import (
	"errors"
	"fmt"
)

// DeniedError is returned when a caller's effective set lacks the required
// permission. It is distinguishable from not-found and validation failures so
// the transport layer maps it to 403 rather than 404 or 400.
type DeniedError struct {
	Permission Permission
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("missing permission %q", e.Permission)
}

// Authorize checks the effective set against a required permission.
// A zero-value required permission means the operation only needs an
// authenticated caller; routes meant for anonymous callers are marked public
// at registration time, never inferred from a missing requirement.
func Authorize(set Set, required Permission) error {
	if required == "" {
		return nil
	}
	if set.Has(required) {
		return nil
	}
	return &DeniedError{Permission: required}
}

// IsDenied reports whether an error is an authorization denial
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}
