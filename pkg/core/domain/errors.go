package domain

import (
	"errors"
	"fmt"
)

var (
	ErrLinkNotFound   = errors.New("link not found")
	ErrInvalidAddress = errors.New("invalid ip address")
	ErrResolveFailed  = errors.New("resolving ip failed")
)

// UpdateFailedError is returned when the geolocation database could not be
// refreshed. OldCopyExists tells the caller whether a previous file is still
// available for lookups.
type UpdateFailedError struct {
	OldCopyExists bool
	Err           error
}

func NewUpdateFailedError(oldCopyExists bool, err error) *UpdateFailedError {
	return &UpdateFailedError{OldCopyExists: oldCopyExists, Err: err}
}

func (e *UpdateFailedError) Error() string {
	if e.OldCopyExists {
		return fmt.Sprintf("geolite2 database update failed, old copy retained: %v", e.Err)
	}

	return fmt.Sprintf("geolite2 database download failed, no copy available: %v", e.Err)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}
