package audit

import "errors"

var (
	// ErrEventValidation indicates event validation failed.
	ErrEventValidation = errors.New("event validation failed")

	// ErrStorageRequired is returned by NewLogger without a storage.
	ErrStorageRequired = errors.New("audit storage is required")
)
