package ttlstore

import "errors"

var (
	ErrNotFound     = errors.New("ttlstore: key not found")
	ErrConsumed     = errors.New("ttlstore: key already consumed")
	ErrKeyRequired  = errors.New("ttlstore: key is required")
	ErrInvalidTTL   = errors.New("ttlstore: ttl must be positive")
	ErrClientNeeded = errors.New("ttlstore: redis client is required")
)
