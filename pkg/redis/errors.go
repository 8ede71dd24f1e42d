package redis

import "errors"

var (
	ErrEmptyConnectionURL           = errors.New("redis: connection url is empty")
	ErrFailedToParseRedisConnString = errors.New("redis: failed to parse connection url")
	ErrRedisNotReady                = errors.New("redis: server not ready before timeout")
	ErrHealthcheckFailed            = errors.New("redis: healthcheck failed")
)
