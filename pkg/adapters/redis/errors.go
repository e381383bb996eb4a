package redis

import "errors"

var (
	ErrFailedToParseConnString = errors.New("failed to parse redis connection string")
	ErrNotReady                = errors.New("redis did not become ready within the given time period")
	ErrLockNotHeld             = errors.New("lock is not held")
	ErrCorruptRecord           = errors.New("corrupt history record")
)
