package session

import "errors"

var (
	ErrNotFound                     = errors.New("session not found")
	ErrInvalidFragment              = errors.New("invalid showfor fragment")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")
)
