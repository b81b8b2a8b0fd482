package channelsync

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers branch on these with errors.As/Is:
// auth errors drive a reactive token refresh, rate-limit errors abort the
// current batch, mapping errors are per-record, transport errors abort the
// batch without advancing any checkpoint.

type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return "auth error: " + e.Message }

type RateLimitError struct {
	Remaining int
	ResetsIn  int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (remaining=%d resets_in=%ds)", e.Remaining, e.ResetsIn)
}

type MappingError struct {
	EntityType string
	ExternalId string
	Message    string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping error (%s/%s): %s", e.EntityType, e.ExternalId, e.Message)
}

type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error %d: %s", e.StatusCode, e.Message)
	}
	return "transport error: " + e.Message
}

func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

func IsRateLimitError(err error) bool {
	var e *RateLimitError
	return errors.As(err, &e)
}

func IsMappingError(err error) bool {
	var e *MappingError
	return errors.As(err, &e)
}

func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}
