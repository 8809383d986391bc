package api

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnauthorized is returned when the service rejects the session key.
var ErrUnauthorized = errors.New("unauthorized")

// ServiceError is a non-2xx response from the service.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service returned status %d", e.Status)
	}
	return fmt.Sprintf("service returned status %d: %s", e.Status, e.Message)
}

// Transient reports whether retrying on the next scheduled cycle is
// reasonable.
func (e *ServiceError) Transient() bool {
	return e.Status >= 500
}

// IsTransient classifies network failures and 5xx responses as
// retryable. Pollers and the thread sync loop treat these as neutral
// and simply await their next trigger.
func IsTransient(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Transient()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsValidation classifies rejections of the request itself: bad
// credentials or malformed input. These are terminal for the call and
// never retried implicitly.
func IsValidation(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Status >= 400 && se.Status < 500
	}
	return false
}
