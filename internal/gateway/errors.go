package gateway

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindUnavailable covers network failures, timeouts and gateway 5xx.
	KindUnavailable ErrorKind = iota
	// KindRejected covers 4xx responses: bad instance name, not found,
	// duplicate instance (Evolution reports that one as 403).
	KindRejected
	// KindAuthFailed covers a refused apikey credential (401).
	KindAuthFailed
)

// APIError is returned by every Client call that fails. Status is zero when
// the request never reached the gateway.
type APIError struct {
	Op     string
	Status int
	Body   string
	cause  error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("evolution %s: gateway unreachable: %v", e.Op, e.cause)
	}
	return fmt.Sprintf("evolution %s: gateway returned %d", e.Op, e.Status)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func (e *APIError) Kind() ErrorKind {
	switch {
	case e.Status == 0 || e.Status >= 500:
		return KindUnavailable
	case e.Status == 401:
		return KindAuthFailed
	default:
		return KindRejected
	}
}

func kindOf(err error) (ErrorKind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind(), true
	}
	return 0, false
}

// IsUnavailable reports whether err is a transient gateway failure the
// caller may retry later.
func IsUnavailable(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindUnavailable
}

// IsRejected reports whether the gateway refused the request outright.
func IsRejected(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRejected
}

// IsAuthFailed reports whether the shared gateway credential was refused.
func IsAuthFailed(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindAuthFailed
}
