package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound signals that the repository, file or directory does not exist.
	ErrNotFound = errors.New("remote: not found")
	// ErrConflict signals that the concurrency token did not match the current file version.
	ErrConflict = errors.New("remote: concurrency conflict")
	// ErrPermissionDenied signals an expired or insufficiently scoped credential.
	ErrPermissionDenied = errors.New("remote: permission denied")
	// ErrRateLimited signals that the backing API throttled the request.
	ErrRateLimited = errors.New("remote: rate limited")
	// ErrAlreadyExists is returned by CreateRepository when the name is taken.
	ErrAlreadyExists = errors.New("remote: already exists")
	// ErrTransient covers network failures and 5xx responses that are worth retrying.
	ErrTransient = errors.New("remote: transient failure")
)

// APIError describes a non-successful response from the backing API.
type APIError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is worth retrying without user intervention.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}

// classifyStatus maps an HTTP status to one of the sentinel errors.
// rateLimited is set when the response carried an exhausted rate-limit header.
func classifyStatus(status int, rateLimited bool) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusForbidden && rateLimited:
		return ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrPermissionDenied
	case status >= 500:
		return ErrTransient
	default:
		return fmt.Errorf("remote: unexpected status %d", status)
	}
}
