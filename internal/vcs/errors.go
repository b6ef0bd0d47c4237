package vcs

import (
	"errors"
	"strings"
)

var (
	// ErrRepositoryNotFound is returned when the remote has no such repository
	ErrRepositoryNotFound = errors.New("remote repository not found")

	// ErrRefNotFound is returned when a ref cannot be resolved
	ErrRefNotFound = errors.New("reference not found")

	// ErrNotFastForward is returned when a fast-forward-only pull cannot proceed
	ErrNotFastForward = errors.New("non-fast-forward update")
)

// HTTPError carries a transport status code
type HTTPError struct {
	StatusCode int
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "http error"
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the remote repository or branch does not exist.
// Transport status 404 and "not found" messages both count.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRepositoryNotFound) || errors.Is(err, ErrRefNotFound) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == 404 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}
