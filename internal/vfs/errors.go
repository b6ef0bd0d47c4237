package vfs

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/Ning0612/Gitbox/internal/handle"
)

// Error codes, matching the Node-style vocabulary the git layer expects
const (
	ENOENT    = "ENOENT"
	ENOTDIR   = "ENOTDIR"
	ENOTEMPTY = "ENOTEMPTY"
	ENOTSUP   = "ENOTSUP"
	EINVAL    = "EINVAL"
	EIO       = "EIO"
)

var (
	errParentSegment = errors.New("parent directory segments are not supported")
	errNoLinks       = errors.New("storage has no link primitive")
	errRootLeaf      = errors.New("operation needs a named entry, got the root")
)

// Error is a failed filesystem operation with a stable code
type Error struct {
	Code string
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := describe(e.Code)
	if e.Err != nil && e.Code == EIO {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s, %s '%s'", e.Code, msg, e.Op, e.Path)
}

// Unwrap exposes the io/fs sentinel for the code and the underlying cause
func (e *Error) Unwrap() []error {
	var errs []error
	switch e.Code {
	case ENOENT:
		errs = append(errs, fs.ErrNotExist)
	case ENOTSUP:
		errs = append(errs, errors.ErrUnsupported)
	case EINVAL:
		errs = append(errs, fs.ErrInvalid)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func describe(code string) string {
	switch code {
	case ENOENT:
		return "no such file or directory"
	case ENOTDIR:
		return "not a directory"
	case ENOTEMPTY:
		return "directory not empty"
	case ENOTSUP:
		return "operation not supported"
	case EINVAL:
		return "invalid argument"
	default:
		return "i/o error"
	}
}

func knownCode(code string) bool {
	switch code {
	case ENOENT, ENOTDIR, ENOTEMPTY, ENOTSUP, EINVAL, EIO:
		return true
	}
	return false
}

// translate maps a substrate failure to an *Error for op on path.
// Errors that already carry a known code pass through unchanged.
func translate(err error, op, path string) error {
	if err == nil {
		return nil
	}

	var fsErr *Error
	if errors.As(err, &fsErr) && knownCode(fsErr.Code) {
		return err
	}

	code := EIO
	switch {
	case errors.Is(err, handle.ErrNotFound):
		code = ENOENT
	case errors.Is(err, handle.ErrTypeMismatch):
		code = ENOTDIR
	case errors.Is(err, handle.ErrNotEmpty):
		code = ENOTEMPTY
	}

	return &Error{Code: code, Op: op, Path: path, Err: err}
}

// Code returns the error code carried by err, or "" if none
func Code(err error) string {
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr.Code
	}
	return ""
}

// IsNotExist reports whether err is an ENOENT failure
func IsNotExist(err error) bool {
	return Code(err) == ENOENT
}
