package domain

import (
	"errors"
	"fmt"
)

// Storage errors - 儲存層錯誤
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates expected a file but got a directory
	ErrNotFile = errors.New("not a file")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")
)

// Sync errors - 同步邏輯層錯誤
var (
	// ErrNotConnected indicates an operation that needs a repository binding ran without one
	ErrNotConnected = errors.New("no repository connected")

	// ErrSyncConflict indicates both local and remote diverged
	ErrSyncConflict = errors.New("sync conflict")

	// ErrSyncInProgress indicates another foreground operation holds the session
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNothingToCommit indicates a commit was requested with a clean working copy
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrRepoNotFound is the sentinel matched by RepoNotFoundError
	ErrRepoNotFound = errors.New("repository not found")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)

// RepoNotFoundError is returned by connect when the remote answered 404.
type RepoNotFoundError struct {
	URL string
	Err error
}

func (e *RepoNotFoundError) Error() string {
	return fmt.Sprintf("repository not found: %s", e.URL)
}

// Is reports a match against ErrRepoNotFound
func (e *RepoNotFoundError) Is(target error) bool {
	return target == ErrRepoNotFound
}

func (e *RepoNotFoundError) Unwrap() error {
	return e.Err
}
