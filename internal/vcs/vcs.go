// Package vcs defines the narrow operation set the sync engine consumes from
// a version-control implementation. The engine never interprets object ids:
// it only compares two resolved refs for equality.
package vcs

import (
	"context"
	"time"
)

// DefaultRemote is the remote name every operation targets
const DefaultRemote = "origin"

// MetadataDir is the repository metadata directory inside the working copy
const MetadataDir = ".git"

// FileState is one side of a three-way status comparison
type FileState int

const (
	// StateAbsent means the path does not exist on that side
	StateAbsent FileState = iota
	// StateUnchanged means the path matches HEAD (for Head: present)
	StateUnchanged
	// StateChanged means the path exists but differs from HEAD
	StateChanged
)

// String returns the string representation of the state
func (s FileState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateUnchanged:
		return "unchanged"
	case StateChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// StatusRow is one path of the status matrix
type StatusRow struct {
	Path    string
	Head    FileState
	Workdir FileState
	Stage   FileState

	// Unstaged is set when the working copy differs from the index
	Unstaged bool
}

// Auth carries HTTP basic credentials
type Auth struct {
	Username string
	Password string
}

// Empty reports whether no credentials are set
func (a Auth) Empty() bool {
	return a.Username == "" && a.Password == ""
}

// Author identifies the committer
type Author struct {
	Name  string
	Email string
	When  time.Time
}

// CloneOptions configures Clone
type CloneOptions struct {
	URL          string
	Branch       string
	Depth        int
	SingleBranch bool
	Auth         Auth
}

// FetchOptions configures Fetch
type FetchOptions struct {
	Branch       string
	Depth        int
	SingleBranch bool
	Auth         Auth
}

// PullOptions configures Pull
type PullOptions struct {
	Branch          string
	Author          Author
	FastForwardOnly bool
	SingleBranch    bool
	Auth            Auth
}

// PushOptions configures Push
type PushOptions struct {
	Branch string
	Force  bool
	Auth   Auth
}

// Client is the version-control collaborator.
// Implementations store everything, including MetadataDir, in the filesystem
// they were constructed with.
type Client interface {
	Clone(ctx context.Context, opts CloneOptions) error

	// Fetch, Pull and Push return nil when there is nothing to transfer
	Fetch(ctx context.Context, opts FetchOptions) error
	Pull(ctx context.Context, opts PullOptions) error
	Push(ctx context.Context, opts PushOptions) error

	// Add stages the working-copy content of path
	Add(ctx context.Context, path string) error

	// Remove stages the removal of path
	Remove(ctx context.Context, path string) error

	// Commit records the index and returns the new commit id
	Commit(ctx context.Context, message string, author Author) (string, error)

	StatusMatrix(ctx context.Context) ([]StatusRow, error)

	// CreateBranch creates a local branch at HEAD
	CreateBranch(ctx context.Context, name string) error

	Checkout(ctx context.Context, ref string) error

	// ResolveRef returns the object id ref points at
	ResolveRef(ctx context.Context, ref string) (string, error)

	// IsAncestor reports whether commit ancestor is reachable from
	// descendant. History cut off by a shallow clone counts as unreachable.
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)
}

// RemoteRef is the ref name of branch on the default remote
func RemoteRef(branch string) string {
	return "refs/remotes/" + DefaultRemote + "/" + branch
}
