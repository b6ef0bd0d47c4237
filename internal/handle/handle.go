// Package handle defines the hierarchical storage substrate the filesystem
// adapter is built on. Storage is reached only through chained lookups from a
// root directory handle; there are no string paths at this layer.
package handle

import (
	"context"
	"errors"
	"time"
)

// Substrate failures. Backends return these (possibly wrapped) so the
// filesystem adapter can translate them into stable error codes.
var (
	// ErrNotFound indicates the named entry does not exist
	ErrNotFound = errors.New("entry not found")

	// ErrTypeMismatch indicates a file was found where a directory was expected, or the reverse
	ErrTypeMismatch = errors.New("entry type mismatch")

	// ErrNotEmpty indicates a non-recursive removal of a directory with children
	ErrNotEmpty = errors.New("directory not empty")
)

// Kind is the type of an entry
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// Entry is one child of a directory as reported by its iterator
type Entry struct {
	Name string
	Kind Kind
}

// FileInfo is what a file handle knows about its contents
type FileInfo struct {
	Size    int64
	ModTime time.Time
}

// Directory is a handle to one directory
type Directory interface {
	// Name returns the entry name; empty for the root
	Name() string

	// GetDirectory returns the child directory handle.
	// With create set, a missing child is created.
	// Returns ErrTypeMismatch if the child is a file.
	GetDirectory(ctx context.Context, name string, create bool) (Directory, error)

	// GetFile returns the child file handle.
	// With create set, a missing child is created empty.
	// Returns ErrTypeMismatch if the child is a directory.
	GetFile(ctx context.Context, name string, create bool) (File, error)

	// RemoveEntry removes a child of either kind.
	// Without recursive, removing a directory with children returns ErrNotEmpty.
	RemoveEntry(ctx context.Context, name string, recursive bool) error

	// Entries lists children in the backend's iteration order
	Entries(ctx context.Context) ([]Entry, error)
}

// File is a handle to one file
type File interface {
	Name() string

	// Read returns the full contents
	Read(ctx context.Context) ([]byte, error)

	// Write replaces the full contents
	Write(ctx context.Context, data []byte) error

	Stat(ctx context.Context) (FileInfo, error)
}
