package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"syscall"

	"github.com/spf13/afero"

	"github.com/Ning0612/Gitbox/internal/handle"
)

// Directory implements handle.Directory on top of an afero filesystem.
// The afero path is private to the handle; callers only see names.
type Directory struct {
	fs   afero.Fs
	path string
}

// File implements handle.File on top of an afero filesystem
type File struct {
	fs   afero.Fs
	path string
}

// New returns the root directory handle of fs
func New(fs afero.Fs) *Directory {
	return &Directory{fs: fs, path: "/"}
}

// NewOS returns a root handle confined to root on the host filesystem.
// root is created if missing.
func NewOS(root string) (*Directory, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root cannot be empty")
	}

	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	info, err := osFs.Stat(root)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, handle.ErrTypeMismatch
	}

	return New(afero.NewBasePathFs(osFs, root)), nil
}

// NewMemory returns a root handle over an empty in-memory tree
func NewMemory() *Directory {
	return New(afero.NewMemMapFs())
}

// Name returns the base name; empty for the root
func (d *Directory) Name() string {
	if d.path == "/" {
		return ""
	}
	return path.Base(d.path)
}

// GetDirectory returns a child directory handle, optionally creating it
func (d *Directory) GetDirectory(ctx context.Context, name string, create bool) (handle.Directory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	child := path.Join(d.path, name)
	info, err := d.fs.Stat(child)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, handle.ErrTypeMismatch
		}
	case os.IsNotExist(err) && create:
		if err := d.fs.Mkdir(child, 0755); err != nil && !os.IsExist(err) {
			return nil, mapError(err)
		}
	default:
		return nil, mapError(err)
	}

	return &Directory{fs: d.fs, path: child}, nil
}

// GetFile returns a child file handle, optionally creating an empty file
func (d *Directory) GetFile(ctx context.Context, name string, create bool) (handle.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	child := path.Join(d.path, name)
	info, err := d.fs.Stat(child)
	switch {
	case err == nil:
		if info.IsDir() {
			return nil, handle.ErrTypeMismatch
		}
	case os.IsNotExist(err) && create:
		f, err := d.fs.OpenFile(child, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, mapError(err)
		}
		if err := f.Close(); err != nil {
			return nil, mapError(err)
		}
	default:
		return nil, mapError(err)
	}

	return &File{fs: d.fs, path: child}, nil
}

// RemoveEntry removes a child file or directory
func (d *Directory) RemoveEntry(ctx context.Context, name string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	child := path.Join(d.path, name)
	info, err := d.fs.Stat(child)
	if err != nil {
		return mapError(err)
	}

	if info.IsDir() {
		if recursive {
			return mapError(d.fs.RemoveAll(child))
		}
		// Not every afero backend refuses to drop a populated directory
		empty, err := afero.IsEmpty(d.fs, child)
		if err != nil {
			return mapError(err)
		}
		if !empty {
			return handle.ErrNotEmpty
		}
	}

	return mapError(d.fs.Remove(child))
}

// Entries lists children in the order the directory reader returns them
func (d *Directory) Entries(ctx context.Context) ([]handle.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := d.fs.Open(d.path)
	if err != nil {
		return nil, mapError(err)
	}
	defer dir.Close()

	infos, err := dir.Readdir(-1)
	if err != nil {
		return nil, mapError(err)
	}

	entries := make([]handle.Entry, 0, len(infos))
	for _, info := range infos {
		kind := handle.KindFile
		if info.IsDir() {
			kind = handle.KindDirectory
		}
		entries = append(entries, handle.Entry{Name: info.Name(), Kind: kind})
	}
	return entries, nil
}

// Name returns the base name of the file
func (f *File) Name() string {
	return path.Base(f.path)
}

// Read returns the full file contents
func (f *File) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		return nil, mapError(err)
	}
	return data, nil
}

// Write truncates the file and writes data, closing before returning
func (f *File) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file, err := f.fs.OpenFile(f.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return mapError(err)
	}

	_, writeErr := file.Write(data)
	closeErr := file.Close()
	if writeErr != nil {
		return mapError(writeErr)
	}
	return mapError(closeErr)
}

// Stat returns size and modification time
func (f *File) Stat(ctx context.Context) (handle.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return handle.FileInfo{}, err
	}
	info, err := f.fs.Stat(f.path)
	if err != nil {
		return handle.FileInfo{}, mapError(err)
	}
	if info.IsDir() {
		return handle.FileInfo{}, handle.ErrTypeMismatch
	}
	return handle.FileInfo{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// mapError converts OS errors to substrate errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case os.IsNotExist(err), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", handle.ErrNotFound, err)
	case errors.Is(err, syscall.ENOTDIR), errors.Is(err, syscall.EISDIR):
		return fmt.Errorf("%w: %v", handle.ErrTypeMismatch, err)
	case errors.Is(err, syscall.ENOTEMPTY):
		return fmt.Errorf("%w: %v", handle.ErrNotEmpty, err)
	}

	return err
}

var (
	_ handle.Directory = (*Directory)(nil)
	_ handle.File      = (*File)(nil)
)
