// Package vfs exposes a handle tree as a path-addressed filesystem with
// Node-style error codes. It is the only storage interface handed to the
// version-control layer.
package vfs

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/Ning0612/Gitbox/internal/handle"
)

// FileSystem is the path-addressed operation set.
// Operations carry no internal locking: concurrent writes to one path are
// unordered and the last write the substrate observes wins.
type FileSystem interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	ReadTextFile(ctx context.Context, path, encoding string) (string, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	Unlink(ctx context.Context, path string) error
	Readdir(ctx context.Context, path string) ([]string, error)
	Mkdir(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string) error
	Stat(ctx context.Context, path string) (Stats, error)
	Lstat(ctx context.Context, path string) (Stats, error)
	Readlink(ctx context.Context, path string) (string, error)
	Symlink(ctx context.Context, target, path string) error
	Chmod(ctx context.Context, path string, mode fs.FileMode) error
	Rename(ctx context.Context, oldPath, newPath string) error
}

// FS implements FileSystem over a root directory handle
type FS struct {
	root handle.Directory
}

// New creates a filesystem rooted at root
func New(root handle.Directory) *FS {
	return &FS{root: root}
}

// ReadFile returns the raw bytes of the file at path
func (f *FS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	file, err := f.openFile(ctx, "open", path, false)
	if err != nil {
		return nil, err
	}
	data, err := file.Read(ctx)
	if err != nil {
		return nil, translate(err, "open", path)
	}
	return data, nil
}

// ReadTextFile reads the file at path and decodes it.
// Only UTF-8 is supported; invalid sequences become U+FFFD.
func (f *FS) ReadTextFile(ctx context.Context, path, encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8":
	default:
		return "", &Error{Code: EINVAL, Op: "open", Path: path, Err: errors.New("unsupported encoding: " + encoding)}
	}

	data, err := f.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

// WriteFile creates or truncates the file at path and writes data.
// Missing intermediate directories are created.
func (f *FS) WriteFile(ctx context.Context, path string, data []byte) error {
	file, err := f.openFile(ctx, "write", path, true)
	if err != nil {
		return err
	}
	return translate(file.Write(ctx, data), "write", path)
}

// Unlink removes a file; directories must go through Rmdir
func (f *FS) Unlink(ctx context.Context, path string) error {
	segments, err := f.segments(ctx, "unlink", path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return &Error{Code: ENOTDIR, Op: "unlink", Path: path, Err: errRootLeaf}
	}

	target, err := resolveLeaf(ctx, f.root, segments, false)
	if err != nil {
		return translate(err, "unlink", path)
	}
	// Type check first: RemoveEntry would happily drop an empty directory
	if _, err := target.parent.GetFile(ctx, target.leaf, false); err != nil {
		return translate(err, "unlink", path)
	}
	return translate(target.parent.RemoveEntry(ctx, target.leaf, false), "unlink", path)
}

// Readdir returns child names in the substrate's enumeration order
func (f *FS) Readdir(ctx context.Context, path string) ([]string, error) {
	entries, err := f.entries(ctx, "scandir", path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// Mkdir creates the full directory chain; existing directories are fine
func (f *FS) Mkdir(ctx context.Context, path string) error {
	segments, err := f.segments(ctx, "mkdir", path)
	if err != nil {
		return err
	}
	return translate(ensureDir(ctx, f.root, segments), "mkdir", path)
}

// Rmdir removes a directory and everything below it.
// Unlike POSIX rmdir it never fails with ENOTEMPTY.
func (f *FS) Rmdir(ctx context.Context, path string) error {
	segments, err := f.segments(ctx, "rmdir", path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return &Error{Code: EINVAL, Op: "rmdir", Path: path, Err: errRootLeaf}
	}

	target, err := resolveLeaf(ctx, f.root, segments, false)
	if err != nil {
		return translate(err, "rmdir", path)
	}
	if _, err := target.parent.GetDirectory(ctx, target.leaf, false); err != nil {
		return translate(err, "rmdir", path)
	}
	return translate(target.parent.RemoveEntry(ctx, target.leaf, true), "rmdir", path)
}

// RemoveEntry removes a file or directory at path.
// Without recursive, a populated directory fails with ENOTEMPTY.
func (f *FS) RemoveEntry(ctx context.Context, path string, recursive bool) error {
	segments, err := f.segments(ctx, "rm", path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return &Error{Code: EINVAL, Op: "rm", Path: path, Err: errRootLeaf}
	}

	target, err := resolveLeaf(ctx, f.root, segments, false)
	if err != nil {
		return translate(err, "rm", path)
	}
	return translate(target.parent.RemoveEntry(ctx, target.leaf, recursive), "rm", path)
}

// Stat returns the kind, size and modification time of path
func (f *FS) Stat(ctx context.Context, path string) (Stats, error) {
	segments, err := f.segments(ctx, "stat", path)
	if err != nil {
		return Stats{}, err
	}
	if len(segments) == 0 {
		return Stats{Name: "/", Dir: true}, nil
	}

	target, err := resolveLeaf(ctx, f.root, segments, false)
	if err != nil {
		return Stats{}, translate(err, "stat", path)
	}

	file, err := target.parent.GetFile(ctx, target.leaf, false)
	if err == nil {
		info, err := file.Stat(ctx)
		if err != nil {
			return Stats{}, translate(err, "stat", path)
		}
		return Stats{Name: target.leaf, Size: info.Size, ModTime: info.ModTime}, nil
	}
	if !errors.Is(err, handle.ErrTypeMismatch) {
		return Stats{}, translate(err, "stat", path)
	}

	if _, err := target.parent.GetDirectory(ctx, target.leaf, false); err != nil {
		return Stats{}, translate(err, "stat", path)
	}
	return Stats{Name: target.leaf, Dir: true}, nil
}

// Lstat is Stat: the substrate has no links
func (f *FS) Lstat(ctx context.Context, path string) (Stats, error) {
	return f.Stat(ctx, path)
}

// Readlink always fails with ENOTSUP
func (f *FS) Readlink(ctx context.Context, path string) (string, error) {
	return "", &Error{Code: ENOTSUP, Op: "readlink", Path: path, Err: errNoLinks}
}

// Symlink always fails with ENOTSUP
func (f *FS) Symlink(ctx context.Context, target, path string) error {
	return &Error{Code: ENOTSUP, Op: "symlink", Path: path, Err: errNoLinks}
}

// Chmod succeeds without doing anything; modes are not persisted
func (f *FS) Chmod(ctx context.Context, path string, mode fs.FileMode) error {
	return nil
}

// Rename copies oldPath to newPath and then deletes oldPath.
// It is not atomic: a failure after the write leaves both paths in place,
// and a concurrent reader can observe both. Callers needing atomicity must
// serialize renames themselves.
func (f *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	from, err := Normalize(oldPath)
	if err != nil {
		return err
	}
	to, err := Normalize(newPath)
	if err != nil {
		return err
	}

	data, err := f.ReadFile(ctx, from)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if err := f.WriteFile(ctx, to, data); err != nil {
		return err
	}
	return f.Unlink(ctx, from)
}

// Exists reports whether path names a file or directory
func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := f.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Clear removes every child of the directory at path, keeping the directory.
// A missing directory is not an error.
func (f *FS) Clear(ctx context.Context, path string) error {
	segments, err := f.segments(ctx, "rm", path)
	if err != nil {
		return err
	}

	dir, err := walk(ctx, f.root, segments, false)
	if errors.Is(err, handle.ErrNotFound) {
		return nil
	}
	if err != nil {
		return translate(err, "rm", path)
	}

	entries, err := dir.Entries(ctx)
	if err != nil {
		return translate(err, "rm", path)
	}
	for _, e := range entries {
		if err := dir.RemoveEntry(ctx, e.Name, true); err != nil {
			return translate(err, "rm", Join(path, e.Name))
		}
	}
	return nil
}

// WalkFunc is called for every entry below the walk root.
// Returning fs.SkipDir from a directory skips its children.
type WalkFunc func(path string, stat Stats) error

// Walk visits the tree below path depth-first, children in enumeration order
func (f *FS) Walk(ctx context.Context, path string, fn WalkFunc) error {
	segments, err := f.segments(ctx, "scandir", path)
	if err != nil {
		return err
	}
	dir, err := walk(ctx, f.root, segments, false)
	if err != nil {
		return translate(err, "scandir", path)
	}
	err = f.walkDir(ctx, dir, Clean(segments), fn)
	if errors.Is(err, fs.SkipDir) {
		return nil
	}
	return err
}

func (f *FS) walkDir(ctx context.Context, dir handle.Directory, path string, fn WalkFunc) error {
	entries, err := dir.Entries(ctx)
	if err != nil {
		return translate(err, "scandir", path)
	}

	for _, e := range entries {
		child := Join(path, e.Name)
		if e.Kind == handle.KindFile {
			if err := fn(child, Stats{Name: e.Name}); err != nil {
				return err
			}
			continue
		}

		err := fn(child, Stats{Name: e.Name, Dir: true})
		if errors.Is(err, fs.SkipDir) {
			continue
		}
		if err != nil {
			return err
		}

		sub, err := dir.GetDirectory(ctx, e.Name, false)
		if err != nil {
			return translate(err, "scandir", child)
		}
		if err := f.walkDir(ctx, sub, child, fn); err != nil {
			return err
		}
	}
	return nil
}

func (f *FS) segments(ctx context.Context, op, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segments, err := Segments(path)
	if err != nil {
		var fsErr *Error
		if errors.As(err, &fsErr) {
			fsErr.Op = op
		}
		return nil, err
	}
	return segments, nil
}

func (f *FS) openFile(ctx context.Context, op, path string, create bool) (handle.File, error) {
	segments, err := f.segments(ctx, op, path)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, &Error{Code: ENOTDIR, Op: op, Path: path, Err: handle.ErrTypeMismatch}
	}

	target, err := resolveLeaf(ctx, f.root, segments, create)
	if err != nil {
		return nil, translate(err, op, path)
	}
	file, err := target.parent.GetFile(ctx, target.leaf, create)
	if err != nil {
		return nil, translate(err, op, path)
	}
	return file, nil
}

func (f *FS) entries(ctx context.Context, op, path string) ([]handle.Entry, error) {
	segments, err := f.segments(ctx, op, path)
	if err != nil {
		return nil, err
	}
	dir, err := walk(ctx, f.root, segments, false)
	if err != nil {
		return nil, translate(err, op, path)
	}
	entries, err := dir.Entries(ctx)
	if err != nil {
		return nil, translate(err, op, path)
	}
	return entries, nil
}

var _ FileSystem = (*FS)(nil)
