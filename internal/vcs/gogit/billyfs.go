package gogit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
	"github.com/google/uuid"

	"github.com/Ning0612/Gitbox/internal/vfs"
)

// billyFS exposes a vfs.FS to go-git. Open files are buffered in memory
// and written back to the handle tree on Close. Handles on the same path
// share one buffer, so a reader opened while a writer is still active sees
// the bytes as they arrive (go-git indexes packfiles that way).
type billyFS struct {
	fs  *vfs.FS
	ctx context.Context

	mu   sync.Mutex
	open map[string]*node
}

// node is the live contents of one open path
type node struct {
	mu    sync.Mutex
	path  string
	buf   []byte
	refs  int
	dirty bool
	gone  bool
}

func newBillyFS(ctx context.Context, fsys *vfs.FS) billy.Filesystem {
	return &billyFS{fs: fsys, ctx: ctx, open: make(map[string]*node)}
}

// pathError converts a vfs failure into the *os.PathError shape go-git
// tests with os.IsNotExist and os.IsExist
func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case vfs.IsNotExist(err):
		return &os.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	case vfs.Code(err) == vfs.ENOTEMPTY:
		return &os.PathError{Op: op, Path: name, Err: errors.New("directory not empty")}
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

func (b *billyFS) Create(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (b *billyFS) Open(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_RDONLY, 0)
}

func (b *billyFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	name := clean(filename)

	b.mu.Lock()
	defer b.mu.Unlock()

	if n, ok := b.open[name]; ok {
		if flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0 {
			return nil, &os.PathError{Op: "open", Path: filename, Err: fs.ErrExist}
		}
		if flag&os.O_TRUNC != 0 {
			n.mu.Lock()
			n.buf = n.buf[:0]
			n.dirty = true
			n.mu.Unlock()
		}
		n.refs++
		return newFile(b, n, filename, flag), nil
	}

	st, err := b.fs.Stat(b.ctx, name)
	exists := err == nil
	if err != nil && !vfs.IsNotExist(err) {
		return nil, pathError("open", filename, err)
	}
	if exists && st.IsDir() {
		return nil, &os.PathError{Op: "open", Path: filename, Err: errors.New("is a directory")}
	}

	if !exists && flag&os.O_CREATE == 0 {
		return nil, &os.PathError{Op: "open", Path: filename, Err: fs.ErrNotExist}
	}
	if exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0 {
		return nil, &os.PathError{Op: "open", Path: filename, Err: fs.ErrExist}
	}

	var data []byte
	if exists && flag&os.O_TRUNC == 0 {
		if data, err = b.fs.ReadFile(b.ctx, name); err != nil {
			return nil, pathError("open", filename, err)
		}
	}

	// materialize new files so Stat and ReadDir see them before Close
	if !exists {
		if err := b.fs.WriteFile(b.ctx, name, nil); err != nil {
			return nil, pathError("open", filename, err)
		}
	}

	n := &node{
		path:  name,
		buf:   data,
		refs:  1,
		dirty: exists && flag&os.O_TRUNC != 0,
	}
	b.open[name] = n
	return newFile(b, n, filename, flag), nil
}

// release drops one reference to n and writes it back when modified
func (b *billyFS) release(n *node) error {
	b.mu.Lock()
	n.refs--
	if n.refs == 0 && b.open[n.path] == n {
		delete(b.open, n.path)
	}
	b.mu.Unlock()

	return b.flush(n)
}

func (b *billyFS) flush(n *node) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.dirty || n.gone {
		return nil
	}
	if err := b.fs.WriteFile(b.ctx, n.path, bytes.Clone(n.buf)); err != nil {
		return pathError("close", n.path, err)
	}
	n.dirty = false
	return nil
}

// live returns the open node for name, if any
func (b *billyFS) live(name string) *node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open[name]
}

func (b *billyFS) Stat(filename string) (os.FileInfo, error) {
	name := clean(filename)
	st, err := b.fs.Stat(b.ctx, name)
	if err != nil {
		return nil, pathError("stat", filename, err)
	}
	if n := b.live(name); n != nil {
		n.mu.Lock()
		st.Size = int64(len(n.buf))
		n.mu.Unlock()
	}
	return st.FileInfo(), nil
}

func (b *billyFS) Lstat(filename string) (os.FileInfo, error) {
	return b.Stat(filename)
}

func (b *billyFS) Rename(oldpath, newpath string) error {
	from, to := clean(oldpath), clean(newpath)
	if err := b.fs.Mkdir(b.ctx, path.Dir(to)); err != nil {
		return pathError("rename", newpath, err)
	}

	// an open source keeps its buffer under the new name
	if n := b.live(from); n != nil {
		if err := b.flush(n); err != nil {
			return err
		}
		b.mu.Lock()
		delete(b.open, from)
		n.mu.Lock()
		n.path = to
		n.mu.Unlock()
		b.open[to] = n
		b.mu.Unlock()
	}
	return pathError("rename", oldpath, b.fs.Rename(b.ctx, from, to))
}

// Remove deletes a file or an empty directory
func (b *billyFS) Remove(filename string) error {
	name := clean(filename)
	st, err := b.fs.Stat(b.ctx, name)
	if err != nil {
		return pathError("remove", filename, err)
	}
	if st.IsDir() {
		return pathError("remove", filename, b.fs.RemoveEntry(b.ctx, name, false))
	}

	b.mu.Lock()
	if n, ok := b.open[name]; ok {
		n.mu.Lock()
		n.gone = true
		n.mu.Unlock()
		delete(b.open, name)
	}
	b.mu.Unlock()
	return pathError("remove", filename, b.fs.Unlink(b.ctx, name))
}

func (b *billyFS) Join(elem ...string) string {
	return path.Join(elem...)
}

func (b *billyFS) TempFile(dir, prefix string) (billy.File, error) {
	name := path.Join(dir, prefix+uuid.NewString())
	return b.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
}

func (b *billyFS) ReadDir(dirname string) ([]os.FileInfo, error) {
	dir := clean(dirname)
	names, err := b.fs.Readdir(b.ctx, dir)
	if err != nil {
		return nil, pathError("readdir", dirname, err)
	}

	infos := make([]os.FileInfo, 0, len(names))
	for _, n := range names {
		info, err := b.Stat(path.Join(dir, n))
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (b *billyFS) MkdirAll(filename string, perm os.FileMode) error {
	return pathError("mkdir", filename, b.fs.Mkdir(b.ctx, clean(filename)))
}

func (b *billyFS) Symlink(target, link string) error {
	return pathError("symlink", link, b.fs.Symlink(b.ctx, target, clean(link)))
}

func (b *billyFS) Readlink(link string) (string, error) {
	target, err := b.fs.Readlink(b.ctx, clean(link))
	return target, pathError("readlink", link, err)
}

func (b *billyFS) Chroot(p string) (billy.Filesystem, error) {
	return chroot.New(b, p), nil
}

func (b *billyFS) Root() string {
	return "/"
}

// Capabilities omits locking: the engine serializes writers itself
func (b *billyFS) Capabilities() billy.Capability {
	return billy.WriteCapability | billy.ReadCapability |
		billy.ReadAndWriteCapability | billy.SeekCapability | billy.TruncateCapability
}

func clean(name string) string {
	return "/" + strings.TrimPrefix(path.Clean("/"+name), "/")
}

// file is one handle on a shared node with its own offset
type file struct {
	fs   *billyFS
	node *node
	name string

	mu       sync.Mutex
	pos      int64
	writable bool
	append   bool
	closed   bool
}

func newFile(b *billyFS, n *node, name string, flag int) *file {
	f := &file{
		fs:       b,
		node:     n,
		name:     name,
		writable: flag&(os.O_WRONLY|os.O_RDWR) != 0,
		append:   flag&os.O_APPEND != 0,
	}
	if f.append {
		n.mu.Lock()
		f.pos = int64(len(n.buf))
		n.mu.Unlock()
	}
	return f
}

func (f *file) Name() string {
	return f.name
}

func (f *file) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}

	n := f.node
	n.mu.Lock()
	defer n.mu.Unlock()
	if f.pos >= int64(len(n.buf)) {
		return 0, io.EOF
	}
	read := copy(p, n.buf[f.pos:])
	f.pos += int64(read)
	return read, nil
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, &os.PathError{Op: "readat", Path: f.name, Err: fs.ErrInvalid}
	}

	n := f.node
	n.mu.Lock()
	defer n.mu.Unlock()
	if off >= int64(len(n.buf)) {
		return 0, io.EOF
	}
	read := copy(p, n.buf[off:])
	if read < len(p) {
		return read, io.EOF
	}
	return read, nil
}

func (f *file) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	if !f.writable {
		return 0, &os.PathError{Op: "write", Path: f.name, Err: fs.ErrPermission}
	}

	n := f.node
	n.mu.Lock()
	defer n.mu.Unlock()
	if f.append {
		f.pos = int64(len(n.buf))
	}

	end := f.pos + int64(len(p))
	if end > int64(len(n.buf)) {
		grown := make([]byte, end)
		copy(grown, n.buf)
		n.buf = grown
	}
	copy(n.buf[f.pos:], p)
	f.pos = end
	n.dirty = true
	return len(p), nil
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}

	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.pos + offset
	case io.SeekEnd:
		f.node.mu.Lock()
		next = int64(len(f.node.buf)) + offset
		f.node.mu.Unlock()
	default:
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: fs.ErrInvalid}
	}
	if next < 0 {
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: fs.ErrInvalid}
	}
	f.pos = next
	return next, nil
}

func (f *file) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return os.ErrClosed
	}

	n := f.node
	n.mu.Lock()
	defer n.mu.Unlock()
	if size < int64(len(n.buf)) {
		n.buf = n.buf[:size]
	} else {
		n.buf = append(n.buf, make([]byte, size-int64(len(n.buf)))...)
	}
	n.dirty = true
	return nil
}

// Close releases the handle; the contents are written back if modified
func (f *file) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return os.ErrClosed
	}
	f.closed = true
	f.mu.Unlock()

	return f.fs.release(f.node)
}

func (f *file) Lock() error   { return nil }
func (f *file) Unlock() error { return nil }
