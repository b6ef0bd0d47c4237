package testutil

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/Ning0612/Gitbox/internal/vcs"
	"github.com/Ning0612/Gitbox/internal/vfs"
)

type fakeCommit struct {
	id      string
	parent  string
	message string
	files   map[string][]byte
}

// FakeRemote is an in-memory remote shared by any number of FakeVCS clients
type FakeRemote struct {
	mu       sync.Mutex
	missing  bool
	seq      int
	commits  map[string]*fakeCommit
	branches map[string]string
}

// NewFakeRemote creates an empty remote with no branches
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		commits:  make(map[string]*fakeCommit),
		branches: make(map[string]string),
	}
}

// SetMissing makes every network operation answer 404
func (r *FakeRemote) SetMissing(missing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missing = missing
}

// Commit records a commit on branch as if another client pushed it.
// files are merged over the current tip; an empty value deletes the path.
func (r *FakeRemote) Commit(branch, message string, files map[string]string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tip := r.branches[branch]
	next := make(map[string][]byte)
	if c, ok := r.commits[tip]; ok {
		for p, d := range c.files {
			next[p] = d
		}
	}
	for p, d := range files {
		p = strings.TrimPrefix(p, "/")
		if d == "" {
			delete(next, p)
			continue
		}
		next[p] = []byte(d)
	}

	id := r.addLocked(tip, message, next)
	r.branches[branch] = id
	return id
}

// Tip returns the commit id branch points at, or ""
func (r *FakeRemote) Tip(branch string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.branches[branch]
}

// Files returns the content of the branch tip keyed by slash-rooted path
func (r *FakeRemote) Files(branch string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string)
	if c, ok := r.commits[r.branches[branch]]; ok {
		for p, d := range c.files {
			out["/"+p] = string(d)
		}
	}
	return out
}

// Message returns the message of commit id
func (r *FakeRemote) Message(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.commits[id]; ok {
		return c.message
	}
	return ""
}

func (r *FakeRemote) addLocked(parent, message string, files map[string][]byte) string {
	r.seq++
	h := sha1.Sum([]byte(fmt.Sprintf("%s\x00%s\x00%d", parent, message, r.seq)))
	id := hex.EncodeToString(h[:])
	r.commits[id] = &fakeCommit{id: id, parent: parent, message: message, files: files}
	return id
}

// isAncestorLocked reports whether ancestor is reachable from descendant
func (r *FakeRemote) isAncestorLocked(ancestor, descendant string) bool {
	for id := descendant; id != ""; {
		if id == ancestor {
			return true
		}
		c, ok := r.commits[id]
		if !ok {
			return false
		}
		id = c.parent
	}
	return ancestor == ""
}

func (r *FakeRemote) notFoundLocked() error {
	if r.missing {
		return &vcs.HTTPError{StatusCode: 404, Err: vcs.ErrRepositoryNotFound}
	}
	return nil
}

// FakeVCS implements vcs.Client over a vfs.FS and a FakeRemote.
// Refs and the index are mirrored to a state file under MetadataDir, so a
// new FakeVCS on the same filesystem and remote resumes the checkout.
type FakeVCS struct {
	mu     sync.Mutex
	fs     *vfs.FS
	remote *FakeRemote

	branch   string
	head     string
	index    map[string][]byte
	tracking map[string]string
	local    map[string]string
	failures map[string]error

	calls     []string
	lastFetch vcs.FetchOptions
}

// NewFakeVCS creates a client storing its working copy in fsys
func NewFakeVCS(fsys *vfs.FS, remote *FakeRemote) *FakeVCS {
	return &FakeVCS{
		fs:       fsys,
		remote:   remote,
		index:    make(map[string][]byte),
		tracking: make(map[string]string),
		local:    make(map[string]string),
		failures: make(map[string]error),
	}
}

// FailOn makes op ("clone", "push", ...) return err until cleared with nil
func (f *FakeVCS) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns the operations invoked so far, in order
func (f *FakeVCS) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times op was invoked
func (f *FakeVCS) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// LastFetch returns the options of the most recent Fetch
func (f *FakeVCS) LastFetch() vcs.FetchOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFetch
}

// Head returns the local HEAD commit id
func (f *FakeVCS) Head() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head
}

// StateFile is where the fake keeps its refs and index
const StateFile = "/" + vcs.MetadataDir + "/fake-state.json"

type fakeState struct {
	Branch   string            `json:"branch"`
	Head     string            `json:"head"`
	Index    map[string][]byte `json:"index"`
	Tracking map[string]string `json:"tracking"`
	Local    map[string]string `json:"local"`
}

func (f *FakeVCS) enter(ctx context.Context, op string) error {
	f.calls = append(f.calls, op)
	if err := f.failures[op]; err != nil {
		return err
	}
	return f.loadLocked(ctx)
}

// loadLocked picks up a checkout left by another client when this one
// has none of its own
func (f *FakeVCS) loadLocked(ctx context.Context) error {
	if f.head != "" {
		return nil
	}
	data, err := f.fs.ReadFile(ctx, StateFile)
	if vfs.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var st fakeState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("corrupt fake state: %w", err)
	}
	f.branch = st.Branch
	f.head = st.Head
	f.index = nonNil(st.Index)
	f.tracking = nonNilRefs(st.Tracking)
	f.local = nonNilRefs(st.Local)
	return nil
}

func (f *FakeVCS) saveLocked(ctx context.Context) error {
	data, err := json.Marshal(fakeState{
		Branch:   f.branch,
		Head:     f.head,
		Index:    f.index,
		Tracking: f.tracking,
		Local:    f.local,
	})
	if err != nil {
		return err
	}
	return f.fs.WriteFile(ctx, StateFile, data)
}

func nonNil(m map[string][]byte) map[string][]byte {
	if m == nil {
		return make(map[string][]byte)
	}
	return m
}

func nonNilRefs(m map[string]string) map[string]string {
	if m == nil {
		return make(map[string]string)
	}
	return m
}

func (f *FakeVCS) Clone(ctx context.Context, opts vcs.CloneOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "clone"); err != nil {
		return err
	}

	f.remote.mu.Lock()
	if err := f.remote.notFoundLocked(); err != nil {
		f.remote.mu.Unlock()
		return err
	}
	tip, ok := f.remote.branches[opts.Branch]
	var files map[string][]byte
	if ok {
		files = f.remote.commits[tip].files
	}
	f.remote.mu.Unlock()
	if !ok {
		return fmt.Errorf("couldn't find remote ref %q: %w", "refs/heads/"+opts.Branch, vcs.ErrRefNotFound)
	}

	for p, d := range files {
		if err := f.fs.WriteFile(ctx, "/"+p, d); err != nil {
			return err
		}
	}

	f.branch = opts.Branch
	f.head = tip
	f.index = copyFiles(files)
	f.tracking = map[string]string{opts.Branch: tip}
	f.local = map[string]string{opts.Branch: tip}
	return f.saveLocked(ctx)
}

func (f *FakeVCS) Fetch(ctx context.Context, opts vcs.FetchOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "fetch"); err != nil {
		return err
	}
	f.lastFetch = opts
	return f.fetchLocked(ctx, opts.Branch)
}

func (f *FakeVCS) fetchLocked(ctx context.Context, branch string) error {
	f.remote.mu.Lock()
	defer f.remote.mu.Unlock()

	if err := f.remote.notFoundLocked(); err != nil {
		return err
	}
	tip, ok := f.remote.branches[branch]
	if !ok {
		return fmt.Errorf("couldn't find remote ref %q: %w", "refs/heads/"+branch, vcs.ErrRefNotFound)
	}
	f.tracking[branch] = tip
	return f.saveLocked(ctx)
}

func (f *FakeVCS) Pull(ctx context.Context, opts vcs.PullOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "pull"); err != nil {
		return err
	}
	if err := f.fetchLocked(ctx, opts.Branch); err != nil {
		return err
	}

	target := f.tracking[opts.Branch]
	if target == f.head {
		return nil
	}

	f.remote.mu.Lock()
	ff := f.remote.isAncestorLocked(f.head, target)
	var oldFiles, newFiles map[string][]byte
	if c, ok := f.remote.commits[f.head]; ok {
		oldFiles = c.files
	}
	newFiles = f.remote.commits[target].files
	f.remote.mu.Unlock()

	if !ff {
		return vcs.ErrNotFastForward
	}

	for p := range oldFiles {
		if _, ok := newFiles[p]; !ok {
			if err := f.fs.Unlink(ctx, "/"+p); err != nil && !vfs.IsNotExist(err) {
				return err
			}
		}
	}
	for p, d := range newFiles {
		if err := f.fs.WriteFile(ctx, "/"+p, d); err != nil {
			return err
		}
	}

	f.head = target
	f.local[f.branch] = target
	f.index = copyFiles(newFiles)
	return f.saveLocked(ctx)
}

func (f *FakeVCS) Push(ctx context.Context, opts vcs.PushOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "push"); err != nil {
		return err
	}

	f.remote.mu.Lock()
	defer f.remote.mu.Unlock()

	if err := f.remote.notFoundLocked(); err != nil {
		return err
	}

	head := f.local[opts.Branch]
	if head == "" {
		return fmt.Errorf("src refspec %s does not match any: %w", opts.Branch, vcs.ErrRefNotFound)
	}
	tip := f.remote.branches[opts.Branch]
	if tip == head {
		return nil
	}
	if !opts.Force && !f.remote.isAncestorLocked(tip, head) {
		return vcs.ErrNotFastForward
	}

	f.remote.branches[opts.Branch] = head
	f.tracking[opts.Branch] = head
	return f.saveLocked(ctx)
}

func (f *FakeVCS) Add(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "add"); err != nil {
		return err
	}

	data, err := f.fs.ReadFile(ctx, "/"+path)
	if err != nil {
		return err
	}
	f.index[path] = data
	return f.saveLocked(ctx)
}

func (f *FakeVCS) Remove(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "remove"); err != nil {
		return err
	}

	delete(f.index, path)
	return f.saveLocked(ctx)
}

func (f *FakeVCS) Commit(ctx context.Context, message string, author vcs.Author) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "commit"); err != nil {
		return "", err
	}
	if author.Name == "" || author.Email == "" {
		return "", fmt.Errorf("commit author is required")
	}

	f.remote.mu.Lock()
	id := f.remote.addLocked(f.head, message, copyFiles(f.index))
	f.remote.mu.Unlock()

	f.head = id
	f.local[f.branch] = id
	return id, f.saveLocked(ctx)
}

func (f *FakeVCS) StatusMatrix(ctx context.Context) ([]vcs.StatusRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "status"); err != nil {
		return nil, err
	}

	workdir := make(map[string][]byte)
	err := f.fs.Walk(ctx, "/", func(p string, st vfs.Stats) error {
		rel := strings.TrimPrefix(p, "/")
		if st.IsDir() {
			if rel == vcs.MetadataDir {
				return fs.SkipDir
			}
			return nil
		}
		data, err := f.fs.ReadFile(ctx, p)
		if err != nil {
			return err
		}
		workdir[rel] = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.remote.mu.Lock()
	var headFiles map[string][]byte
	if c, ok := f.remote.commits[f.head]; ok {
		headFiles = c.files
	}
	f.remote.mu.Unlock()

	paths := make(map[string]struct{})
	for _, m := range []map[string][]byte{headFiles, f.index, workdir} {
		for p := range m {
			paths[p] = struct{}{}
		}
	}

	rows := make([]vcs.StatusRow, 0, len(paths))
	for p := range paths {
		h, inHead := headFiles[p]
		w, inWork := workdir[p]
		s, inStage := f.index[p]

		row := vcs.StatusRow{
			Path:     p,
			Head:     vcs.StateAbsent,
			Workdir:  compare(h, inHead, w, inWork),
			Stage:    compare(h, inHead, s, inStage),
			Unstaged: inWork != inStage || !bytes.Equal(w, s),
		}
		if inHead {
			row.Head = vcs.StateUnchanged
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
	return rows, nil
}

func (f *FakeVCS) CreateBranch(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "branch"); err != nil {
		return err
	}
	if _, ok := f.local[name]; ok {
		return fmt.Errorf("branch %s already exists", name)
	}
	f.local[name] = f.head
	return f.saveLocked(ctx)
}

func (f *FakeVCS) Checkout(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "checkout"); err != nil {
		return err
	}
	id, ok := f.local[ref]
	if !ok {
		return fmt.Errorf("checkout %s: %w", ref, vcs.ErrRefNotFound)
	}
	f.branch = ref
	f.head = id
	return f.saveLocked(ctx)
}

func (f *FakeVCS) ResolveRef(ctx context.Context, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(ctx); err != nil {
		return "", err
	}

	var id string
	switch {
	case ref == "HEAD":
		id = f.head
	case strings.HasPrefix(ref, "refs/remotes/"+vcs.DefaultRemote+"/"):
		id = f.tracking[strings.TrimPrefix(ref, "refs/remotes/"+vcs.DefaultRemote+"/")]
	default:
		id = f.local[strings.TrimPrefix(ref, "refs/heads/")]
	}
	if id == "" {
		return "", fmt.Errorf("resolve %s: %w", ref, vcs.ErrRefNotFound)
	}
	return id, nil
}

func (f *FakeVCS) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "ancestor")

	f.remote.mu.Lock()
	defer f.remote.mu.Unlock()
	if _, ok := f.remote.commits[descendant]; !ok {
		return false, fmt.Errorf("unknown commit %s", descendant)
	}
	return f.remote.isAncestorLocked(ancestor, descendant), nil
}

func compare(head []byte, inHead bool, side []byte, inSide bool) vcs.FileState {
	switch {
	case !inSide:
		return vcs.StateAbsent
	case inHead && bytes.Equal(head, side):
		return vcs.StateUnchanged
	default:
		return vcs.StateChanged
	}
}

func copyFiles(in map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for p, d := range in {
		out[p] = append([]byte(nil), d...)
	}
	return out
}

var _ vcs.Client = (*FakeVCS)(nil)
