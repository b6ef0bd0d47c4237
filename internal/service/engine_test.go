package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/logger"
	"github.com/Ning0612/Gitbox/internal/state"
	"github.com/Ning0612/Gitbox/internal/testutil"
	"github.com/Ning0612/Gitbox/internal/vfs"
)

const testURL = "https://example.com/team/notes.git"

type harness struct {
	fs     *vfs.FS
	vcs    *testutil.FakeVCS
	engine *Engine
	clock  *testutil.FakeClock
}

func newHarness(t *testing.T, remote *testutil.FakeRemote, opts Options) *harness {
	t.Helper()
	return newHarnessOn(t, remote, testutil.NewMemoryFS(), opts)
}

// newHarnessOn builds an engine over an existing storage, as a new process would
func newHarnessOn(t *testing.T, remote *testutil.FakeRemote, fsys *vfs.FS, opts Options) *harness {
	t.Helper()

	h := &harness{
		fs:    fsys,
		clock: testutil.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.vcs = testutil.NewFakeVCS(h.fs, remote)

	opts.FS = h.fs
	opts.VCS = h.vcs
	opts.Clock = h.clock
	opts.Logger = logger.NullLogger{}

	engine, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	h.engine = engine
	return h
}

func seededRemote() *testutil.FakeRemote {
	remote := testutil.NewFakeRemote()
	remote.Commit("main", "initial", map[string]string{
		"main.tex":       "\\documentclass{article}",
		"chapters/1.tex": "intro",
	})
	return remote
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	err := h.engine.Connect(context.Background(), domain.RepositoryConfig{URL: testURL, Branch: "main"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without filesystem")
	}
	if _, err := New(Options{FS: testutil.NewMemoryFS()}); err == nil {
		t.Error("expected error without vcs client")
	}
}

func TestConnect(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)

	status := h.engine.Status()
	if !status.Connected || status.Syncing || status.Error != "" {
		t.Errorf("unexpected status after connect: %+v", status)
	}
	if got := testutil.ReadFile(t, h.fs, "/main.tex"); got != "\\documentclass{article}" {
		t.Errorf("main.tex = %q", got)
	}

	cfg := h.engine.Config()
	if cfg == nil || cfg.Provider != domain.ProviderGeneric || cfg.Interval != domain.IntervalManual {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	tree := h.engine.Files()
	if len(tree) != 2 || !tree[0].IsFolder() || tree[0].Name != "chapters" || tree[1].Name != "main.tex" {
		t.Fatalf("unexpected tree: %+v", tree)
	}
	if len(tree[0].Children) != 1 || tree[0].Children[0].Path != "/chapters/1.tex" {
		t.Errorf("unexpected folder children: %+v", tree[0].Children)
	}
}

func TestConnect_InvalidConfig(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})

	err := h.engine.Connect(context.Background(), domain.RepositoryConfig{})
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	if h.vcs.Count("clone") != 0 {
		t.Error("clone should not run for an invalid config")
	}
}

func TestConnect_RepoNotFound(t *testing.T) {
	remote := seededRemote()
	remote.SetMissing(true)
	h := newHarness(t, remote, Options{})

	err := h.engine.Connect(context.Background(), domain.RepositoryConfig{URL: testURL, Branch: "main"})

	var notFound *domain.RepoNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected RepoNotFoundError, got %v", err)
	}
	if notFound.URL != testURL {
		t.Errorf("URL = %q, want %q", notFound.URL, testURL)
	}

	status := h.engine.Status()
	if status.Connected || status.Syncing || status.Error == "" {
		t.Errorf("unexpected status after failed connect: %+v", status)
	}
	if h.engine.Config() != nil {
		t.Error("config should be cleared after a failed connect")
	}
}

func TestConnect_MissingBranchIsNotRepoNotFound(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})

	err := h.engine.Connect(context.Background(), domain.RepositoryConfig{URL: testURL, Branch: "nope"})
	if err == nil {
		t.Fatal("expected error for a missing branch")
	}
	var notFound *domain.RepoNotFoundError
	if errors.As(err, &notFound) {
		t.Errorf("missing branch should not be reported as a missing repository: %v", err)
	}
}

func TestSync_LocalChangesArePushed(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)
	ctx := context.Background()

	if err := h.engine.WriteFile(ctx, "/notes.txt", []byte("draft")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if !h.engine.Status().HasChanges {
		t.Error("write should mark pending changes")
	}

	h.engine.Sync(ctx)

	status := h.engine.Status()
	if status.Error != "" || status.HasChanges || status.HasConflict || status.Ahead != 0 {
		t.Errorf("unexpected status after sync: %+v", status)
	}
	if status.LastSync == nil || !status.LastSync.Equal(h.clock.Now()) {
		t.Errorf("LastSync = %v, want %v", status.LastSync, h.clock.Now())
	}
	if got := remote.Files("main")["/notes.txt"]; got != "draft" {
		t.Errorf("remote notes.txt = %q, want draft", got)
	}
	if msg := remote.Message(remote.Tip("main")); msg != AutoSyncMessage(h.clock.Now()) {
		t.Errorf("commit message = %q", msg)
	}
	if h.vcs.Count("pull") != 0 {
		t.Error("sync without remote changes should not pull")
	}
}

func TestSync_DeletionIsPushed(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)
	ctx := context.Background()

	if err := h.engine.DeleteFile(ctx, "/chapters/1.tex"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	h.engine.Sync(ctx)

	if _, ok := remote.Files("main")["/chapters/1.tex"]; ok {
		t.Error("deleted file should be gone from the remote")
	}
	if h.vcs.Count("remove") != 1 {
		t.Errorf("expected one remove, calls = %v", h.vcs.Calls())
	}
}

func TestSync_RemoteChangesArePulled(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)
	ctx := context.Background()

	remote.Commit("main", "from laptop", map[string]string{"chapters/2.tex": "method"})
	h.engine.Sync(ctx)

	if got := testutil.ReadFile(t, h.fs, "/chapters/2.tex"); got != "method" {
		t.Errorf("pulled file = %q", got)
	}
	if h.vcs.Count("push") != 0 {
		t.Error("nothing to push after a pull")
	}
	status := h.engine.Status()
	if status.Behind != 0 || status.Error != "" {
		t.Errorf("unexpected status after pull: %+v", status)
	}

	found := false
	for _, item := range h.engine.Files()[0].Children {
		if item.Path == "/chapters/2.tex" {
			found = true
		}
	}
	if !found {
		t.Error("tree should be rebuilt after a pull")
	}
}

// both sides edit main.tex: nothing is pulled, pushed or merged
func TestSync_ConflictLeavesBothSidesAlone(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)
	ctx := context.Background()

	if err := h.engine.WriteFile(ctx, "/main.tex", []byte("local edit")); err != nil {
		t.Fatal(err)
	}
	remoteTip := remote.Commit("main", "remote edit", map[string]string{"main.tex": "remote edit"})

	h.engine.Sync(ctx)

	status := h.engine.Status()
	if !status.HasConflict || status.Syncing {
		t.Errorf("expected conflict, got %+v", status)
	}
	if !strings.Contains(status.Error, "conflict") {
		t.Errorf("error should mention the conflict: %q", status.Error)
	}
	if status.Ahead != 0 || status.Behind != 0 {
		t.Errorf("ahead/behind should be unchanged: %+v", status)
	}
	for _, op := range []string{"pull", "push", "commit"} {
		if n := h.vcs.Count(op); n != 0 {
			t.Errorf("%s ran %d times during a conflict", op, n)
		}
	}
	if remote.Tip("main") != remoteTip {
		t.Error("remote should be untouched")
	}
	if got := testutil.ReadFile(t, h.fs, "/main.tex"); got != "local edit" {
		t.Errorf("local edit lost: %q", got)
	}
}

func TestForcePull_DiscardsLocalEdits(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)
	ctx := context.Background()

	h.engine.WriteFile(ctx, "/main.tex", []byte("local edit"))
	h.engine.WriteFile(ctx, "/scratch.txt", []byte("tmp"))
	remote.Commit("main", "remote edit", map[string]string{"main.tex": "remote edit"})
	h.engine.Sync(ctx)

	if err := h.engine.ForcePull(ctx); err != nil {
		t.Fatalf("ForcePull() error = %v", err)
	}

	if got := testutil.ReadFile(t, h.fs, "/main.tex"); got != "remote edit" {
		t.Errorf("main.tex = %q, want remote edit", got)
	}
	if ok, _ := h.fs.Exists(ctx, "/scratch.txt"); ok {
		t.Error("untracked local file should be discarded")
	}
	status := h.engine.Status()
	if status.HasConflict || status.HasChanges || status.Error != "" || status.Ahead != 0 {
		t.Errorf("unexpected status after force pull: %+v", status)
	}
}

func TestForcePush_OverwritesRemote(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)
	ctx := context.Background()

	h.engine.WriteFile(ctx, "/main.tex", []byte("local edit"))
	remote.Commit("main", "remote edit", map[string]string{"extra.txt": "theirs"})
	h.engine.Sync(ctx)
	if !h.engine.Status().HasConflict {
		t.Fatal("expected conflict before force push")
	}

	if err := h.engine.ForcePush(ctx); err != nil {
		t.Fatalf("ForcePush() error = %v", err)
	}

	files := remote.Files("main")
	if files["/main.tex"] != "local edit" {
		t.Errorf("remote main.tex = %q", files["/main.tex"])
	}
	if _, ok := files["/extra.txt"]; ok {
		t.Error("remote-only commit should be overwritten")
	}
	status := h.engine.Status()
	if status.HasConflict || status.Ahead != 0 || status.Error != "" {
		t.Errorf("unexpected status after force push: %+v", status)
	}

	// a following sync is a no-op
	pushes := h.vcs.Count("push")
	h.engine.Sync(ctx)
	if h.vcs.Count("push") != pushes || h.vcs.Count("pull") != 0 {
		t.Errorf("sync after force push did work: %v", h.vcs.Calls())
	}
}

func TestForcePush_NothingToCommitStillPushes(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)

	if err := h.engine.ForcePush(context.Background()); err != nil {
		t.Fatalf("ForcePush() error = %v", err)
	}
	if h.vcs.Count("commit") != 0 {
		t.Error("no commit expected without changes")
	}
	if h.vcs.Count("push") != 1 {
		t.Errorf("expected one push, calls = %v", h.vcs.Calls())
	}
}

func TestCheckRemote_TwoSessions(t *testing.T) {
	remote := seededRemote()
	a := newHarness(t, remote, Options{})
	b := newHarness(t, remote, Options{})
	a.connect(t)
	b.connect(t)
	ctx := context.Background()

	if got := b.engine.CheckRemote(ctx); got.RemoteChanges || got.LocalChanges {
		t.Errorf("fresh session should see no changes, got %+v", got)
	}

	a.engine.WriteFile(ctx, "/chapters/1.tex", []byte("revised intro"))
	if got := a.engine.CheckRemote(ctx); got.RemoteChanges || !got.LocalChanges {
		t.Errorf("session a = %+v, want local only", got)
	}
	a.engine.Sync(ctx)

	got := b.engine.CheckRemote(ctx)
	if !got.RemoteChanges || got.LocalChanges {
		t.Errorf("session b = %+v, want remote only", got)
	}
	if b.engine.Status().HasConflict {
		t.Error("remote-only changes are not a conflict")
	}

	b.engine.Sync(ctx)
	if text := testutil.ReadFile(t, b.fs, "/chapters/1.tex"); text != "revised intro" {
		t.Errorf("session b did not receive the edit: %q", text)
	}

	b.engine.WriteFile(ctx, "/main.tex", []byte("b edit"))
	a.engine.WriteFile(ctx, "/main.tex", []byte("a edit"))
	a.engine.Sync(ctx)

	got = b.engine.CheckRemote(ctx)
	if !got.RemoteChanges || !got.LocalChanges || !b.engine.Status().HasConflict {
		t.Errorf("both sides changed, got %+v status %+v", got, b.engine.Status())
	}
}

func TestCheckRemote_Disconnected(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})
	if got := h.engine.CheckRemote(context.Background()); got.RemoteChanges || got.LocalChanges {
		t.Errorf("disconnected check = %+v", got)
	}
}

func TestSync_Disconnected(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})
	h.engine.Sync(context.Background())

	if !strings.Contains(h.engine.Status().Error, "no repository connected") {
		t.Errorf("status error = %q", h.engine.Status().Error)
	}
	if len(h.vcs.Calls()) != 0 {
		t.Errorf("no vcs calls expected, got %v", h.vcs.Calls())
	}
}

func TestSync_PushFailureIsRecordedInStatus(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)
	ctx := context.Background()

	h.vcs.FailOn("push", errors.New("connection reset"))
	h.engine.WriteFile(ctx, "/a.txt", []byte("a"))
	h.engine.Sync(ctx)

	status := h.engine.Status()
	if status.Syncing || !strings.Contains(status.Error, "connection reset") {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.Ahead != 1 {
		t.Errorf("Ahead = %d, want 1 for the unpushed commit", status.Ahead)
	}

	// the next cycle pushes the pending commit
	h.vcs.FailOn("push", nil)
	h.engine.Sync(ctx)
	if status := h.engine.Status(); status.Ahead != 0 || status.Error != "" {
		t.Errorf("retry did not push: %+v", status)
	}
	if remote.Files("main")["/a.txt"] != "a" {
		t.Error("commit should reach the remote on retry")
	}
}

func TestPullPush_Explicit(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)
	ctx := context.Background()

	remote.Commit("main", "remote", map[string]string{"r.txt": "r"})
	if err := h.engine.Pull(ctx); err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if testutil.ReadFile(t, h.fs, "/r.txt") != "r" {
		t.Error("pull did not update the working copy")
	}

	h.engine.WriteFile(ctx, "/l.txt", []byte("l"))
	if _, err := h.engine.CommitAllChanges(ctx, "add l"); err != nil {
		t.Fatalf("CommitAllChanges() error = %v", err)
	}
	if h.engine.Status().Ahead != 1 {
		t.Errorf("Ahead = %d, want 1", h.engine.Status().Ahead)
	}
	if err := h.engine.Push(ctx); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if remote.Message(remote.Tip("main")) != "add l" {
		t.Error("push did not reach the remote")
	}
	if h.engine.Status().Ahead != 0 {
		t.Error("Ahead should reset after push")
	}
}

func TestCommit_Validation(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})
	ctx := context.Background()

	if _, err := h.engine.Commit(ctx, ""); err == nil {
		t.Error("expected error for empty message")
	}
	if _, err := h.engine.Commit(ctx, "msg"); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	h.connect(t)
	if _, err := h.engine.CommitAllChanges(ctx, "nothing"); !errors.Is(err, domain.ErrNothingToCommit) {
		t.Errorf("expected ErrNothingToCommit, got %v", err)
	}
}

func TestGetChanges(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})
	h.connect(t)
	ctx := context.Background()

	h.engine.WriteFile(ctx, "/main.tex", []byte("edited"))
	h.engine.WriteFile(ctx, "/new.txt", []byte("new"))
	h.engine.DeleteFile(ctx, "/chapters/1.tex")

	got, err := h.engine.GetChanges(ctx)
	if err != nil {
		t.Fatalf("GetChanges() error = %v", err)
	}

	want := map[string]domain.ChangeType{
		"chapters/1.tex": domain.ChangeDeleted,
		"main.tex":       domain.ChangeModified,
		"new.txt":        domain.ChangeUntracked,
	}
	if len(got) != len(want) {
		t.Fatalf("GetChanges() = %+v", got)
	}
	for _, c := range got {
		if want[strings.TrimPrefix(c.Path, "/")] != c.Type {
			t.Errorf("change %s = %s", c.Path, c.Type)
		}
	}
}

func TestForegroundOperation_LockHeld(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})
	h.connect(t)

	if err := h.engine.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer h.engine.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.engine.Pull(ctx); !errors.Is(err, domain.ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}
}

func TestSwitchBranch_CreatesMissingBranch(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.connect(t)

	if err := h.engine.SwitchBranch(context.Background(), "feature"); err != nil {
		t.Fatalf("SwitchBranch() error = %v", err)
	}

	if h.engine.Config().Branch != "feature" {
		t.Errorf("branch = %q, want feature", h.engine.Config().Branch)
	}
	if remote.Tip("feature") == "" || remote.Tip("feature") != remote.Tip("main") {
		t.Error("new branch should be pushed at the current tip")
	}
	if testutil.ReadFile(t, h.fs, "/main.tex") == "" {
		t.Error("working copy should hold the branch content")
	}
}

func TestSwitchBranch_Existing(t *testing.T) {
	remote := seededRemote()
	remote.Commit("draft", "draft", map[string]string{"draft.md": "wip"})
	h := newHarness(t, remote, Options{})
	h.connect(t)

	if err := h.engine.SwitchBranch(context.Background(), "draft"); err != nil {
		t.Fatalf("SwitchBranch() error = %v", err)
	}
	if testutil.ReadFile(t, h.fs, "/draft.md") != "wip" {
		t.Error("draft branch not checked out")
	}
	if ok, _ := h.fs.Exists(context.Background(), "/main.tex"); ok {
		t.Error("files of the previous branch should be gone")
	}
	if err := h.engine.SwitchBranch(context.Background(), ""); !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for empty branch, got %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})
	h.connect(t)
	ctx := context.Background()

	if err := h.engine.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	if h.engine.Config() != nil || h.engine.Status().Connected {
		t.Error("engine should be disconnected")
	}
	if h.engine.Files() != nil {
		t.Error("tree should be empty")
	}
	names, err := h.fs.Readdir(ctx, "/")
	if err != nil {
		t.Fatalf("Readdir() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("storage should be cleared, found %v", names)
	}
	if _, err := h.engine.AuthenticatedURL(); !errors.Is(err, domain.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestRestore(t *testing.T) {
	remote := seededRemote()
	mgr, err := state.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer mgr.Close()

	first := newHarness(t, remote, Options{Store: mgr})
	first.connect(t)
	first.engine.Close()

	second := newHarness(t, remote, Options{Store: mgr})
	if err := second.engine.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	cfg := second.engine.Config()
	if cfg == nil || cfg.URL != testURL || !second.engine.Status().Connected {
		t.Fatalf("restore did not rebind: %+v", cfg)
	}
	if testutil.ReadFile(t, second.fs, "/main.tex") == "" {
		t.Error("restored session should have a checkout")
	}

	if err := second.engine.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	third := newHarness(t, remote, Options{Store: mgr})
	if err := third.engine.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if third.engine.Config() != nil {
		t.Error("nothing persisted after disconnect, engine should stay disconnected")
	}
}

func TestRestore_ReusesCheckoutAndPushesEarlierCommit(t *testing.T) {
	remote := seededRemote()
	mgr, err := state.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer mgr.Close()
	ctx := context.Background()

	first := newHarness(t, remote, Options{Store: mgr})
	first.connect(t)
	if err := first.engine.WriteFile(ctx, "/main.tex", []byte("committed offline")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	id, err := first.engine.CommitAllChanges(ctx, "local work")
	if err != nil {
		t.Fatalf("CommitAllChanges() error = %v", err)
	}
	first.engine.Close()

	second := newHarnessOn(t, remote, first.fs, Options{Store: mgr})
	if err := second.engine.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if second.vcs.Count("clone") != 0 {
		t.Error("restore should reuse the existing checkout")
	}
	if got := second.engine.Status().Ahead; got != 1 {
		t.Fatalf("Ahead after restore = %d, want 1", got)
	}

	second.engine.Sync(ctx)
	status := second.engine.Status()
	if status.Error != "" || status.HasConflict {
		t.Fatalf("sync failed: %+v", status)
	}
	if remote.Tip("main") != id {
		t.Errorf("remote tip = %s, want the offline commit %s", remote.Tip("main"), id)
	}
	if got := remote.Files("main")["/main.tex"]; got != "committed offline" {
		t.Errorf("remote main.tex = %q", got)
	}
	if status.Ahead != 0 {
		t.Errorf("Ahead after push = %d", status.Ahead)
	}
}

func TestRestore_FetchedButNotPulled(t *testing.T) {
	remote := seededRemote()
	mgr, err := state.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer mgr.Close()
	ctx := context.Background()

	first := newHarness(t, remote, Options{Store: mgr})
	first.connect(t)
	remote.Commit("main", "elsewhere", map[string]string{"chapters/2.tex": "methods"})
	if got := first.engine.CheckRemote(ctx); !got.RemoteChanges {
		t.Fatalf("CheckRemote() = %+v, want remote changes", got)
	}
	first.engine.Close()

	second := newHarnessOn(t, remote, first.fs, Options{Store: mgr})
	if err := second.engine.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got := second.engine.Status().Ahead; got != 0 {
		t.Fatalf("Ahead after restore = %d, want 0", got)
	}

	second.engine.Sync(ctx)
	if status := second.engine.Status(); status.Error != "" {
		t.Fatalf("sync failed: %+v", status)
	}
	if got := testutil.ReadFile(t, second.fs, "/chapters/2.tex"); got != "methods" {
		t.Errorf("pulled file = %q", got)
	}
	if second.vcs.Count("push") != 0 {
		t.Error("nothing local to push")
	}
}

func TestCheckRemote_FetchesShallow(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})
	h.connect(t)

	h.engine.CheckRemote(context.Background())
	if got := h.vcs.LastFetch(); got.Depth != 1 || !got.SingleBranch || got.Branch != "main" {
		t.Errorf("fetch options = %+v, want a depth-1 single-branch fetch of main", got)
	}
}

func TestHistory(t *testing.T) {
	remote := seededRemote()
	mgr, err := state.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	h := newHarness(t, remote, Options{History: mgr})
	h.connect(t)
	ctx := context.Background()

	h.engine.WriteFile(ctx, "/a.txt", []byte("a"))
	h.engine.Sync(ctx)
	h.engine.WriteFile(ctx, "/main.tex", []byte("mine"))
	remote.Commit("main", "theirs", map[string]string{"main.tex": "theirs"})
	h.engine.Sync(ctx)

	records, err := mgr.GetHistory(testURL, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}

	got := make(map[string][]domain.ExecutionStatus)
	for _, r := range records {
		got[r.Operation] = append(got[r.Operation], r.Status)
	}
	if len(got["connect"]) != 1 || got["connect"][0] != domain.ExecSuccess {
		t.Errorf("connect records = %v", got["connect"])
	}
	if len(got["sync"]) != 2 {
		t.Fatalf("sync records = %v", got["sync"])
	}
	statuses := map[domain.ExecutionStatus]bool{}
	for _, s := range got["sync"] {
		statuses[s] = true
	}
	if !statuses[domain.ExecSuccess] || !statuses[domain.ExecConflict] {
		t.Errorf("expected one success and one conflict, got %v", got["sync"])
	}
}

func TestStatusSnapshotsAreIndependent(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})
	h.connect(t)
	h.engine.WriteFile(context.Background(), "/a.txt", []byte("a"))
	h.engine.Sync(context.Background())

	snap := h.engine.Status()
	*snap.LastSync = time.Time{}
	snap.Ahead = 42
	if h.engine.Status().LastSync.IsZero() || h.engine.Status().Ahead == 42 {
		t.Error("mutating a status snapshot changed the engine")
	}

	tree := h.engine.Files()
	tree[0].Children[0].Name = "mutated"
	if h.engine.Files()[0].Children[0].Name == "mutated" {
		t.Error("mutating a tree snapshot changed the engine")
	}
}

func TestSubscribeStatus_UnsubscribeFromCallback(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})

	var mu sync.Mutex
	calls := 0
	var sub *Subscription
	sub = h.engine.SubscribeStatus(func(s domain.SyncStatus) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			sub.Unsubscribe()
		}
	})

	if calls != 1 {
		t.Fatalf("subscribe should deliver the current status once, got %d", calls)
	}

	h.connect(t)
	h.engine.WriteFile(context.Background(), "/a.txt", []byte("a"))

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("callback ran %d times after unsubscribing itself", calls)
	}
	sub.Unsubscribe()
}

func TestSubscribeFiles(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})

	var trees [][]domain.FileItem
	sub := h.engine.SubscribeFiles(func(tree []domain.FileItem) {
		trees = append(trees, tree)
	})
	defer sub.Unsubscribe()

	h.connect(t)
	h.engine.WriteFile(context.Background(), "/a.txt", []byte("a"))

	if len(trees) < 2 {
		t.Fatalf("expected a tree per rebuild, got %d", len(trees))
	}
	last := trees[len(trees)-1]
	if last[len(last)-1].Name != "main.tex" || len(last) != 3 {
		t.Errorf("unexpected last tree: %+v", last)
	}
}

func TestAutoSync(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{})
	h.engine.intervalOf = func(domain.SyncInterval) time.Duration { return 20 * time.Millisecond }

	err := h.engine.Connect(context.Background(), domain.RepositoryConfig{
		URL:      testURL,
		Branch:   "main",
		Interval: domain.Interval5m,
		AutoSync: true,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if h.engine.SchedulerStatus() == nil {
		t.Fatal("auto-sync should be scheduled")
	}

	h.engine.WriteFile(context.Background(), "/auto.txt", []byte("auto"))

	testutil.AssertEventually(t, 2*time.Second, func() bool {
		return remote.Files("main")["/auto.txt"] == "auto"
	}, "scheduled sync should push the change")

	if err := h.engine.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.engine.SchedulerStatus() != nil {
		t.Error("disconnect should stop auto-sync")
	}
}

func TestAutoSync_ManualIntervalSchedulesNothing(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})
	err := h.engine.Connect(context.Background(), domain.RepositoryConfig{
		URL:      testURL,
		Branch:   "main",
		AutoSync: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.engine.SchedulerStatus() != nil {
		t.Error("manual interval should not schedule")
	}
}

func TestNotifyVisible(t *testing.T) {
	remote := seededRemote()
	h := newHarness(t, remote, Options{PollMinInterval: time.Hour})
	ctx := context.Background()

	if h.engine.NotifyVisible(ctx) {
		t.Error("disconnected engine should not check")
	}

	h.connect(t)
	remote.Commit("main", "remote", map[string]string{"r.txt": "r"})

	if !h.engine.NotifyVisible(ctx) {
		t.Fatal("first notification should check")
	}
	if h.engine.NotifyVisible(ctx) {
		t.Error("second notification within the poll interval should be throttled")
	}

	testutil.AssertEventually(t, 2*time.Second, func() bool {
		return h.engine.Status().Behind == 1
	}, "background check should report the remote commit")

	if h.engine.Status().HasConflict {
		t.Error("remote-only change is not a conflict")
	}
}

func TestWriteFile_RejectsMetadata(t *testing.T) {
	h := newHarness(t, seededRemote(), Options{})
	err := h.engine.WriteFile(context.Background(), "/.git/config", []byte("x"))
	if vfs.Code(err) != vfs.EINVAL {
		t.Errorf("expected EINVAL, got %v", err)
	}
}
