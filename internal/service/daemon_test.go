package service

import (
	"context"
	"testing"
	"time"

	"github.com/Ning0612/Gitbox/internal/config"
	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/testutil"
)

// mockDaemonConfig creates a minimal config for testing
func mockDaemonConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir: t.TempDir(),
		Storage: config.StorageConfig{Backend: config.BackendMemory},
		Sync: config.SyncConfig{
			OpTimeout: time.Minute,
		},
	}
}

func newTestDaemon(t *testing.T, remote *testutil.FakeRemote) *DaemonService {
	t.Helper()

	fsys := testutil.NewMemoryFS()
	daemon, err := NewDaemonService(context.Background(), mockDaemonConfig(t), DaemonOptions{
		FS:  fsys,
		VCS: testutil.NewFakeVCS(fsys, remote),
	})
	if err != nil {
		t.Fatalf("Failed to create daemon service: %v", err)
	}
	t.Cleanup(func() { daemon.Close() })
	return daemon
}

func TestNewDaemonService(t *testing.T) {
	daemon := newTestDaemon(t, seededRemote())

	if daemon.Engine() == nil {
		t.Error("Engine is nil")
	}
	if daemon.stateMgr == nil {
		t.Error("State manager is nil")
	}
}

func TestNewDaemonService_NilConfig(t *testing.T) {
	_, err := NewDaemonService(context.Background(), nil, DaemonOptions{})
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestNewDaemonService_DefaultCollaborators(t *testing.T) {
	daemon, err := NewDaemonService(context.Background(), mockDaemonConfig(t), DaemonOptions{})
	if err != nil {
		t.Fatalf("Failed to create daemon service: %v", err)
	}
	defer daemon.Close()

	if daemon.Engine().Status().Connected {
		t.Error("fresh daemon should be disconnected")
	}
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	fsys, err := OpenStorage(ctx, config.StorageConfig{Backend: config.BackendLocal, Root: t.TempDir()})
	if err != nil {
		t.Fatalf("OpenStorage(local) error = %v", err)
	}
	if err := fsys.WriteFile(ctx, "/a/b.txt", []byte("x")); err != nil {
		t.Errorf("write to local storage failed: %v", err)
	}

	if _, err := OpenStorage(ctx, config.StorageConfig{Backend: config.BackendMemory}); err != nil {
		t.Errorf("OpenStorage(memory) error = %v", err)
	}
	if _, err := OpenStorage(ctx, config.StorageConfig{Backend: "s3"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestDaemonService_StartRestores(t *testing.T) {
	remote := seededRemote()
	daemon := newTestDaemon(t, remote)
	ctx := context.Background()

	if err := daemon.Start(ctx); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	if daemon.Engine().Status().Connected {
		t.Error("nothing persisted, daemon should stay disconnected")
	}

	err := daemon.Engine().Connect(ctx, domain.RepositoryConfig{URL: testURL, Branch: "main"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	cfg, err := daemon.stateMgr.LoadConfig(DefaultConfigKey)
	if err != nil || cfg == nil || cfg.URL != testURL {
		t.Fatalf("binding not persisted: %+v, %v", cfg, err)
	}
}

func TestDaemonService_DoubleStart(t *testing.T) {
	daemon := newTestDaemon(t, seededRemote())
	ctx := context.Background()

	if err := daemon.Start(ctx); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	if err := daemon.Start(ctx); err == nil {
		t.Error("Expected error when starting already running daemon")
	}
}

func TestDaemonService_StopNotRunning(t *testing.T) {
	daemon := newTestDaemon(t, seededRemote())

	if err := daemon.Stop(); err == nil {
		t.Error("Expected error when stopping non-running daemon")
	}
}

func TestDaemonService_Status(t *testing.T) {
	remote := seededRemote()
	daemon := newTestDaemon(t, remote)
	ctx := context.Background()

	status := daemon.Status()
	if status == nil {
		t.Fatal("Status should not be nil")
	}
	if status.Running || status.LastExecution != nil || status.SchedulerStats != nil {
		t.Errorf("unexpected initial status: %+v", status)
	}

	if err := daemon.Start(ctx); err != nil {
		t.Fatal(err)
	}
	engine := daemon.Engine()
	engine.intervalOf = func(domain.SyncInterval) time.Duration { return 20 * time.Millisecond }
	err := engine.Connect(ctx, domain.RepositoryConfig{
		URL:      testURL,
		Branch:   "main",
		Interval: domain.Interval15m,
		AutoSync: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	status = daemon.Status()
	if !status.Running || !status.Sync.Connected {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.SchedulerStats == nil {
		t.Fatal("Scheduler stats should not be nil with auto-sync")
	}
	if status.LastExecution == nil {
		t.Error("LastExecution should hold the connect record")
	}

	testutil.AssertEventually(t, 2*time.Second, func() bool {
		s := daemon.Status().SchedulerStats
		return s != nil && s.TotalRuns > 0
	}, "expected scheduled runs")

	if err := daemon.Stop(); err != nil {
		t.Fatalf("Failed to stop daemon: %v", err)
	}
	status = daemon.Status()
	if status.Running || status.SchedulerStats != nil {
		t.Error("Daemon should not be running after stop")
	}
}

func TestDaemonService_History(t *testing.T) {
	remote := seededRemote()
	daemon := newTestDaemon(t, remote)
	ctx := context.Background()

	if records, err := daemon.History(10); err != nil || len(records) != 0 {
		t.Fatalf("History() = %v, %v", records, err)
	}

	engine := daemon.Engine()
	if err := engine.Connect(ctx, domain.RepositoryConfig{URL: testURL, Branch: "main"}); err != nil {
		t.Fatal(err)
	}
	engine.WriteFile(ctx, "/x.txt", []byte("x"))
	engine.Sync(ctx)

	records, err := daemon.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected connect and sync records, got %+v", records)
	}
	for _, r := range records {
		if r.Repository != testURL || r.Status != domain.ExecSuccess {
			t.Errorf("unexpected record: %+v", r)
		}
	}
}
