package service

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Ning0612/Gitbox/internal/config"
	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/logger"
	"github.com/Ning0612/Gitbox/internal/scheduler"
	"github.com/Ning0612/Gitbox/internal/state"
	"github.com/Ning0612/Gitbox/internal/vcs"
	"github.com/Ning0612/Gitbox/internal/vcs/gogit"
	"github.com/Ning0612/Gitbox/internal/vfs"
)

// DaemonService wires storage, persistence and the go-git client into one engine
type DaemonService struct {
	mu       sync.RWMutex
	config   *config.Config
	engine   *Engine
	stateMgr *state.Manager
	running  bool
}

// DaemonStatus represents the current daemon status
type DaemonStatus struct {
	Running        bool
	Sync           domain.SyncStatus
	SchedulerStats *scheduler.Status
	LastExecution  *state.ExecutionRecord
}

// DaemonOptions overrides collaborators, mostly for tests
type DaemonOptions struct {
	FS  *vfs.FS
	VCS vcs.Client

	// Progress receives go-git sideband output when VCS is not overridden
	Progress io.Writer
}

// NewDaemonService opens the configured storage and state database
func NewDaemonService(ctx context.Context, cfg *config.Config, opts DaemonOptions) (*DaemonService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	fsys := opts.FS
	if fsys == nil {
		var err error
		if fsys, err = OpenStorage(ctx, cfg.Storage); err != nil {
			return nil, err
		}
	}

	client := opts.VCS
	if client == nil {
		gc := gogit.New(fsys)
		gc.Progress = opts.Progress
		client = gc
	}

	stateMgr, err := state.NewManager(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}

	engine, err := New(Options{
		FS:                fsys,
		VCS:               client,
		Store:             stateMgr,
		History:           stateMgr,
		Logger:            logger.Get(),
		OpTimeout:         cfg.Sync.OpTimeout,
		PollMinInterval:   cfg.Sync.PollMinInterval,
		AuthorEmailDomain: cfg.Author.EmailDomain,
		FullHistory:       cfg.Sync.FullHistory,
	})
	if err != nil {
		stateMgr.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return &DaemonService{
		config:   cfg,
		engine:   engine,
		stateMgr: stateMgr,
	}, nil
}

// Engine returns the wrapped sync engine
func (d *DaemonService) Engine() *Engine {
	return d.engine
}

// Start restores the persisted binding, which also starts auto-sync
func (d *DaemonService) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}
	if err := d.engine.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore repository: %w", err)
	}
	d.running = true
	return nil
}

// Stop halts auto-sync; the binding and storage are kept
func (d *DaemonService) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return fmt.Errorf("daemon is not running")
	}
	d.engine.stopScheduling()
	d.running = false
	return nil
}

// Status returns the current daemon status
func (d *DaemonService) Status() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := &DaemonStatus{
		Running:        d.running,
		Sync:           d.engine.Status(),
		SchedulerStats: d.engine.SchedulerStatus(),
	}

	history, err := d.stateMgr.GetAllHistory(1)
	if err == nil && len(history) > 0 {
		status.LastExecution = &history[0]
	}

	return status
}

// History returns recent executions for the bound repository, or for all
// repositories when disconnected
func (d *DaemonService) History(limit int) ([]state.ExecutionRecord, error) {
	if cfg := d.engine.Config(); cfg != nil {
		return d.stateMgr.GetHistory(cfg.URL, limit)
	}
	return d.stateMgr.GetAllHistory(limit)
}

// Close releases all resources
func (d *DaemonService) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var lastErr error
	if err := d.engine.Close(); err != nil {
		lastErr = err
	}
	if err := d.stateMgr.Close(); err != nil {
		lastErr = err
	}
	d.running = false
	return lastErr
}
