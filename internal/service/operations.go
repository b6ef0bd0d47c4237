package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ning0612/Gitbox/internal/core/changes"
	"github.com/Ning0612/Gitbox/internal/core/planner"
	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/vcs"
)

// AutoSyncMessage is the commit message used by Sync and ForcePush
func AutoSyncMessage(t time.Time) string {
	return "Auto-sync: " + t.UTC().Format(time.RFC3339)
}

// observation is one comparison of local and remote state
type observation struct {
	CheckResult
	uncommitted bool
}

// compare computes pending local changes, fetches the branch and compares
// the fetched remote tip with the last known one
func (e *Engine) compare(ctx context.Context) (observation, error) {
	cfg, err := e.requireConfig()
	if err != nil {
		return observation{}, err
	}

	rows, err := e.vcs.StatusMatrix(ctx)
	if err != nil {
		return observation{}, fmt.Errorf("failed to read status: %w", err)
	}
	uncommitted := changes.HasLocalChanges(rows)

	tctx, cancel := e.withTimeout(ctx)
	defer cancel()
	err = e.vcs.Fetch(tctx, vcs.FetchOptions{
		Branch:       cfg.Branch,
		Depth:        e.depth,
		SingleBranch: true,
		Auth:         e.auth(),
	})
	if err != nil {
		return observation{}, fmt.Errorf("failed to fetch: %w", err)
	}

	remote, err := e.vcs.ResolveRef(ctx, vcs.RemoteRef(cfg.Branch))
	if err != nil {
		return observation{}, err
	}
	base := e.getBase()
	if base == "" {
		if base, err = e.vcs.ResolveRef(ctx, "HEAD"); err != nil {
			return observation{}, err
		}
	}

	return observation{
		CheckResult: CheckResult{
			RemoteChanges: remote != base,
			LocalChanges:  uncommitted || e.session.Status().Ahead > 0,
		},
		uncommitted: uncommitted,
	}, nil
}

// CheckRemote compares local and remote state and records a conflict when
// both diverged. Failures are logged and reported as no changes.
func (e *Engine) CheckRemote(ctx context.Context) CheckResult {
	if err := e.acquire(ctx); err != nil {
		e.log.Warn("remote check skipped", "error", err)
		return CheckResult{}
	}
	defer e.release()

	obs, err := e.compare(ctx)
	if err != nil {
		e.log.Warn("remote check failed", "error", err)
		return CheckResult{}
	}

	e.update(func(s *domain.SyncStatus) {
		s.HasChanges = obs.uncommitted
		s.HasConflict = obs.RemoteChanges && obs.LocalChanges
	})
	return obs.CheckResult
}

// Sync runs one reconciliation cycle. It never returns an error: the outcome
// is in Status().
func (e *Engine) Sync(ctx context.Context) {
	if err := e.acquire(ctx); err != nil {
		e.log.Warn("sync skipped", "error", err)
		return
	}
	defer e.release()

	cfg, err := e.requireConfig()
	if err != nil {
		e.update(func(s *domain.SyncStatus) { s.Error = err.Error() })
		return
	}

	start := e.clock.Now()
	e.begin()

	commitID, status, err := e.syncLocked(ctx)
	e.record("sync", start, cfg, status, commitID, err)
	if err != nil && status == domain.ExecFailed {
		e.fail("sync", err)
	}
}

func (e *Engine) syncLocked(ctx context.Context) (string, domain.ExecutionStatus, error) {
	obs, err := e.compare(ctx)
	if err != nil {
		return "", domain.ExecFailed, err
	}

	decision := planner.Plan(planner.Observation{
		RemoteChanges: obs.RemoteChanges,
		LocalChanges:  obs.LocalChanges,
	})
	e.log.Debug("sync plan", "steps", fmt.Sprint(decision.Steps), "reason", decision.Reason)

	if decision.Conflict {
		err := fmt.Errorf("%w: %s", domain.ErrSyncConflict, decision.Reason)
		e.log.Warn("sync conflict", "reason", decision.Reason)
		e.update(func(s *domain.SyncStatus) {
			s.Syncing = false
			s.HasChanges = obs.uncommitted
			s.HasConflict = true
			s.Error = err.Error()
		})
		return "", domain.ExecConflict, err
	}

	var commitID string
	for _, step := range decision.Steps {
		switch step {
		case planner.StepCommit:
			if !obs.uncommitted {
				continue
			}
			id, err := e.commitAll(ctx, AutoSyncMessage(e.clock.Now()))
			if err != nil {
				return "", domain.ExecFailed, err
			}
			commitID = id
		case planner.StepPull:
			if err := e.pull(ctx); err != nil {
				return commitID, domain.ExecFailed, err
			}
		case planner.StepPush:
			if e.session.Status().Ahead == 0 {
				continue
			}
			if err := e.push(ctx, false); err != nil {
				return commitID, domain.ExecFailed, err
			}
		}
	}

	now := e.clock.Now()
	e.update(func(s *domain.SyncStatus) {
		s.Syncing = false
		s.HasConflict = false
		s.HasChanges = false
		s.Error = ""
		s.LastSync = &now
	})
	return commitID, domain.ExecSuccess, nil
}

// pull fast-forwards the branch and rebuilds the tree
func (e *Engine) pull(ctx context.Context) error {
	cfg, err := e.requireConfig()
	if err != nil {
		return err
	}

	tctx, cancel := e.withTimeout(ctx)
	defer cancel()
	err = e.vcs.Pull(tctx, vcs.PullOptions{
		Branch:          cfg.Branch,
		Author:          e.author(),
		FastForwardOnly: true,
		SingleBranch:    true,
		Auth:            e.auth(),
	})
	if err != nil {
		return fmt.Errorf("failed to pull: %w", err)
	}

	e.markBase(ctx)
	e.rebuildTree(ctx)
	e.update(func(s *domain.SyncStatus) { s.Behind = 0 })
	return nil
}

func (e *Engine) push(ctx context.Context, force bool) error {
	cfg, err := e.requireConfig()
	if err != nil {
		return err
	}

	tctx, cancel := e.withTimeout(ctx)
	defer cancel()
	err = e.vcs.Push(tctx, vcs.PushOptions{
		Branch: cfg.Branch,
		Force:  force,
		Auth:   e.auth(),
	})
	if err != nil {
		return fmt.Errorf("failed to push: %w", err)
	}

	e.markBase(ctx)
	e.update(func(s *domain.SyncStatus) { s.Ahead = 0 })
	return nil
}

// stageAll stages every path whose working copy differs from the index
// and reports whether anything is left to commit
func (e *Engine) stageAll(ctx context.Context) (bool, error) {
	rows, err := e.vcs.StatusMatrix(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read status: %w", err)
	}

	for _, row := range rows {
		if !changes.NeedsStaging(row) {
			continue
		}
		if row.Workdir == vcs.StateAbsent {
			err = e.vcs.Remove(ctx, row.Path)
		} else {
			err = e.vcs.Add(ctx, row.Path)
		}
		if err != nil {
			return false, fmt.Errorf("failed to stage %s: %w", row.Path, err)
		}
	}
	return len(changes.FromMatrix(rows)) > 0, nil
}

func (e *Engine) commitAll(ctx context.Context, message string) (string, error) {
	pending, err := e.stageAll(ctx)
	if err != nil {
		return "", err
	}
	if !pending {
		return "", domain.ErrNothingToCommit
	}
	return e.commit(ctx, message)
}

func (e *Engine) commit(ctx context.Context, message string) (string, error) {
	id, err := e.vcs.Commit(ctx, message, e.author())
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	e.update(func(s *domain.SyncStatus) {
		s.Ahead++
		s.HasChanges = false
	})
	e.log.Info("committed", "commit", id)
	return id, nil
}

// Pull fast-forwards from the remote
func (e *Engine) Pull(ctx context.Context) error {
	return e.foreground(ctx, "pull", func() error { return e.pull(ctx) })
}

// Push pushes local commits
func (e *Engine) Push(ctx context.Context) error {
	return e.foreground(ctx, "push", func() error { return e.push(ctx, false) })
}

// ForcePull discards all local state and re-clones the branch
func (e *Engine) ForcePull(ctx context.Context) error {
	return e.recorded(ctx, "force-pull", func() (string, error) {
		cfg, err := e.requireConfig()
		if err != nil {
			return "", err
		}
		if err := e.cloneFresh(ctx, cfg.Branch); err != nil {
			return "", err
		}
		e.rebuildTree(ctx)
		e.update(func(s *domain.SyncStatus) {
			s.Ahead = 0
			s.Behind = 0
			s.HasChanges = false
			s.HasConflict = false
		})
		return e.getBase(), nil
	})
}

// ForcePush commits pending changes and overwrites the remote branch
func (e *Engine) ForcePush(ctx context.Context) error {
	return e.recorded(ctx, "force-push", func() (string, error) {
		id, err := e.commitAll(ctx, AutoSyncMessage(e.clock.Now()))
		if err != nil && !errors.Is(err, domain.ErrNothingToCommit) {
			return "", err
		}
		if err := e.push(ctx, true); err != nil {
			return id, err
		}
		e.update(func(s *domain.SyncStatus) {
			s.HasChanges = false
			s.HasConflict = false
		})
		return id, nil
	})
}

// Commit records the current index
func (e *Engine) Commit(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("commit message cannot be empty")
	}
	if err := e.acquire(ctx); err != nil {
		return "", err
	}
	defer e.release()

	if _, err := e.requireConfig(); err != nil {
		return "", err
	}
	return e.commit(ctx, message)
}

// CommitAllChanges stages every working-copy change and commits it
func (e *Engine) CommitAllChanges(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("commit message cannot be empty")
	}
	if err := e.acquire(ctx); err != nil {
		return "", err
	}
	defer e.release()

	if _, err := e.requireConfig(); err != nil {
		return "", err
	}
	return e.commitAll(ctx, message)
}

// GetChanges classifies pending working-copy changes
func (e *Engine) GetChanges(ctx context.Context) ([]domain.FileChange, error) {
	if _, err := e.requireConfig(); err != nil {
		return nil, err
	}
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	rows, err := e.vcs.StatusMatrix(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	return changes.FromMatrix(rows), nil
}

// foreground runs fn as a network operation under the writer lock
func (e *Engine) foreground(ctx context.Context, op string, fn func() error) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	if _, err := e.requireConfig(); err != nil {
		return err
	}
	e.begin()
	if err := fn(); err != nil {
		e.fail(op, err)
		return err
	}
	e.update(func(s *domain.SyncStatus) { s.Syncing = false })
	return nil
}

// recorded is foreground plus an execution history entry
func (e *Engine) recorded(ctx context.Context, op string, fn func() (string, error)) error {
	cfg := e.session.Config()
	start := e.clock.Now()
	var id string
	err := e.foreground(ctx, op, func() error {
		var err error
		id, err = fn()
		return err
	})
	if cfg == nil {
		return err
	}
	if err != nil {
		e.record(op, start, cfg, domain.ExecFailed, id, err)
		return err
	}
	e.record(op, start, cfg, domain.ExecSuccess, id, nil)
	return nil
}
