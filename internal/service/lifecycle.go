package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/session"
	"github.com/Ning0612/Gitbox/internal/vcs"
)

// Connect binds the engine to cfg: the storage is cleared and the branch is
// cloned shallow. On success the binding is persisted and scheduling starts.
func (e *Engine) Connect(ctx context.Context, cfg domain.RepositoryConfig) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.stopScheduling()
	if err := e.acquire(ctx); err != nil {
		return err
	}
	err := e.connectLocked(ctx, cfg)
	e.release()
	if err != nil {
		return err
	}

	e.startScheduling(cfg)
	e.backgroundCheck(ctx)
	return nil
}

func (e *Engine) connectLocked(ctx context.Context, cfg domain.RepositoryConfig) error {
	start := e.clock.Now()
	log := e.log.With("url", cfg.URL, "branch", cfg.Branch)
	log.Info("connecting")

	e.session.SetConfig(&cfg)
	e.update(func(s *domain.SyncStatus) {
		*s = domain.SyncStatus{Syncing: true}
	})

	if err := e.cloneFresh(ctx, cfg.Branch); err != nil {
		err = notFound(cfg.URL, err)
		e.session.SetConfig(nil)
		e.fail("connect", err)
		e.record("connect", start, &cfg, domain.ExecFailed, "", err)
		return err
	}

	e.rebuildTree(ctx)
	e.update(func(s *domain.SyncStatus) {
		*s = domain.SyncStatus{Connected: true}
	})
	e.persist(&cfg)
	e.record("connect", start, &cfg, domain.ExecSuccess, e.getBase(), nil)
	log.Info("connected")
	return nil
}

// cloneFresh clears the storage and clones branch of the bound remote,
// shallow unless full history was asked for
func (e *Engine) cloneFresh(ctx context.Context, branch string) error {
	url, err := e.session.AuthenticatedURL()
	if err != nil {
		return err
	}
	if err := e.fs.Clear(ctx, "/"); err != nil {
		return fmt.Errorf("failed to clear storage: %w", err)
	}

	tctx, cancel := e.withTimeout(ctx)
	defer cancel()

	err = e.vcs.Clone(tctx, vcs.CloneOptions{
		URL:          url,
		Branch:       branch,
		Depth:        e.depth,
		SingleBranch: true,
		Auth:         e.auth(),
	})
	if err != nil {
		return err
	}
	e.markBase(ctx)
	return nil
}

// Restore rebinds the persisted configuration, typically on startup.
// A storage that already holds a checkout is reused; otherwise it connects.
// With nothing persisted the engine stays disconnected.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	cfg, err := e.store.LoadConfig(e.configKey)
	if err != nil {
		return fmt.Errorf("failed to load repository config: %w", err)
	}
	if cfg == nil {
		return nil
	}

	hasCheckout, err := e.fs.Exists(ctx, "/"+vcs.MetadataDir)
	if err != nil {
		return err
	}
	if !hasCheckout {
		e.log.Info("persisted repository has no checkout, connecting", "url", cfg.URL)
		return e.Connect(ctx, *cfg)
	}

	if err := e.acquire(ctx); err != nil {
		return err
	}
	e.session.SetConfig(cfg)
	ahead := e.restoreBase(ctx, cfg.Branch)
	e.rebuildTree(ctx)
	e.update(func(s *domain.SyncStatus) {
		*s = domain.SyncStatus{Connected: true, Ahead: ahead}
	})
	e.release()

	e.log.Info("restored repository", "url", cfg.URL, "branch", cfg.Branch)
	e.startScheduling(*cfg)
	e.backgroundCheck(ctx)
	return nil
}

// restoreBase recovers the last known remote tip from an existing checkout
// and returns the ahead counter: 1 when HEAD holds commits on top of the
// tracking ref. A tracking ref that moved past HEAD without a pull keeps
// HEAD as the base, so the next comparison still reports the remote change.
func (e *Engine) restoreBase(ctx context.Context, branch string) int {
	head, err := e.vcs.ResolveRef(ctx, "HEAD")
	if err != nil {
		e.log.Warn("failed to resolve HEAD", "error", err)
		return 0
	}
	tracking, err := e.vcs.ResolveRef(ctx, vcs.RemoteRef(branch))
	if err != nil || tracking == head {
		e.setBase(head)
		return 0
	}

	localAhead, err := e.vcs.IsAncestor(ctx, tracking, head)
	if err != nil {
		e.log.Warn("failed to compare HEAD with the remote", "error", err)
		e.setBase(tracking)
		return 1
	}
	if localAhead {
		e.setBase(tracking)
		return 1
	}

	// behind, or diverged. A shallow fetch can hide HEAD in the remote's
	// history, so divergence is left for the fast-forward pull to report.
	e.setBase(head)
	return 0
}

// SwitchBranch rebinds to branch name. A branch missing on the remote is
// created from the current branch and pushed.
func (e *Engine) SwitchBranch(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: branch cannot be empty", domain.ErrConfigInvalid)
	}
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	cfg, err := e.requireConfig()
	if err != nil {
		return err
	}
	start := e.clock.Now()
	e.begin()

	if err := e.cloneFresh(ctx, name); err != nil {
		e.log.Info("branch not cloneable, creating it", "branch", name, "error", err)
		if err := e.createBranch(ctx, cfg.Branch, name); err != nil {
			e.fail("switch-branch", err)
			e.record("switch-branch", start, cfg, domain.ExecFailed, "", err)
			return err
		}
	}

	cfg.Branch = name
	e.session.SetConfig(cfg)
	e.persist(cfg)
	e.rebuildTree(ctx)
	e.update(func(s *domain.SyncStatus) {
		s.Syncing = false
		s.Ahead = 0
		s.Behind = 0
		s.HasChanges = false
		s.HasConflict = false
	})
	e.record("switch-branch", start, cfg, domain.ExecSuccess, e.getBase(), nil)
	return nil
}

func (e *Engine) createBranch(ctx context.Context, from, name string) error {
	if err := e.cloneFresh(ctx, from); err != nil {
		return err
	}
	if err := e.vcs.CreateBranch(ctx, name); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	if err := e.vcs.Checkout(ctx, name); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", name, err)
	}

	tctx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.vcs.Push(tctx, vcs.PushOptions{Branch: name, Auth: e.auth()}); err != nil {
		return fmt.Errorf("failed to push new branch %s: %w", name, err)
	}
	e.markBase(ctx)
	return nil
}

// Disconnect stops scheduling, forgets the binding and clears the storage
func (e *Engine) Disconnect(ctx context.Context) error {
	e.stopScheduling()
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	var errs []error
	if e.store != nil {
		if err := e.store.DeleteConfig(e.configKey); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete persisted config: %w", err))
		}
	}
	if err := e.fs.Clear(ctx, "/"); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear storage: %w", err))
	}

	e.setBase("")
	snap := e.session.Reset()
	e.obs.notifyStatus(snap)
	e.setTree(nil)
	e.log.Info("disconnected")

	return errors.Join(errs...)
}

// AuthenticatedURL returns the credential-bearing remote URL of the binding
func (e *Engine) AuthenticatedURL() (string, error) {
	cfg, err := e.requireConfig()
	if err != nil {
		return "", err
	}
	return session.AuthenticatedURL(*cfg)
}
