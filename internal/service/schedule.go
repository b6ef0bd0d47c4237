package service

import (
	"context"
	"errors"
	"time"

	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/scheduler"
)

// startScheduling installs the auto-sync timer for cfg.
// Manual policy or a disabled auto-sync flag leaves nothing scheduled.
func (e *Engine) startScheduling(cfg domain.RepositoryConfig) {
	if !cfg.AutoSync {
		return
	}
	interval := e.intervalOf(cfg.Interval)
	if interval <= 0 {
		return
	}

	sched, err := scheduler.NewIntervalScheduler(scheduler.Config{
		Name:     cfg.URL,
		Interval: interval,
		Logger:   e.log,
	}, scheduler.RunnerFunc(e.runScheduledSync))
	if err != nil {
		e.log.Warn("failed to create auto-sync scheduler", "error", err)
		return
	}

	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if e.sched != nil {
		return
	}
	if err := sched.Start(e.bgCtx); err != nil {
		e.log.Warn("failed to start auto-sync scheduler", "error", err)
		return
	}
	e.sched = sched
	e.log.Info("auto-sync scheduled", "interval", interval.String())
}

// stopScheduling stops the auto-sync timer and waits for a run in flight.
// Must not be called while holding the writer lock.
func (e *Engine) stopScheduling() {
	e.schedMu.Lock()
	sched := e.sched
	e.sched = nil
	e.schedMu.Unlock()

	if sched == nil {
		return
	}
	if err := sched.Stop(); err != nil {
		e.log.Debug("auto-sync scheduler already stopped", "error", err)
	}
}

// SchedulerStatus reports the auto-sync timer, or nil when none is running
func (e *Engine) SchedulerStatus() *scheduler.Status {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if e.sched == nil {
		return nil
	}
	return e.sched.Status()
}

func (e *Engine) runScheduledSync(ctx context.Context) error {
	e.log.Debug("auto-sync tick")
	e.Sync(ctx)

	status := e.session.Status()
	if status.Error != "" {
		return errors.New(status.Error)
	}
	return nil
}

// NotifyVisible tells the engine the host became foreground-visible.
// It starts a background remote check unless one ran within the poll
// interval or the engine is disconnected, and reports whether it did.
func (e *Engine) NotifyVisible(ctx context.Context) bool {
	if !e.session.Status().Connected {
		return false
	}
	if !e.limiter.Allow() {
		e.log.Debug("visibility check throttled")
		return false
	}

	go e.backgroundCheck(ctx)
	return true
}

// backgroundCheck refreshes behind and has-changes from a remote comparison.
// It skips when a foreground operation holds the lock and absorbs all errors.
func (e *Engine) backgroundCheck(ctx context.Context) {
	if !e.sem.TryAcquire(1) {
		e.log.Debug("background check skipped, operation in progress")
		return
	}
	defer e.release()

	if _, err := e.requireConfig(); err != nil {
		return
	}

	obs, err := e.compare(ctx)
	if err != nil {
		e.log.Warn("background check failed", "error", err)
		return
	}

	e.update(func(s *domain.SyncStatus) {
		s.HasChanges = obs.uncommitted
		s.HasConflict = obs.RemoteChanges && obs.LocalChanges
		if obs.RemoteChanges {
			s.Behind = 1
		} else {
			s.Behind = 0
		}
	})
}

func defaultInterval(i domain.SyncInterval) time.Duration {
	return i.Duration()
}
