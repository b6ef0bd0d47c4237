// Package service hosts the sync engine: the state machine that decides
// whether to commit, pull, push or report a conflict for one repository
// session, and the long-running daemon wrapped around it.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/logger"
	"github.com/Ning0612/Gitbox/internal/scheduler"
	"github.com/Ning0612/Gitbox/internal/session"
	"github.com/Ning0612/Gitbox/internal/state"
	"github.com/Ning0612/Gitbox/internal/vcs"
	"github.com/Ning0612/Gitbox/internal/vfs"
)

// DefaultConfigKey is the persistence key of the repository binding
const DefaultConfigKey = "repository-config"

// DefaultOpTimeout bounds each network operation when Options.OpTimeout is zero
const DefaultOpTimeout = 2 * time.Minute

// ConfigStore persists the repository binding.
// LoadConfig returns nil, nil for absent or malformed data.
type ConfigStore interface {
	SaveConfig(key string, cfg *domain.RepositoryConfig) error
	LoadConfig(key string) (*domain.RepositoryConfig, error)
	DeleteConfig(key string) error
}

// HistoryRecorder receives one record per connect, sync and force operation
type HistoryRecorder interface {
	SaveExecution(record state.ExecutionRecord) error
}

// Clock abstracts time for tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures an Engine. FS and VCS are required.
type Options struct {
	FS      *vfs.FS
	VCS     vcs.Client
	Store   ConfigStore
	History HistoryRecorder
	Clock   Clock
	Logger  logger.Logger

	// ConfigKey defaults to DefaultConfigKey
	ConfigKey string

	// OpTimeout defaults to DefaultOpTimeout
	OpTimeout time.Duration

	// PollMinInterval throttles NotifyVisible; zero disables throttling
	PollMinInterval time.Duration

	// AuthorEmailDomain builds the placeholder author email
	AuthorEmailDomain string

	// FullHistory clones and fetches without a depth limit
	FullHistory bool
}

// CheckResult is the outcome of comparing local and remote state
type CheckResult struct {
	RemoteChanges bool
	LocalChanges  bool
}

// Engine is the sync engine for one repository session.
// Foreground operations are serialized through a single-writer semaphore;
// background checks skip silently when it is held.
type Engine struct {
	fs        *vfs.FS
	vcs       vcs.Client
	store     ConfigStore
	history   HistoryRecorder
	clock     Clock
	log       logger.Logger
	configKey string
	opTimeout time.Duration
	emailDom  string
	depth     int

	session *session.Session
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	// base is the remote tip as of the last clone, pull or push
	mu   sync.Mutex
	base string
	tree []domain.FileItem

	obs observers

	schedMu    sync.Mutex
	sched      *scheduler.IntervalScheduler
	intervalOf func(domain.SyncInterval) time.Duration

	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// New creates a disconnected engine
func New(opts Options) (*Engine, error) {
	if opts.FS == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if opts.VCS == nil {
		return nil, fmt.Errorf("vcs client cannot be nil")
	}

	e := &Engine{
		fs:        opts.FS,
		vcs:       opts.VCS,
		store:     opts.Store,
		history:   opts.History,
		clock:     opts.Clock,
		log:       opts.Logger,
		configKey: opts.ConfigKey,
		opTimeout: opts.OpTimeout,
		emailDom:  opts.AuthorEmailDomain,
		depth:     1,
		session:   session.New(),
		sem:       semaphore.NewWeighted(1),

		intervalOf: defaultInterval,
	}

	if e.clock == nil {
		e.clock = systemClock{}
	}
	e.log = logger.Or(e.log).With("component", "engine")
	if opts.FullHistory {
		e.depth = 0
	}
	if e.configKey == "" {
		e.configKey = DefaultConfigKey
	}
	if e.opTimeout <= 0 {
		e.opTimeout = DefaultOpTimeout
	}
	if e.emailDom == "" {
		e.emailDom = "users.noreply.github.com"
	}

	limit := rate.Inf
	if opts.PollMinInterval > 0 {
		limit = rate.Every(opts.PollMinInterval)
	}
	e.limiter = rate.NewLimiter(limit, 1)

	e.bgCtx, e.bgCancel = context.WithCancel(context.Background())
	return e, nil
}

// Status returns an independent snapshot of the sync status
func (e *Engine) Status() domain.SyncStatus {
	return e.session.Status()
}

// State returns the state machine position derived from the status
func (e *Engine) State() domain.SessionState {
	return e.session.Status().State()
}

// Config returns a copy of the current binding, or nil
func (e *Engine) Config() *domain.RepositoryConfig {
	return e.session.Config()
}

// Close stops scheduled work. The engine must not be used afterwards.
func (e *Engine) Close() error {
	e.stopScheduling()
	e.bgCancel()
	return nil
}

// update mutates the status and notifies subscribers outside the session lock
func (e *Engine) update(fn func(*domain.SyncStatus)) {
	snap := e.session.Update(fn)
	e.obs.notifyStatus(snap)
}

// acquire takes the single-writer lock for a foreground operation
func (e *Engine) acquire(ctx context.Context) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSyncInProgress, err)
	}
	return nil
}

func (e *Engine) release() {
	e.sem.Release(1)
}

// begin marks a network operation in progress
func (e *Engine) begin() {
	e.update(func(s *domain.SyncStatus) {
		s.Syncing = true
		s.Error = ""
	})
}

// fail ends a network operation with err recorded in the status
func (e *Engine) fail(op string, err error) {
	e.log.Error("operation failed", "op", op, "error", err)
	e.update(func(s *domain.SyncStatus) {
		s.Syncing = false
		s.Error = err.Error()
	})
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opTimeout)
}

func (e *Engine) auth() vcs.Auth {
	user, token := e.session.Credentials()
	return vcs.Auth{Username: user, Password: token}
}

// author is the placeholder identity derived from the configured username
func (e *Engine) author() vcs.Author {
	name := "gitbox"
	if cfg := e.session.Config(); cfg != nil && cfg.Username != "" {
		name = cfg.Username
	}
	return vcs.Author{
		Name:  name,
		Email: name + "@" + e.emailDom,
		When:  e.clock.Now(),
	}
}

func (e *Engine) requireConfig() (*domain.RepositoryConfig, error) {
	cfg := e.session.Config()
	if cfg == nil {
		return nil, domain.ErrNotConnected
	}
	return cfg, nil
}

func (e *Engine) setBase(id string) {
	e.mu.Lock()
	e.base = id
	e.mu.Unlock()
}

func (e *Engine) getBase() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base
}

// markBase records the local HEAD as the last known remote tip
func (e *Engine) markBase(ctx context.Context) {
	id, err := e.vcs.ResolveRef(ctx, "HEAD")
	if err != nil {
		e.log.Warn("failed to resolve HEAD", "error", err)
		return
	}
	e.setBase(id)
}

func (e *Engine) record(op string, start time.Time, cfg *domain.RepositoryConfig, status domain.ExecutionStatus, commitID string, err error) {
	if e.history == nil || cfg == nil {
		return
	}
	rec := state.ExecutionRecord{
		Operation:  op,
		Repository: cfg.URL,
		Branch:     cfg.Branch,
		StartTime:  start,
		EndTime:    e.clock.Now(),
		Status:     status,
		CommitID:   commitID,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if saveErr := e.history.SaveExecution(rec); saveErr != nil {
		e.log.Warn("failed to record execution", "op", op, "error", saveErr)
	}
}

func (e *Engine) persist(cfg *domain.RepositoryConfig) {
	if e.store == nil {
		return
	}
	var err error
	if cfg == nil {
		err = e.store.DeleteConfig(e.configKey)
	} else {
		err = e.store.SaveConfig(e.configKey, cfg)
	}
	if err != nil {
		e.log.Warn("failed to persist repository config", "error", err)
	}
}

// notFound wraps a clone failure that means the remote does not exist
func notFound(url string, err error) error {
	if vcs.IsNotFound(err) && !errors.Is(err, vcs.ErrRefNotFound) {
		return &domain.RepoNotFoundError{URL: url, Err: err}
	}
	return err
}
