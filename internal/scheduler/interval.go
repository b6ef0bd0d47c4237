package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/Gitbox/internal/logger"
)

// IntervalScheduler runs a SyncRunner repeatedly. The next run is timed from
// the end of the previous one, so a slow sync never queues a backlog.
type IntervalScheduler struct {
	config Config
	runner SyncRunner
	log    logger.Logger

	mu          sync.RWMutex
	running     bool
	stopped     bool // a stopped scheduler cannot be restarted
	cancel      context.CancelFunc
	stopOnce    sync.Once
	closeOnce   sync.Once
	stoppedChan chan struct{}

	stats struct {
		lastRunTime    time.Time
		nextRunTime    time.Time
		totalRuns      int
		successfulRuns int
		failedRuns     int
		lastError      string
	}
}

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, runner SyncRunner) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}

	if runner == nil {
		return nil, fmt.Errorf("sync runner cannot be nil")
	}

	log := config.Logger
	if log == nil {
		log = logger.NullLogger{}
	}

	return &IntervalScheduler{
		config:      config,
		runner:      runner,
		log:         log.With("job", config.Name),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop.
// The first run happens one interval after Start.
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.stats.nextRunTime = time.Now().Add(s.config.Interval)

	go s.run(runCtx)

	return nil
}

func (s *IntervalScheduler) run(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.execute(ctx)
			if ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			s.stats.nextRunTime = time.Now().Add(s.config.Interval)
			s.mu.Unlock()
			timer.Reset(s.config.Interval)
		}
	}
}

func (s *IntervalScheduler) execute(ctx context.Context) {
	s.mu.Lock()
	s.stats.lastRunTime = time.Now()
	s.stats.totalRuns++
	s.mu.Unlock()

	start := time.Now()
	err := s.runner.RunSync(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.stats.failedRuns++
		s.stats.lastError = err.Error()
		s.log.Warn("scheduled run failed", "error", err, "duration", elapsed)
		return
	}
	s.log.Debug("scheduled run finished", "duration", elapsed)
	s.stats.successfulRuns++
	s.stats.lastError = ""
}

// Stop cancels the run in flight, if any, and waits for the loop to exit.
// Calling Stop more than once is harmless.
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	started := s.cancel != nil
	s.mu.RUnlock()
	if !started {
		return fmt.Errorf("scheduler is not running")
	}

	s.stopOnce.Do(func() {
		s.cancel()
	})

	<-s.stoppedChan
	return nil
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:        s.running,
		LastRunTime:    s.stats.lastRunTime,
		NextRunTime:    s.stats.nextRunTime,
		TotalRuns:      s.stats.totalRuns,
		SuccessfulRuns: s.stats.successfulRuns,
		FailedRuns:     s.stats.failedRuns,
		LastError:      s.stats.lastError,
	}
}
