package scheduler

import (
	"context"
	"time"

	"github.com/Ning0612/Gitbox/internal/logger"
)

// Scheduler defines the interface for auto-sync schedulers
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop cancels any run in flight and waits for the loop to exit
	Stop() error

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// Config contains scheduler configuration
type Config struct {
	// Name labels the scheduled job in logs, usually the repository URL
	Name string

	// Interval is the pause between the end of one run and the start of the next
	Interval time.Duration

	// Logger receives run outcomes; nil discards them
	Logger logger.Logger
}

// SyncRunner is the interface that schedulers use to execute sync operations
type SyncRunner interface {
	// RunSync executes one sync cycle
	RunSync(ctx context.Context) error
}

// RunnerFunc adapts a function to SyncRunner
type RunnerFunc func(ctx context.Context) error

// RunSync calls f(ctx)
func (f RunnerFunc) RunSync(ctx context.Context) error {
	return f(ctx)
}
