// Package lock guards a gitbox data directory against concurrent use by
// more than one process. Inside one process the engine serializes its own
// operations; this lock covers a CLI command racing a running watcher.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// LockFileName is the name of the lock file inside the data directory
	LockFileName = "gitbox.lock"
	// DefaultStaleTimeout applies only to locks written by another host
	DefaultStaleTimeout = 30 * time.Minute
)

// LockInfo describes the holder
type LockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartTime time.Time `json:"start_time"`
	Operation string    `json:"operation,omitempty"`
}

// FileLock is an exclusive lock file
type FileLock struct {
	lockPath     string
	staleTimeout time.Duration
	info         *LockInfo
}

// NewFileLock creates a lock in dataDir, creating the directory
func NewFileLock(dataDir string) (*FileLock, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &FileLock{
		lockPath:     filepath.Join(dataDir, LockFileName),
		staleTimeout: DefaultStaleTimeout,
	}, nil
}

// SetStaleTimeout sets the age after which another host's lock is ignored
func (l *FileLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.lockPath
}

// Acquire takes the lock for operation. A lock already held by this
// instance is relabeled instead of failing.
func (l *FileLock) Acquire(operation string) error {
	if l.info != nil {
		current, err := l.read()
		if err == nil && l.ownedBy(current) {
			l.info.Operation = operation
			return l.write(l.info)
		}
		l.info = nil
	}

	if current, err := l.read(); err == nil {
		if !l.isStale(current) {
			return &LockError{Holder: current, Reason: "workspace is in use"}
		}
		if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	info := &LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		Operation: operation,
	}

	// O_EXCL: two processes past the check above race here
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			holder, _ := l.read()
			return &LockError{Holder: holder, Reason: "workspace was locked concurrently"}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.info = info
	return nil
}

// Release drops the lock if this instance holds it
func (l *FileLock) Release() error {
	if l.info == nil {
		return nil
	}
	defer func() { l.info = nil }()

	current, err := l.read()
	if err != nil {
		return nil
	}
	if !l.ownedBy(current) {
		return fmt.Errorf("lock was taken over by PID %d", current.PID)
	}
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Holder returns the live holder, or nil when the lock is free or stale
func (l *FileLock) Holder() *LockInfo {
	info, err := l.read()
	if err != nil || l.isStale(info) {
		return nil
	}
	return info
}

// ForceRelease removes the lock file whoever holds it
func (l *FileLock) ForceRelease() error {
	l.info = nil
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	return nil
}

func (l *FileLock) read() (*LockInfo, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}
	return &info, nil
}

func (l *FileLock) write(info *LockInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.lockPath, data, 0644)
}

// isStale: same host means a dead PID; another host falls back to age
func (l *FileLock) isStale(info *LockInfo) bool {
	hostname, _ := os.Hostname()
	if info.Hostname == hostname {
		return !ProcessAlive(info.PID)
	}
	return time.Since(info.StartTime) > l.staleTimeout
}

func (l *FileLock) ownedBy(info *LockInfo) bool {
	if l.info == nil {
		return false
	}
	hostname, _ := os.Hostname()
	return info.PID == os.Getpid() &&
		info.Hostname == hostname &&
		info.StartTime.Equal(l.info.StartTime)
}

// LockError is returned when another live process holds the lock
type LockError struct {
	Holder *LockInfo
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder == nil {
		return fmt.Sprintf("cannot acquire lock: %s", e.Reason)
	}
	return fmt.Sprintf("cannot acquire lock: %s (PID %d on %s running %q since %s)",
		e.Reason,
		e.Holder.PID,
		e.Holder.Hostname,
		e.Holder.Operation,
		e.Holder.StartTime.Format(time.RFC3339),
	)
}

// IsLockError reports whether err is a *LockError
func IsLockError(err error) bool {
	var lockErr *LockError
	return errors.As(err, &lockErr)
}
