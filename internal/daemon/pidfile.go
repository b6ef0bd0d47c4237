// Package daemon tracks the `gitbox watch` process through a PID file so
// other commands can find it, wake it for a remote check, or stop it.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Ning0612/Gitbox/internal/lock"
)

// PIDFileName is the watcher PID file inside the data directory
const PIDFileName = "watch.pid"

// ErrNotRunning is returned when no live watcher owns the PID file
var ErrNotRunning = errors.New("watcher is not running")

// PIDFile manages the watcher process ID file
type PIDFile struct {
	path string
}

// NewPIDFile creates a PID file manager for path
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// PIDPath returns the PID file path inside dataDir, creating the directory
func PIDPath(dataDir string) (string, error) {
	if dataDir == "" {
		return "", fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create PID directory: %w", err)
	}
	return filepath.Join(dataDir, PIDFileName), nil
}

// Path returns the file path
func (p *PIDFile) Path() string {
	return p.path
}

// Write records the current process. A file left by a dead process is replaced.
func (p *PIDFile) Write() error {
	if running, _ := p.IsRunning(); running {
		return fmt.Errorf("watcher is already running (PID file exists: %s)", p.path)
	}
	os.Remove(p.path)

	content := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(p.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Read returns the recorded PID
func (p *PIDFile) Read() (int, error) {
	content, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotRunning
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in file: %q", pidStr)
	}
	return pid, nil
}

// Remove deletes the PID file
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether the recorded process is alive
func (p *PIDFile) IsRunning() (bool, error) {
	pid, err := p.Read()
	if err != nil {
		return false, err
	}
	return lock.ProcessAlive(pid), nil
}

// live returns the PID of a running watcher
func (p *PIDFile) live() (int, error) {
	pid, err := p.Read()
	if err != nil {
		return 0, err
	}
	if !lock.ProcessAlive(pid) {
		return 0, ErrNotRunning
	}
	return pid, nil
}

// Stop asks the watcher to shut down
func (p *PIDFile) Stop() error {
	pid, err := p.live()
	if err != nil {
		return err
	}
	return killProcess(pid)
}

// Wake asks the watcher to run a remote check now
func (p *PIDFile) Wake() error {
	pid, err := p.live()
	if err != nil {
		return err
	}
	return wakeProcess(pid)
}
