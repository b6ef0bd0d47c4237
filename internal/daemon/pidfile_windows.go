//go:build windows

package daemon

import (
	"errors"
	"fmt"
	"os"
)

// WakeSignal is nil: Windows has no user signals, so the watcher relies on
// its own polling there
var WakeSignal os.Signal

func killProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Kill(); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}

func wakeProcess(pid int) error {
	return errors.ErrUnsupported
}
