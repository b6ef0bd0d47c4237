//go:build !windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// WakeSignal is the signal the watcher treats as "became visible"
var WakeSignal os.Signal = syscall.SIGUSR1

func killProcess(pid int) error {
	return signal(pid, syscall.SIGTERM)
}

func wakeProcess(pid int) error {
	return signal(pid, syscall.SIGUSR1)
}

func signal(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}
