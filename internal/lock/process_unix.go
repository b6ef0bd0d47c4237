//go:build !windows

package lock

import (
	"errors"
	"os"
	"syscall"
)

// ProcessAlive reports whether pid is a live process on this host
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks the pid without delivering anything; EPERM still means alive
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
