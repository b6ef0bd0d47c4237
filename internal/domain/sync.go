package domain

import "time"

// SyncStatus is the observable state of a repository session.
// The engine owns the live instance; everything outside it sees clones.
type SyncStatus struct {
	Connected   bool
	Syncing     bool
	LastSync    *time.Time
	Ahead       int
	Behind      int
	HasChanges  bool
	HasConflict bool
	Error       string
}

// Clone returns an independent copy
func (s SyncStatus) Clone() SyncStatus {
	out := s
	if s.LastSync != nil {
		t := *s.LastSync
		out.LastSync = &t
	}
	return out
}

// SessionState is the engine state derived from status flags
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateIdle         SessionState = "connected-idle"
	StateSyncing      SessionState = "connected-syncing"
	StateConflicted   SessionState = "conflicted"
)

// State derives the session state from the status flags
func (s SyncStatus) State() SessionState {
	switch {
	case !s.Connected && s.Syncing:
		return StateConnecting
	case !s.Connected:
		return StateDisconnected
	case s.Syncing:
		return StateSyncing
	case s.HasConflict:
		return StateConflicted
	default:
		return StateIdle
	}
}

// ExecutionStatus is the outcome recorded in sync history
type ExecutionStatus string

const (
	ExecSuccess  ExecutionStatus = "success"
	ExecFailed   ExecutionStatus = "failed"
	ExecConflict ExecutionStatus = "conflict"
)

// IsValid checks if the status is a known value
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecSuccess, ExecFailed, ExecConflict:
		return true
	}
	return false
}
