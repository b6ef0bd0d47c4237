package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Provider identifies how the remote URL is interpreted
type Provider string

const (
	ProviderGitHub  Provider = "github"
	ProviderGeneric Provider = "generic"
)

// IsValid checks if the provider is a known value
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGitHub, ProviderGeneric:
		return true
	}
	return false
}

// SyncInterval is the auto-sync policy
type SyncInterval string

const (
	IntervalManual SyncInterval = "manual"
	Interval5m     SyncInterval = "5m"
	Interval15m    SyncInterval = "15m"
	Interval30m    SyncInterval = "30m"
	Interval60m    SyncInterval = "60m"
)

// IsValid checks if the interval is a known value
func (i SyncInterval) IsValid() bool {
	switch i {
	case IntervalManual, Interval5m, Interval15m, Interval30m, Interval60m:
		return true
	}
	return false
}

// Duration returns the timer period; zero for manual
func (i SyncInterval) Duration() time.Duration {
	switch i {
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval60m:
		return 60 * time.Minute
	}
	return 0
}

// ConflictResolution is the user's stated preference.
// It is stored and validated but the sync algorithm always reports conflicts.
type ConflictResolution string

const (
	ResolveLocal  ConflictResolution = "local"
	ResolveRemote ConflictResolution = "remote"
	ResolveNewest ConflictResolution = "newest"
)

// IsValid checks if the preference is a known value
func (c ConflictResolution) IsValid() bool {
	switch c {
	case ResolveLocal, ResolveRemote, ResolveNewest:
		return true
	}
	return false
}

// RepositoryConfig binds a session to one remote branch
type RepositoryConfig struct {
	Provider           Provider           `json:"provider" mapstructure:"provider"`
	URL                string             `json:"url" mapstructure:"url"`
	Branch             string             `json:"branch" mapstructure:"branch"`
	Token              string             `json:"token,omitempty" mapstructure:"token"`
	Username           string             `json:"username,omitempty" mapstructure:"username"`
	Interval           SyncInterval       `json:"interval" mapstructure:"interval"`
	ConflictResolution ConflictResolution `json:"conflictResolution" mapstructure:"conflict"`
	AutoSync           bool               `json:"autoSync" mapstructure:"auto_sync"`
}

// WithDefaults fills unset enum fields
func (c RepositoryConfig) WithDefaults() RepositoryConfig {
	if c.Provider == "" {
		c.Provider = ProviderGeneric
	}
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.Interval == "" {
		c.Interval = IntervalManual
	}
	if c.ConflictResolution == "" {
		c.ConflictResolution = ResolveRemote
	}
	return c
}

// Validate checks if the config is usable for connect
func (c RepositoryConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: repository url cannot be empty", ErrConfigInvalid)
	}
	if c.Branch == "" {
		return fmt.Errorf("%w: branch cannot be empty", ErrConfigInvalid)
	}
	if !c.Provider.IsValid() {
		return fmt.Errorf("%w: invalid provider: %s", ErrConfigInvalid, c.Provider)
	}
	if !c.Interval.IsValid() {
		return fmt.Errorf("%w: invalid sync interval: %s", ErrConfigInvalid, c.Interval)
	}
	if c.ConflictResolution != "" && !c.ConflictResolution.IsValid() {
		return fmt.Errorf("%w: invalid conflict resolution: %s", ErrConfigInvalid, c.ConflictResolution)
	}
	return nil
}

// Marshal serializes the config for the persistence collaborator
func (c RepositoryConfig) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalRepositoryConfig parses stored data.
// Malformed or incomplete data yields nil, which callers treat as no configuration.
func UnmarshalRepositoryConfig(data []byte) *RepositoryConfig {
	if len(data) == 0 {
		return nil
	}
	var cfg RepositoryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	cfg = cfg.WithDefaults()
	if cfg.Validate() != nil {
		return nil
	}
	return &cfg
}
