package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/logger"
)

// Storage backends
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGDrive = "gdrive"
)

// Config represents the complete configuration for gitbox
type Config struct {
	// DataDir holds the state database, PID file and logs
	DataDir string `mapstructure:"data_dir"`

	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Author  AuthorConfig  `mapstructure:"author"`

	// Repository is an optional default binding for connect
	Repository *domain.RepositoryConfig `mapstructure:"repository"`
}

// StorageConfig selects the handle-tree backend holding the working copy
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	Root    string       `mapstructure:"root"`
	GDrive  GDriveConfig `mapstructure:"gdrive"`
}

// GDriveConfig configures the Google Drive backend
type GDriveConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenPath    string `mapstructure:"token_path"`
	// RootFolder is the Drive folder ID used as storage root; empty means "root"
	RootFolder string `mapstructure:"root_folder"`
}

// LogConfig 日誌設定
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// SyncConfig tunes engine timing
type SyncConfig struct {
	// PollMinInterval is the minimum spacing of visibility-triggered remote checks
	PollMinInterval time.Duration `mapstructure:"poll_min_interval"`

	// OpTimeout bounds every network operation
	OpTimeout time.Duration `mapstructure:"op_timeout"`

	// FullHistory disables depth-1 clones and fetches
	FullHistory bool `mapstructure:"full_history"`
}

// AuthorConfig controls the placeholder commit identity
type AuthorConfig struct {
	EmailDomain string `mapstructure:"email_domain"`
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir cannot be empty", domain.ErrConfigInvalid)
	}

	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.Root == "" {
			return fmt.Errorf("%w: storage.root is required for the local backend", domain.ErrConfigInvalid)
		}
	case BackendMemory:
	case BackendGDrive:
		if c.Storage.GDrive.ClientID == "" || c.Storage.GDrive.ClientSecret == "" {
			return fmt.Errorf("%w: storage.gdrive.client_id and client_secret are required", domain.ErrConfigInvalid)
		}
		if c.Storage.GDrive.TokenPath == "" {
			return fmt.Errorf("%w: storage.gdrive.token_path is required", domain.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: invalid storage backend: %s", domain.ErrConfigInvalid, c.Storage.Backend)
	}

	if _, err := logger.LookupLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", domain.ErrConfigInvalid, err)
	}
	if _, err := logger.LookupFormat(c.Log.Format); err != nil {
		return fmt.Errorf("%w: log.format: %v", domain.ErrConfigInvalid, err)
	}

	if c.Sync.PollMinInterval < 0 {
		return fmt.Errorf("%w: sync.poll_min_interval cannot be negative", domain.ErrConfigInvalid)
	}
	if c.Sync.OpTimeout <= 0 {
		return fmt.Errorf("%w: sync.op_timeout must be positive", domain.ErrConfigInvalid)
	}

	if c.Repository != nil {
		repo := c.Repository.WithDefaults()
		if err := repo.Validate(); err != nil {
			return fmt.Errorf("repository: %w", err)
		}
		c.Repository = &repo
	}

	return nil
}

// LoggerConfig converts the log section for logger.Init
func (c *Config) LoggerConfig() logger.Config {
	cfg := logger.Config{
		Level:  logger.ParseLevel(c.Log.Level),
		Format: logger.ParseFormat(c.Log.Format),
	}
	if c.Log.File != "" {
		cfg.File = logger.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxAgeDays: c.Log.MaxAgeDays,
			MaxBackups: c.Log.MaxBackups,
		}
	}
	return cfg
}

// expandPaths resolves ~ and env vars and fills path defaults derived from DataDir
func (c *Config) expandPaths() {
	c.DataDir = ExpandPath(c.DataDir)
	if c.Storage.Root == "" && c.Storage.Backend == BackendLocal {
		c.Storage.Root = filepath.Join(c.DataDir, "workspace")
	}
	if c.Storage.Root != "" {
		c.Storage.Root = ExpandPath(c.Storage.Root)
	}
	if c.Storage.GDrive.TokenPath == "" {
		c.Storage.GDrive.TokenPath = filepath.Join(c.DataDir, "gdrive_token.json")
	}
	c.Storage.GDrive.TokenPath = ExpandPath(c.Storage.GDrive.TokenPath)
	if c.Log.File != "" {
		c.Log.File = ExpandPath(c.Log.File)
	}
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			if len(path) == 1 {
				path = home
			} else if path[1] == '/' || path[1] == filepath.Separator {
				path = filepath.Join(home, path[2:])
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
