package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Ning0612/Gitbox/internal/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. GITBOX_STORAGE_ROOT
const EnvPrefix = "GITBOX"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "gitbox"))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "gitbox"))
		paths = append(paths, filepath.Join(homeDir, ".gitbox"))
	}

	return paths
}

// DefaultDataDir returns the data directory used when none is configured
func DefaultDataDir() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "gitbox")
	}
	return ".gitbox"
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.root", "")
	v.SetDefault("storage.gdrive.client_id", "")
	v.SetDefault("storage.gdrive.client_secret", "")
	v.SetDefault("storage.gdrive.token_path", "")
	v.SetDefault("storage.gdrive.root_folder", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("sync.poll_min_interval", "30s")
	v.SetDefault("sync.op_timeout", "2m")
	v.SetDefault("sync.full_history", false)
	v.SetDefault("author.email_domain", "users.noreply.github.com")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads and parses a configuration file.
// If path is empty, default locations are searched for config.yaml and a
// missing file yields the defaults. An explicit path that does not exist
// returns ErrConfigNotFound.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			// defaults only
		case path != "" && errors.Is(err, os.ErrNotExist):
			return nil, domain.ErrConfigNotFound
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	return decode(v)
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
