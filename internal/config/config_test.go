package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/logger"
)

func TestLoadFromString_Defaults(t *testing.T) {
	cfg, err := LoadFromString("data_dir: /tmp/gitbox-test\n")
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	if cfg.Storage.Backend != BackendLocal {
		t.Errorf("Backend = %q, want %q", cfg.Storage.Backend, BackendLocal)
	}
	if cfg.Storage.Root != filepath.Join("/tmp/gitbox-test", "workspace") {
		t.Errorf("Root = %q", cfg.Storage.Root)
	}
	if cfg.Sync.OpTimeout != 2*time.Minute {
		t.Errorf("OpTimeout = %v, want 2m", cfg.Sync.OpTimeout)
	}
	if cfg.Sync.PollMinInterval != 30*time.Second {
		t.Errorf("PollMinInterval = %v, want 30s", cfg.Sync.PollMinInterval)
	}
	if cfg.Repository != nil {
		t.Errorf("Repository = %+v, want nil", cfg.Repository)
	}
}

func TestLoadFromString_Full(t *testing.T) {
	yaml := `
data_dir: /var/lib/gitbox
storage:
  backend: memory
log:
  level: debug
  format: json
  file: /var/log/gitbox.log
sync:
  poll_min_interval: 10s
  op_timeout: 45s
  full_history: true
author:
  email_domain: example.com
repository:
  provider: github
  url: https://github.com/octo/notes
  branch: drafts
  username: octo
  interval: 15m
  conflict: newest
  auto_sync: true
`
	cfg, err := LoadFromString(yaml)
	if err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Sync.OpTimeout != 45*time.Second || cfg.Sync.PollMinInterval != 10*time.Second {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if !cfg.Sync.FullHistory {
		t.Error("FullHistory should be set")
	}
	if cfg.Author.EmailDomain != "example.com" {
		t.Errorf("EmailDomain = %q", cfg.Author.EmailDomain)
	}

	repo := cfg.Repository
	if repo == nil {
		t.Fatal("Repository is nil")
	}
	if repo.Provider != domain.ProviderGitHub || repo.Branch != "drafts" || repo.Interval != domain.Interval15m {
		t.Errorf("Repository = %+v", repo)
	}
	if repo.ConflictResolution != domain.ResolveNewest || !repo.AutoSync {
		t.Errorf("Repository policy = %+v", repo)
	}

	lc := cfg.LoggerConfig()
	if lc.Level != logger.LevelDebug || lc.Format != logger.FormatJSON || lc.File.Path != "/var/log/gitbox.log" {
		t.Errorf("LoggerConfig() = %+v", lc)
	}
}

func TestLoadFromString_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad backend", "storage:\n  backend: s3\n"},
		{"gdrive without credentials", "storage:\n  backend: gdrive\n"},
		{"zero timeout", "sync:\n  op_timeout: 0s\n"},
		{"negative poll", "sync:\n  poll_min_interval: -1s\n"},
		{"repository without url", "repository:\n  branch: main\n"},
		{"repository bad interval", "repository:\n  url: https://x/y.git\n  interval: 7m\n"},
		{"unknown log level", "log:\n  level: loud\n"},
		{"unknown log format", "log:\n  format: xml\n"},
		{"malformed yaml", "storage: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromString(tt.yaml)
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Errorf("LoadFromString() error = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "data_dir: " + dir + "\nstorage:\n  root: " + filepath.Join(dir, "ws") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Root != filepath.Join(dir, "ws") {
		t.Errorf("Root = %q", cfg.Storage.Root)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Load() error = %v, want ErrConfigNotFound", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GITBOX_STORAGE_BACKEND", "memory")
	t.Setenv("GITBOX_SYNC_OP_TIMEOUT", "5s")

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: "+dir+"\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("Backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Sync.OpTimeout != 5*time.Second {
		t.Errorf("OpTimeout = %v, want 5s", cfg.Sync.OpTimeout)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("GITBOX_TEST_DIR", "/srv/data")

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/notes", filepath.Join(home, "notes")},
		{"$GITBOX_TEST_DIR/x", "/srv/data/x"},
		{"/a/b/../c", "/a/c"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
