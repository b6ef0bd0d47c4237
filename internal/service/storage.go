package service

import (
	"context"
	"fmt"

	"github.com/Ning0612/Gitbox/internal/adapter/gdrive"
	"github.com/Ning0612/Gitbox/internal/adapter/local"
	"github.com/Ning0612/Gitbox/internal/config"
	"github.com/Ning0612/Gitbox/internal/handle"
	"github.com/Ning0612/Gitbox/internal/vfs"
)

// OpenStorage opens the handle tree selected by the storage section
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (*vfs.FS, error) {
	var root handle.Directory

	switch cfg.Backend {
	case config.BackendLocal:
		dir, err := local.NewOS(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to open local storage: %w", err)
		}
		root = dir
	case config.BackendMemory:
		root = local.NewMemory()
	case config.BackendGDrive:
		g := cfg.GDrive
		dir, err := gdrive.New(ctx, g.ClientID, g.ClientSecret, g.TokenPath, g.RootFolder)
		if err != nil {
			return nil, fmt.Errorf("failed to open google drive storage: %w", err)
		}
		root = dir
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}

	return vfs.New(root), nil
}
