package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Gitbox/internal/config"
	"github.com/Ning0612/Gitbox/internal/lock"
	"github.com/Ning0612/Gitbox/internal/logger"
	"github.com/Ning0612/Gitbox/internal/progress"
	"github.com/Ning0612/Gitbox/internal/service"
)

var (
	configPath string
	quiet      bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gitbox",
	Short: "Keep a folder in sync with a git remote",
	Long: `gitbox binds a storage area (a local folder, memory or Google Drive) to one
branch of a git remote and keeps them in sync: local edits are committed and
pushed, remote commits are pulled, and divergence on both sides is reported as
a conflict to resolve with force-pull or force-push.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search ./, ~/.config/gitbox)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "hide git progress output")
}

// loadConfig reads the config file and initializes the global logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	// several gitbox processes may share one log file
	lc := cfg.LoggerConfig()
	lc.Attrs = []any{"pid", os.Getpid()}
	if err := logger.Init(lc); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// app is one command's view of the storage: the daemon service wrapped
// around the engine plus the cross-process lock guarding the storage
type app struct {
	cfg    *config.Config
	daemon *service.DaemonService
	lock   *lock.FileLock
}

// openApp loads config, takes the storage lock for operation and restores
// the persisted binding. The caller must defer app.Close().
func openApp(cmd *cobra.Command, operation string) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	fl, err := lock.NewFileLock(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if err := fl.Acquire(operation); err != nil {
		return nil, err
	}

	opts := service.DaemonOptions{}
	if !quiet {
		renderer := progress.NewRenderer(cmd.ErrOrStderr(), 30)
		opts.Progress = progress.NewWriter(renderer.Render)
	}

	d, err := service.NewDaemonService(cmd.Context(), cfg, opts)
	if err != nil {
		fl.Release()
		return nil, err
	}

	a := &app{cfg: cfg, daemon: d, lock: fl}
	if err := d.Start(cmd.Context()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) engine() *service.Engine {
	return a.daemon.Engine()
}

// requireConnected fails when no repository is bound
func (a *app) requireConnected() error {
	if a.engine().Config() == nil {
		return fmt.Errorf("no repository connected; run 'gitbox connect <url>' first")
	}
	return nil
}

func (a *app) Close() error {
	err := a.daemon.Close()
	if relErr := a.lock.Release(); relErr != nil && err == nil {
		err = relErr
	}
	logger.Sync()
	return err
}
