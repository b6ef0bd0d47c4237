package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Gitbox/internal/daemon"
	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run in the foreground, auto-syncing and answering wake-ups",
	Long: `Hold the storage, run the auto-sync timer of the bound repository and
check the remote whenever 'gitbox wake' is called. Stop with Ctrl-C or
'gitbox stop'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, "watch")
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := daemon.PIDPath(a.cfg.DataDir)
		if err != nil {
			return err
		}
		pf := daemon.NewPIDFile(path)
		if err := pf.Write(); err != nil {
			return err
		}
		defer pf.Remove()

		log := logger.Named("watch")
		engine := a.engine()
		sub := engine.SubscribeStatus(func(s domain.SyncStatus) {
			if s.HasConflict {
				log.Warn("conflict detected; run force-pull or force-push", "error", s.Error)
			}
		})
		defer sub.Unsubscribe()

		sigs := []os.Signal{os.Interrupt, syscall.SIGTERM}
		if daemon.WakeSignal != nil {
			sigs = append(sigs, daemon.WakeSignal)
		}
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, sigs...)
		defer signal.Stop(ch)

		// without a wake signal the watcher polls on its own
		var poll <-chan time.Time
		if daemon.WakeSignal == nil && a.cfg.Sync.PollMinInterval > 0 {
			ticker := time.NewTicker(a.cfg.Sync.PollMinInterval)
			defer ticker.Stop()
			poll = ticker.C
		}

		fmt.Printf("Watching (PID %d)\n", os.Getpid())
		log.Info("watcher started", "connected", engine.Status().Connected)

		ctx := cmd.Context()
		for {
			select {
			case <-ctx.Done():
				log.Info("watcher stopping")
				return nil
			case sig := <-ch:
				if sig != daemon.WakeSignal {
					log.Info("watcher stopping", "signal", sig.String())
					return nil
				}
				if engine.NotifyVisible(ctx) {
					log.Debug("wake-up check started")
				}
			case <-poll:
				engine.NotifyVisible(ctx)
			}
		}
	},
}

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Ask the watcher to check the remote now",
	RunE: func(cmd *cobra.Command, args []string) error {
		pf, err := watcherPIDFile()
		if err != nil {
			return err
		}
		if err := pf.Wake(); err != nil {
			if errors.Is(err, daemon.ErrNotRunning) {
				return fmt.Errorf("no watcher running; start one with 'gitbox watch'")
			}
			return err
		}
		fmt.Println("Watcher notified")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		pf, err := watcherPIDFile()
		if err != nil {
			return err
		}
		if err := pf.Stop(); err != nil {
			return err
		}
		fmt.Println("Watcher stopped")
		return nil
	},
}

func watcherPIDFile() (*daemon.PIDFile, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path, err := daemon.PIDPath(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return daemon.NewPIDFile(path), nil
}

func init() {
	rootCmd.AddCommand(watchCmd, wakeCmd, stopCmd)
}
