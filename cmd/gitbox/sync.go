package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Gitbox/internal/daemon"
	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/logger"
	"github.com/Ning0612/Gitbox/internal/service"
	"github.com/Ning0612/Gitbox/internal/state"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Commit local changes, pull remote changes and push",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, "sync")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireConnected(); err != nil {
			return err
		}

		a.engine().Sync(cmd.Context())
		if status := a.engine().Status(); status.Error != "" {
			return errors.New(status.Error)
		}
		fmt.Println("Synced")
		return nil
	},
}

// simpleOp builds a command running one engine operation
func simpleOp(use, short, done string, op func(*service.Engine, *cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, use)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireConnected(); err != nil {
				return err
			}
			if err := op(a.engine(), cmd); err != nil {
				return err
			}
			fmt.Println(done)
			return nil
		},
	}
}

var pullCmd = simpleOp("pull", "Fast-forward from the remote", "Pulled",
	func(e *service.Engine, cmd *cobra.Command) error { return e.Pull(cmd.Context()) })

var pushCmd = simpleOp("push", "Push local commits", "Pushed",
	func(e *service.Engine, cmd *cobra.Command) error { return e.Push(cmd.Context()) })

var forcePullCmd = simpleOp("force-pull", "Discard local state and re-clone the branch", "Local state replaced by the remote",
	func(e *service.Engine, cmd *cobra.Command) error { return e.ForcePull(cmd.Context()) })

var forcePushCmd = simpleOp("force-push", "Commit everything and overwrite the remote branch", "Remote replaced by the local state",
	func(e *service.Engine, cmd *cobra.Command) error { return e.ForcePush(cmd.Context()) })

var commitFlags struct {
	message string
	all     bool
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit without pushing",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, "commit")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireConnected(); err != nil {
			return err
		}

		var id string
		if commitFlags.all {
			id, err = a.engine().CommitAllChanges(cmd.Context(), commitFlags.message)
		} else {
			id, err = a.engine().Commit(cmd.Context(), commitFlags.message)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Committed %s\n", shortID(id))
		return nil
	},
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List pending working-copy changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, "changes")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireConnected(); err != nil {
			return err
		}
		changes, err := a.engine().GetChanges(cmd.Context())
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			fmt.Println("No changes")
			return nil
		}
		for _, c := range changes {
			fmt.Printf("%-10s %s\n", c.Type, c.Path)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// the watcher owns the storage; report from the history instead of opening it
		if pid, running := watcherPID(cfg.DataDir); running {
			fmt.Printf("Watcher running (PID %d)\n", pid)
			mgr, err := state.NewManager(cfg.DataDir)
			if err != nil {
				return err
			}
			defer mgr.Close()
			records, err := mgr.GetAllHistory(1)
			if err != nil {
				return err
			}
			if len(records) > 0 {
				printRecordSummary(records[0])
			}
			return nil
		}

		a, err := openApp(cmd, "status")
		if err != nil {
			return err
		}
		defer a.Close()

		printStatus(a.engine().Config(), a.daemon.Status())
		return nil
	},
}

func printStatus(cfg *domain.RepositoryConfig, ds *service.DaemonStatus) {
	if cfg == nil {
		fmt.Println("Not connected")
		return
	}
	s := ds.Sync

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Repository:\t%s\n", logger.NewSanitizer().Sanitize(cfg.URL))
	fmt.Fprintf(w, "Branch:\t%s\n", cfg.Branch)
	fmt.Fprintf(w, "Auto-sync:\t%s\n", autoSyncLabel(cfg))
	fmt.Fprintf(w, "Ahead/Behind:\t%d/%d\n", s.Ahead, s.Behind)
	fmt.Fprintf(w, "Local changes:\t%t\n", s.HasChanges)
	fmt.Fprintf(w, "Conflict:\t%t\n", s.HasConflict)
	if s.LastSync != nil {
		fmt.Fprintf(w, "Last sync:\t%s\n", s.LastSync.Local().Format(time.RFC1123))
	}
	if s.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", s.Error)
	}
	if ds.LastExecution != nil {
		r := ds.LastExecution
		fmt.Fprintf(w, "Last operation:\t%s %s at %s\n", r.Operation, r.Status, r.EndTime.Local().Format(time.RFC1123))
	}
	w.Flush()
}

func autoSyncLabel(cfg *domain.RepositoryConfig) string {
	if !cfg.AutoSync || cfg.Interval == domain.IntervalManual {
		return "off"
	}
	return "every " + string(cfg.Interval)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mgr, err := state.NewManager(cfg.DataDir)
		if err != nil {
			return err
		}
		defer mgr.Close()

		records, err := mgr.GetAllHistory(historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No history")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tOPERATION\tBRANCH\tSTATUS\tCOMMIT\tDURATION")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.StartTime.Local().Format("2006-01-02 15:04:05"),
				r.Operation, r.Branch, r.Status, shortID(r.CommitID),
				r.EndTime.Sub(r.StartTime).Round(time.Millisecond))
			if r.Error != "" {
				fmt.Fprintf(w, "\t\t\t\t%s\t\n", r.Error)
			}
		}
		return w.Flush()
	},
}

func printRecordSummary(r state.ExecutionRecord) {
	fmt.Printf("Last operation: %s %s at %s\n", r.Operation, r.Status, r.EndTime.Local().Format(time.RFC1123))
	if r.Error != "" {
		fmt.Printf("Error: %s\n", r.Error)
	}
}

func watcherPID(dataDir string) (int, bool) {
	path, err := daemon.PIDPath(dataDir)
	if err != nil {
		return 0, false
	}
	pf := daemon.NewPIDFile(path)
	running, err := pf.IsRunning()
	if err != nil || !running {
		return 0, false
	}
	pid, err := pf.Read()
	if err != nil {
		return 0, false
	}
	return pid, true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	commitCmd.Flags().StringVarP(&commitFlags.message, "message", "m", "", "commit message")
	commitCmd.Flags().BoolVarP(&commitFlags.all, "all", "a", true, "stage every working-copy change first")
	commitCmd.MarkFlagRequired("message")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records to show")

	rootCmd.AddCommand(syncCmd, pullCmd, pushCmd, forcePullCmd, forcePushCmd,
		commitCmd, changesCmd, statusCmd, historyCmd)
}
