package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/github"
)

var connectFlags struct {
	provider string
	branch   string
	token    string
	username string
	interval string
	conflict string
	autoSync bool
}

var connectCmd = &cobra.Command{
	Use:   "connect [url]",
	Short: "Bind the storage to a remote branch",
	Long: `Clear the storage and clone the branch into it. Without a URL the
repository section of the config file is used. The token may also be given
through GITBOX_TOKEN.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, "connect")
		if err != nil {
			return err
		}
		defer a.Close()

		repo := domain.RepositoryConfig{}
		if a.cfg.Repository != nil {
			repo = *a.cfg.Repository
		}
		if len(args) == 1 {
			repo.URL = args[0]
		}
		applyConnectFlags(cmd, &repo)

		if err := a.engine().Connect(cmd.Context(), repo); err != nil {
			return err
		}

		cfg := a.engine().Config()
		fmt.Printf("Connected to %s (%s)\n", cfg.URL, cfg.Branch)
		if cfg.AutoSync && cfg.Interval != domain.IntervalManual {
			fmt.Printf("Auto-sync every %s while 'gitbox watch' runs\n", cfg.Interval)
		}
		return nil
	},
}

func applyConnectFlags(cmd *cobra.Command, repo *domain.RepositoryConfig) {
	f := cmd.Flags()
	if f.Changed("provider") {
		repo.Provider = domain.Provider(connectFlags.provider)
	}
	if f.Changed("branch") {
		repo.Branch = connectFlags.branch
	}
	if f.Changed("username") {
		repo.Username = connectFlags.username
	}
	if f.Changed("interval") {
		repo.Interval = domain.SyncInterval(connectFlags.interval)
	}
	if f.Changed("conflict") {
		repo.ConflictResolution = domain.ConflictResolution(connectFlags.conflict)
	}
	if f.Changed("auto-sync") {
		repo.AutoSync = connectFlags.autoSync
	}
	switch {
	case f.Changed("token"):
		repo.Token = connectFlags.token
	case repo.Token == "":
		repo.Token = os.Getenv("GITBOX_TOKEN")
	}
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the binding and clear the storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, "disconnect")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.engine().Disconnect(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Disconnected")
		return nil
	},
}

var branchCmd = &cobra.Command{
	Use:   "branch <name>",
	Short: "Switch to a branch, creating it on the remote if missing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, "branch")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireConnected(); err != nil {
			return err
		}
		if err := a.engine().SwitchBranch(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Switched to branch %s\n", args[0])
		return nil
	},
}

var createRepoFlags struct {
	private bool
	token   string
	apiURL  string
	connect bool
}

var createRepoCmd = &cobra.Command{
	Use:   "create-repo <name>",
	Short: "Create a GitHub repository for the authenticated user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := createRepoFlags.token
		if token == "" {
			token = os.Getenv("GITBOX_TOKEN")
		}

		client, err := github.NewClient(cmd.Context(), token)
		if err != nil {
			return err
		}
		if createRepoFlags.apiURL != "" {
			client.WithBaseURL(createRepoFlags.apiURL)
		}

		repo, err := client.CreateRepository(cmd.Context(), args[0], createRepoFlags.private)
		if err != nil {
			return fmt.Errorf("failed to create repository: %w", err)
		}
		fmt.Printf("Created %s\n", repo.CloneURL)

		if !createRepoFlags.connect {
			return nil
		}

		a, err := openApp(cmd, "connect")
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.engine().Connect(cmd.Context(), domain.RepositoryConfig{
			Provider: domain.ProviderGitHub,
			URL:      repo.CloneURL,
			Branch:   repo.DefaultBranch,
			Token:    token,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Connected to %s (%s)\n", repo.CloneURL, repo.DefaultBranch)
		return nil
	},
}

func init() {
	f := connectCmd.Flags()
	f.StringVar(&connectFlags.provider, "provider", string(domain.ProviderGeneric), "remote provider: github or generic")
	f.StringVarP(&connectFlags.branch, "branch", "b", "main", "branch to bind")
	f.StringVar(&connectFlags.token, "token", "", "access token")
	f.StringVar(&connectFlags.username, "username", "", "username for basic auth")
	f.StringVar(&connectFlags.interval, "interval", string(domain.IntervalManual), "auto-sync interval: manual, 5m, 15m, 30m, 60m")
	f.StringVar(&connectFlags.conflict, "conflict", string(domain.ResolveRemote), "preferred conflict resolution: local, remote, newest")
	f.BoolVar(&connectFlags.autoSync, "auto-sync", false, "sync on the interval while watching")

	cf := createRepoCmd.Flags()
	cf.BoolVar(&createRepoFlags.private, "private", true, "create a private repository")
	cf.StringVar(&createRepoFlags.token, "token", "", "GitHub token (default $GITBOX_TOKEN)")
	cf.StringVar(&createRepoFlags.apiURL, "api-url", "", "GitHub API root (default "+github.DefaultBaseURL+")")
	cf.BoolVar(&createRepoFlags.connect, "connect", false, "connect to the new repository")

	rootCmd.AddCommand(connectCmd, disconnectCmd, branchCmd, createRepoCmd)
}
