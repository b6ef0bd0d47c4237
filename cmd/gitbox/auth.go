package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Gitbox/internal/adapter/gdrive"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize storage backends",
}

var authGDriveCmd = &cobra.Command{
	Use:   "gdrive",
	Short: "Authorize gitbox to store its working copy in Google Drive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		g := cfg.Storage.GDrive
		if g.ClientID == "" || g.ClientSecret == "" {
			return fmt.Errorf("storage.gdrive.client_id and client_secret must be set in the config")
		}

		auth := gdrive.NewAuthenticator(g.ClientID, g.ClientSecret, g.TokenPath)
		if _, err := auth.Authenticate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token stored at %s\n", auth.TokenPath())
		return nil
	},
}

func init() {
	authCmd.AddCommand(authGDriveCmd)
	rootCmd.AddCommand(authCmd)
}
