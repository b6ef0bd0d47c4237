package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Gitbox/internal/domain"
	"github.com/Ning0612/Gitbox/internal/progress"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Print the working-copy tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, "ls")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireConnected(); err != nil {
			return err
		}
		printTree(cmd.OutOrStdout(), a.engine().Files(), 0)
		return nil
	},
}

func printTree(w io.Writer, items []domain.FileItem, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, item := range items {
		if item.IsFolder() {
			fmt.Fprintf(w, "%s%s/\n", indent, item.Name)
			printTree(w, item.Children, depth+1)
			continue
		}
		fmt.Fprintf(w, "%s%s\n", indent, item.Name)
	}
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a working-copy file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, "cat")
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.engine().ReadFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var putCmd = &cobra.Command{
	Use:   "put <path> [source]",
	Short: "Write a working-copy file from a local file or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 2 {
			data, err = os.ReadFile(args[1])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		a, err := openApp(cmd, "put")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireConnected(); err != nil {
			return err
		}
		if err := a.engine().WriteFile(cmd.Context(), args[0], data); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (%s)\n", args[0], progress.FormatBytes(int64(len(data))))
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a working-copy file or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, "rm")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireConnected(); err != nil {
			return err
		}
		return a.engine().DeleteFile(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(lsCmd, catCmd, putCmd, rmCmd)
}
