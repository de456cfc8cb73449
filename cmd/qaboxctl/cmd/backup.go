package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/qabox/qabox/internal/app"
	"github.com/spf13/cobra"
)

func BackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Database snapshot commands",
	}

	cmd.AddCommand(backupNowCmd())
	cmd.AddCommand(backupListCmd())
	return cmd
}

func backupNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Take a snapshot immediately, even if nothing changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if a.BackupManager == nil {
					return errors.New("backups are only available for SQLite databases")
				}

				path, err := a.BackupManager.Snapshot(cmd.Context(), true)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
}

func backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List retained snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if a.BackupManager == nil {
					return errors.New("backups are only available for SQLite databases")
				}

				backups, err := a.BackupManager.List()
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
				for _, b := range backups {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Name, b.Size, b.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}
