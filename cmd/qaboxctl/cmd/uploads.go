package cmd

import (
	"fmt"

	"github.com/qabox/qabox/internal/app"
	"github.com/spf13/cobra"
)

func CleanupUploadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-uploads",
		Short: "Remove empty week folders from the upload directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				removed, err := a.UploadService.CleanupEmptyFolders()
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "removed %d empty folder(s)\n", removed)
				return nil
			})
		},
	}
}
