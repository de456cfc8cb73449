package main

import (
	"os"

	"github.com/qabox/qabox/cmd/qaboxctl/cmd"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "qaboxctl",
		Short:        "Operator tools for qabox",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.HashPasswordCmd())
	rootCmd.AddCommand(cmd.BackupCmd())
	rootCmd.AddCommand(cmd.CleanupUploadsCmd())
	rootCmd.AddCommand(cmd.MigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
