// Package cli wires the service's subcommands.
package cli

import "github.com/spf13/cobra"

func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "monocle",
		Short: "Cron monitor check-in service",
		Long: `monocle accepts check-ins from scheduled jobs, tracks whether each
monitor is healthy and records missed check-ins for jobs that go quiet.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(MigrateCmd())
	rootCmd.AddCommand(SweepCmd())
	rootCmd.AddCommand(MonitorsCmd())

	return rootCmd
}
