package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	app := &appContext{}

	rootCmd := &cobra.Command{
		Use:           "s3lc",
		Short:         "Object lifecycle coordinator: catalog, archive, and delete date-partitioned data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "configuration file path")
	flags.BoolVar(&app.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&app.pretty, "pretty", false, "human-readable console logging")
	flags.StringVar(&app.bucket, "bucket", "", "bucket holding the data (overrides config)")
	flags.StringVar(&app.region, "region", "", "object store region (overrides config)")
	flags.StringVar(&app.profile, "profile", "", "shared credentials profile (overrides config)")
	flags.StringVar(&app.dbPath, "db", "", "catalog database path (overrides config)")

	rootCmd.AddCommand(newImportCommand(app))
	rootCmd.AddCommand(newScanCommand(app))
	rootCmd.AddCommand(newArchiveCommand(app))
	rootCmd.AddCommand(newDeleteCommand(app))
	rootCmd.AddCommand(newBulkDeleteCommand(app))
	rootCmd.AddCommand(newStatusCommand(app))

	return rootCmd
}
