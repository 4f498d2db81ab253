package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eunmann/s3-lifecycle/pkg/classify"
	"github.com/eunmann/s3-lifecycle/pkg/humanfmt"
)

func newStatusCommand(app *appContext) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog and group state counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.runContext()
			defer cancel()

			store, err := app.openCatalog()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "catalog: %s\n", store.Path())
			fmt.Fprintf(out, "objects: %d (%s)\n", stats.Objects, humanfmt.Bytes(stats.TotalSize))
			fmt.Fprintf(out, "groups:  %d\n", stats.Groups)
			fmt.Fprintf(out, "  pending:  %d\n", stats.PendingGroups)
			fmt.Fprintf(out, "  archived: %d\n", stats.ArchivedGroups)
			fmt.Fprintf(out, "  deleted:  %d\n", stats.DeletedGroups)
			fmt.Fprintf(out, "  ignored:  %d\n", stats.IgnoredGroups)

			if !remote {
				return nil
			}

			if err := app.requireBucket(); err != nil {
				return err
			}
			client, err := app.s3client(ctx)
			if err != nil {
				return err
			}
			prefixes, err := client.ListPrefixes(ctx, app.cfg.AWS.Bucket, classify.ArchiveRoot+"/")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "remote archive prefixes: %d\n", len(prefixes))
			for _, prefix := range prefixes {
				fmt.Fprintf(out, "  %s\n", prefix)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "also list archive prefixes present in the bucket")

	return cmd
}
