package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/eunmann/s3-lifecycle/pkg/logging"
	"github.com/eunmann/s3-lifecycle/pkg/runner"
	"github.com/eunmann/s3-lifecycle/pkg/stages"
)

func newDeleteCommand(app *appContext) *cobra.Command {
	var (
		limit   int
		dryRun  bool
		confirm bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the originals of archived groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireBucket(); err != nil {
				return err
			}

			ctx, cancel := app.runContext()
			defer cancel()

			// Deletion is opt-in. Without --delete the run only reports
			// what it would remove.
			if !confirm && !dryRun {
				logging.L().Info().Msg("no --delete flag given, reporting intent only")
			}

			store, err := app.openCatalog()
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := app.s3client(ctx)
			if err != nil {
				return err
			}

			stage := &stages.DeleteStage{
				Store:   store,
				Objects: client,
				Bucket:  app.cfg.AWS.Bucket,
				DryRun:  dryRun || !confirm,
			}

			groups, err := store.DeletableGroups(ctx, limit)
			if err != nil {
				return err
			}

			if workers == 0 {
				workers = app.cfg.Run.Workers
			}
			pool := &runner.Pool{Workers: workers, Phase: "delete"}

			start := time.Now()
			summary, err := pool.Run(ctx, stage, destinations(groups))
			if err != nil {
				return err
			}
			logSummary("delete", summary, time.Since(start))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "cap on groups per invocation (0 = no cap)")
	cmd.Flags().BoolVar(&confirm, "delete", false, "actually delete originals; without it the run reports intent only")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log intent without touching the store")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent groups (default from config)")

	return cmd
}
