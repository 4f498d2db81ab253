package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/eunmann/s3-lifecycle/pkg/logging"
	"github.com/eunmann/s3-lifecycle/pkg/scan"
)

func newScanCommand(app *appContext) *cobra.Command {
	var (
		prefix     string
		maxPaths   int
		clearState bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover and catalog objects from the live bucket listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireBucket(); err != nil {
				return err
			}

			ctx, cancel := app.runContext()
			defer cancel()

			checkpoints := app.checkpoints()
			if clearState {
				if err := checkpoints.Clear(); err != nil {
					return err
				}
			}

			client, err := app.s3client(ctx)
			if err != nil {
				return err
			}

			store, err := app.openCatalog()
			if err != nil {
				return err
			}
			defer store.Close()

			if maxPaths == 0 {
				maxPaths = app.cfg.Run.MaxPaths
			}
			scanner := &scan.Scanner{
				Lister:      client,
				Store:       store,
				Checkpoints: checkpoints,
				Validator:   app.validator(),
				Bucket:      app.cfg.AWS.Bucket,
				Prefix:      prefix,
				PageSize:    int32(app.cfg.Run.PageSize),
				MaxPaths:    maxPaths,
			}

			start := time.Now()
			stats, err := scanner.Run(ctx)
			if err != nil {
				return err
			}

			logging.PhaseComplete(*logging.L(), "scan", time.Since(start)).
				Int64("pages", stats.Pages).
				Count("objects", stats.Objects).
				Count("inserted", stats.Inserted).
				Int64("new_partitions", stats.NewPaths).
				Count("skipped_objects", stats.SkippedObjects).
				Log("scan finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "listing root prefix (default: raw data root)")
	cmd.Flags().IntVar(&maxPaths, "max-paths", 0, "cap on new partitions per run (default from config)")
	cmd.Flags().BoolVar(&clearState, "clear-state", false, "discard the scan checkpoint before starting")

	return cmd
}
