package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/eunmann/s3-lifecycle/pkg/bulkdelete"
	"github.com/eunmann/s3-lifecycle/pkg/fileutil"
	"github.com/eunmann/s3-lifecycle/pkg/logging"
)

func newBulkDeleteCommand(app *appContext) *cobra.Command {
	var (
		file       string
		chunkSize  int
		workers    int
		clearState bool
	)

	cmd := &cobra.Command{
		Use:   "bulk-delete",
		Short: "Delete an arbitrary key list in resumable chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireBucket(); err != nil {
				return err
			}

			ctx, cancel := app.runContext()
			defer cancel()

			if !fileutil.IsNonEmpty(file) {
				return fmt.Errorf("key list %s is missing or empty", file)
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open key list: %w", err)
			}
			keys, err := bulkdelete.ReadKeys(f)
			f.Close()
			if err != nil {
				return err
			}

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

			if err := os.MkdirAll(app.cfg.Paths.LedgerDir, 0o755); err != nil {
				return fmt.Errorf("create ledger dir: %w", err)
			}

			if chunkSize == 0 {
				chunkSize = app.cfg.Run.ChunkSize
			}
			if workers == 0 {
				workers = app.cfg.Run.Workers
			}
			deleter := &bulkdelete.Deleter{
				Objects:     client,
				Checkpoints: checkpoints,
				LedgerPath:  app.ledgerPath("bulk_delete_results.csv"),
				Workers:     workers,
				ChunkSize:   chunkSize,
			}

			start := time.Now()
			stats, err := deleter.Run(ctx, app.cfg.AWS.Bucket, keys)
			if err != nil {
				return err
			}

			logging.PhaseComplete(*logging.L(), "bulk_delete", time.Since(start)).
				Int("chunks", stats.Chunks).
				Int("skipped_chunks", stats.SkippedChunks).
				Count("deleted", stats.Deleted).
				Count("errors", stats.Errors).
				Log("bulk delete finished")
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one key per line")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "keys per delete chunk (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent chunks (default from config)")
	cmd.Flags().BoolVar(&clearState, "clear-state", false, "discard the bulk-delete checkpoint before starting")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
