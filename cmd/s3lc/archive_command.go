package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/eunmann/s3-lifecycle/pkg/archiver"
	"github.com/eunmann/s3-lifecycle/pkg/catalog"
	"github.com/eunmann/s3-lifecycle/pkg/logging"
	"github.com/eunmann/s3-lifecycle/pkg/manifest"
	"github.com/eunmann/s3-lifecycle/pkg/runner"
	"github.com/eunmann/s3-lifecycle/pkg/stages"
)

func newArchiveCommand(app *appContext) *cobra.Command {
	var (
		limit       int
		dryRun      bool
		withDelete  bool
		deepArchive bool
		workers     int
		s3tarBinary string
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Consolidate eligible groups into tar archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireBucket(); err != nil {
				return err
			}

			ctx, cancel := app.runContext()
			defer cancel()

			store, err := app.openCatalog()
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := app.s3client(ctx)
			if err != nil {
				return err
			}

			manifests, err := manifest.NewWriter(app.cfg.Paths.ManifestDir)
			if err != nil {
				return err
			}

			stage := &stages.ArchiveStage{
				Store:   store,
				Objects: client,
				Archiver: &archiver.S3Tar{
					Binary:      s3tarBinary,
					Region:      app.cfg.AWS.Region,
					Profile:     app.cfg.AWS.Profile,
					DeepArchive: deepArchive || app.cfg.Rules.DeepArchive,
				},
				Manifests: manifests,
				Bucket:    app.cfg.AWS.Bucket,
				DryRun:    dryRun,
			}

			groups, err := store.EligibleGroups(ctx, limit)
			if err != nil {
				return err
			}

			if workers == 0 {
				workers = app.cfg.Run.Workers
			}
			pool := &runner.Pool{Workers: workers, Phase: "archive"}

			start := time.Now()
			summary, err := pool.Run(ctx, stage, destinations(groups))
			if err != nil {
				return err
			}
			logSummary("archive", summary, time.Since(start))

			if !withDelete {
				return nil
			}

			deleteStage := &stages.DeleteStage{
				Store:   store,
				Objects: client,
				Bucket:  app.cfg.AWS.Bucket,
				DryRun:  dryRun,
			}
			deletable, err := store.DeletableGroups(ctx, limit)
			if err != nil {
				return err
			}

			pool = &runner.Pool{Workers: workers, Phase: "delete"}
			start = time.Now()
			summary, err = pool.Run(ctx, deleteStage, destinations(deletable))
			if err != nil {
				return err
			}
			logSummary("delete", summary, time.Since(start))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "cap on groups per invocation (0 = no cap)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log intent without touching the store")
	cmd.Flags().BoolVar(&withDelete, "delete", false, "delete originals after archiving")
	cmd.Flags().BoolVar(&deepArchive, "deep-archive", false, "write archives to the deep archive storage class")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent groups (default from config)")
	cmd.Flags().StringVar(&s3tarBinary, "s3tar", "", "s3tar binary path (default: from PATH)")

	return cmd
}

func destinations(groups []catalog.GroupSummary) []string {
	dests := make([]string, len(groups))
	for i, g := range groups {
		dests[i] = g.Destination
	}
	return dests
}

func logSummary(phase string, summary *runner.Summary, elapsed time.Duration) {
	log := logging.WithPhase(phase)
	for _, result := range summary.Results {
		if result.Outcome == stages.Failed {
			log.Error().
				Str("group", result.Destination).
				Err(result.Err).
				Msg("group failed")
		}
	}
	logging.PhaseComplete(*logging.L(), phase, elapsed).
		Int("groups", summary.Total()).
		Int("succeeded", summary.Succeeded).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Log(phase + " finished")
}
