// Package runner fans destination groups out to a stage across a bounded
// worker pool. One group's failure never stops the others; failures are
// collected and summarized instead.
package runner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/s3-lifecycle/internal/logctx"
	"github.com/eunmann/s3-lifecycle/pkg/logging"
	"github.com/eunmann/s3-lifecycle/pkg/stages"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// progressInterval is the number of finished groups between progress lines.
const progressInterval = 25

// Stage processes one destination group.
type Stage interface {
	Run(ctx context.Context, dest string) stages.Result
}

// Summary aggregates the results of one pool run.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int

	// Results holds every group's result in completion order.
	Results []stages.Result
}

// Total returns the number of groups processed.
func (s *Summary) Total() int {
	return s.Succeeded + s.Skipped + s.Failed
}

// Pool runs a stage over many groups concurrently.
type Pool struct {
	// Workers bounds concurrent groups. Zero means DefaultWorkers.
	Workers int

	// Phase names the run in progress logs.
	Phase string
}

func (p *Pool) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return DefaultWorkers
}

func (p *Pool) phase() string {
	if p.Phase != "" {
		return p.Phase
	}
	return "stage"
}

// Run processes every destination through the stage and returns the
// aggregate. Group failures land in the summary, not the error; the
// returned error is non-nil only when the context is cancelled.
func (p *Pool) Run(ctx context.Context, stage Stage, dests []string) (*Summary, error) {
	results := make(chan stages.Result, len(dests))
	tracker := logging.NewProgressTracker(p.phase(), int64(len(dests)), logctx.FromContext(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())

	for _, dest := range dests {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			workerCtx := logctx.WithStr(gctx, "group", dest)
			result := stage.Run(workerCtx, dest)

			switch result.Outcome {
			case stages.Succeeded:
				tracker.RecordCompletion()
			case stages.Skipped:
				tracker.RecordSkip()
			case stages.Failed:
				tracker.RecordFailure()
			}
			completed, skipped, failed, total := tracker.Progress()
			if done := completed + skipped + failed; done%progressInterval == 0 && done < total {
				tracker.LogProgress("groups processed")
			}

			results <- result
			return nil
		})
	}

	err := g.Wait()
	close(results)

	summary := &Summary{Results: make([]stages.Result, 0, len(dests))}
	for result := range results {
		summary.Results = append(summary.Results, result)
		switch result.Outcome {
		case stages.Succeeded:
			summary.Succeeded++
		case stages.Skipped:
			summary.Skipped++
		case stages.Failed:
			summary.Failed++
		}
	}

	if err != nil {
		return summary, err
	}
	return summary, nil
}
