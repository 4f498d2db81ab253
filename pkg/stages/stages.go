// Package stages implements the per-group archive and delete state
// transitions. Each stage takes one destination group from its current
// catalog state to the next, is safe to re-run, and never deletes an
// original before the group's archive flag is durably set.
package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/eunmann/s3-lifecycle/internal/logctx"
	"github.com/eunmann/s3-lifecycle/pkg/archiver"
	"github.com/eunmann/s3-lifecycle/pkg/catalog"
	"github.com/eunmann/s3-lifecycle/pkg/manifest"
	"github.com/eunmann/s3-lifecycle/pkg/s3store"
)

// Outcome is a stage's verdict for one group.
type Outcome int

const (
	// Skipped means the stage had nothing to do for the group.
	Skipped Outcome = iota

	// Succeeded means the group reached the stage's target state.
	Succeeded

	// Failed means the attempt failed and may be retried later.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is one stage's report for one group.
type Result struct {
	Destination string
	Outcome     Outcome

	// Reason explains a skip, Err a failure. At most one is set.
	Reason string
	Err    error
}

// ObjectStore is the transport surface the stages need.
type ObjectStore interface {
	Exists(ctx context.Context, bucket, key string) (bool, error)
	DeleteBatch(ctx context.Context, bucket string, keys []string) (*s3store.BatchResult, error)
}

// ArchiveStage consolidates one group into its destination archive.
type ArchiveStage struct {
	Store     *catalog.Store
	Objects   ObjectStore
	Archiver  archiver.Archiver
	Manifests *manifest.Writer

	// Bucket holds both the originals and the archives.
	Bucket string

	// DryRun reports what would happen without touching anything.
	DryRun bool
}

// Run takes one group through the archive transition. Re-runs converge:
// already-archived groups and groups whose archive object already exists
// are settled without invoking the archive tool.
func (s *ArchiveStage) Run(ctx context.Context, dest string) Result {
	log := logctx.FromContext(ctx)

	group, err := s.Store.Group(ctx, dest)
	if err != nil {
		return fail(dest, fmt.Errorf("load group: %w", err))
	}
	if group == nil {
		return skip(dest, "unknown group")
	}
	if group.Ignored {
		return skip(dest, "group ignored")
	}
	if group.Archived {
		return skip(dest, "already archived")
	}

	rows, err := s.Store.ManifestRows(ctx, dest)
	if err != nil {
		return fail(dest, fmt.Errorf("load manifest rows: %w", err))
	}
	if len(rows) == 0 {
		// Nothing worth archiving. Retire the group so later runs stop
		// considering it.
		if s.DryRun {
			return skip(dest, "empty group (dry run)")
		}
		if err := s.Store.MarkIgnored(ctx, dest); err != nil {
			return fail(dest, fmt.Errorf("mark empty group ignored: %w", err))
		}
		return skip(dest, "empty group retired")
	}

	// A prior run may have crashed after the upload but before the flag
	// write. The archive object is the source of truth.
	exists, err := s.Objects.Exists(ctx, s.Bucket, dest)
	if err != nil {
		return fail(dest, fmt.Errorf("probe archive: %w", err))
	}
	if exists {
		log.Info().Str("destination", dest).Msg("archive already present, settling flags")
		if s.DryRun {
			return succeed(dest)
		}
		if err := s.Store.MarkArchived(ctx, dest); err != nil {
			return fail(dest, fmt.Errorf("mark archived: %w", err))
		}
		return succeed(dest)
	}

	if s.DryRun {
		log.Info().
			Str("destination", dest).
			Int("members", len(rows)).
			Msg("dry run: would archive group")
		return succeed(dest)
	}

	manifestPath, n, err := s.Manifests.Write(dest, rows)
	if err != nil {
		return fail(dest, fmt.Errorf("write manifest: %w", err))
	}
	defer func() {
		if err := s.Manifests.Remove(dest); err != nil {
			log.Warn().Err(err).Str("destination", dest).Msg("manifest cleanup failed")
		}
	}()

	log.Info().
		Str("destination", dest).
		Int("members", n).
		Msg("archiving group")

	err = s.Archiver.Archive(ctx, archiver.Request{
		Bucket:       s.Bucket,
		Destination:  dest,
		ManifestPath: manifestPath,
	})
	if err != nil {
		return fail(dest, fmt.Errorf("archive group: %w", err))
	}

	if err := s.Store.MarkArchived(ctx, dest); err != nil {
		return fail(dest, fmt.Errorf("mark archived: %w", err))
	}
	return succeed(dest)
}

// DeleteStage removes a group's originals once the archive flag is set.
type DeleteStage struct {
	Store   *catalog.Store
	Objects ObjectStore

	Bucket string
	DryRun bool
}

// Run deletes one archived group's originals in batches bounded by the
// transport's batch cap. Any per-key failure leaves the group's deleted
// flag unset so a later run retries the whole group.
func (s *DeleteStage) Run(ctx context.Context, dest string) Result {
	log := logctx.FromContext(ctx)

	group, err := s.Store.Group(ctx, dest)
	if err != nil {
		return fail(dest, fmt.Errorf("load group: %w", err))
	}
	if group == nil {
		return skip(dest, "unknown group")
	}
	if group.Ignored {
		return skip(dest, "group ignored")
	}
	if group.Deleted {
		return skip(dest, "already deleted")
	}
	if !group.Archived {
		return skip(dest, "not archived yet")
	}

	keys, err := s.Store.MemberKeys(ctx, dest)
	if err != nil {
		return fail(dest, fmt.Errorf("load member keys: %w", err))
	}

	if s.DryRun {
		log.Info().
			Str("destination", dest).
			Int("keys", len(keys)).
			Msg("dry run: would delete originals")
		return succeed(dest)
	}

	for start := 0; start < len(keys); start += s3store.MaxDeleteBatch {
		end := min(start+s3store.MaxDeleteBatch, len(keys))

		result, err := s.Objects.DeleteBatch(ctx, s.Bucket, keys[start:end])
		if err != nil {
			return fail(dest, fmt.Errorf("delete batch: %w", err))
		}
		if len(result.Errors) > 0 {
			first := result.Errors[0]
			return fail(dest, fmt.Errorf("delete batch: %d keys failed, first %s: %s",
				len(result.Errors), first.Key, first.Message))
		}
	}

	if err := s.Store.MarkDeleted(ctx, dest); err != nil {
		if errors.Is(err, catalog.ErrNotArchived) {
			return fail(dest, err)
		}
		return fail(dest, fmt.Errorf("mark deleted: %w", err))
	}

	log.Info().
		Str("destination", dest).
		Int("keys", len(keys)).
		Msg("originals deleted")
	return succeed(dest)
}

func skip(dest, reason string) Result {
	return Result{Destination: dest, Outcome: Skipped, Reason: reason}
}

func succeed(dest string) Result {
	return Result{Destination: dest, Outcome: Succeeded}
}

func fail(dest string, err error) Result {
	return Result{Destination: dest, Outcome: Failed, Err: err}
}
