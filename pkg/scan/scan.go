// Package scan discovers archivable objects by walking the live bucket
// listing. Discovery is resumable: a checkpoint written after every page
// carries the continuation token and the day partitions already handled,
// so a crashed or capped run picks up where it stopped.
package scan

import (
	"context"
	"fmt"

	"github.com/eunmann/s3-lifecycle/internal/logctx"
	"github.com/eunmann/s3-lifecycle/pkg/catalog"
	"github.com/eunmann/s3-lifecycle/pkg/checkpoint"
	"github.com/eunmann/s3-lifecycle/pkg/classify"
	"github.com/eunmann/s3-lifecycle/pkg/s3store"
)

// DefaultPageSize matches the listing API's maximum page size.
const DefaultPageSize = 1000

// Lister is the listing surface the scanner needs.
type Lister interface {
	ListPage(ctx context.Context, bucket, prefix, token string, pageSize int32) (*s3store.Page, error)
}

// Stats summarizes one scan run.
type Stats struct {
	// Pages is the number of listing pages consumed.
	Pages int64

	// Objects is the number of listed objects examined.
	Objects int64

	// SkippedObjects counts objects under partitions an earlier run
	// already handled.
	SkippedObjects int64

	// Inserted is the number of rows newly added to the catalog.
	Inserted int64

	// NewPaths is the number of day partitions first seen this run.
	NewPaths int64

	// CapReached reports whether the run stopped at the MaxPaths cap.
	CapReached bool
}

// Scanner walks the bucket listing and catalogs what it finds.
type Scanner struct {
	Lister      Lister
	Store       *catalog.Store
	Checkpoints *checkpoint.Store
	Validator   *classify.Validator

	// Bucket is the bucket to walk.
	Bucket string

	// Prefix is the listing root. Empty means the raw data root.
	Prefix string

	// PageSize overrides DefaultPageSize when positive.
	PageSize int32

	// MaxPaths caps the number of new day partitions handled per run.
	// Zero means unlimited.
	MaxPaths int
}

func (s *Scanner) prefix() string {
	if s.Prefix != "" {
		return s.Prefix
	}
	return classify.RawRoot + "/"
}

func (s *Scanner) pageSize() int32 {
	if s.PageSize > 0 {
		return s.PageSize
	}
	return DefaultPageSize
}

// Run walks the listing until it is exhausted or the MaxPaths cap fires.
// The checkpoint is saved once per page, after the page's rows are
// committed, so the scanner is the only checkpoint writer. When the cap
// fires mid-page the token is not advanced; the next run replays the
// page and the catalog's insert-or-ignore semantics absorb the overlap.
func (s *Scanner) Run(ctx context.Context) (Stats, error) {
	log := logctx.FromContext(ctx)

	stats := Stats{}
	state, err := s.Checkpoints.LoadScan()
	if err != nil {
		return stats, fmt.Errorf("load scan state: %w", err)
	}
	if state.ContinuationToken != "" {
		log.Info().
			Str("last_prefix", state.LastPrefix).
			Int("processed_paths", len(state.ProcessedPaths)).
			Msg("resuming scan from checkpoint")
	}

	validator := s.Validator
	if validator == nil {
		validator = classify.DefaultValidator()
	}

	// Day partitions first seen this run. Entries stay here until the
	// partition can no longer straddle a page boundary, at which point
	// they move into the checkpoint's processed set.
	runSeen := make(map[string]bool)
	newPaths := 0
	token := state.ContinuationToken
	state.LastPrefix = s.prefix()

	// pending is the partition that may straddle the current page
	// boundary. It moves into the processed set once a page ends on a
	// different partition.
	var pending string

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		page, err := s.Lister.ListPage(ctx, s.Bucket, s.prefix(), token, s.pageSize())
		if err != nil {
			return stats, fmt.Errorf("list page: %w", err)
		}
		stats.Pages++

		batch := make([]catalog.Object, 0, len(page.Entries))
		var pageDays []string
		var lastDay string
		capHit := false

		for _, entry := range page.Entries {
			stats.Objects++
			path := classify.Normalize(entry.Key)

			day, partitioned := classify.DayPath(path)
			if partitioned {
				if state.Processed(day) {
					stats.SkippedObjects++
					continue
				}
				if !runSeen[day] {
					if s.MaxPaths > 0 && newPaths >= s.MaxPaths {
						capHit = true
						break
					}
					runSeen[day] = true
					newPaths++
					pageDays = append(pageDays, day)
				}
				lastDay = day
			}

			batch = append(batch, s.toObject(path, entry, validator))
		}

		inserted, err := s.Store.InsertBatch(ctx, batch)
		if err != nil {
			return stats, fmt.Errorf("insert scanned batch: %w", err)
		}
		stats.Inserted += inserted

		if capHit {
			// The cap fires on the first entry of a new partition, so
			// lexicographic listing order guarantees every partition
			// taken so far is complete. Mark them processed, but do not
			// advance the token: the next run replays this page for the
			// partitions it could not take.
			for _, day := range pageDays {
				state.MarkProcessed(day)
			}
			if pending != "" {
				state.MarkProcessed(pending)
			}
			if lastDay != "" {
				state.MarkProcessed(lastDay)
			}
			stats.CapReached = true
			stats.NewPaths = int64(newPaths)
			if err := s.Checkpoints.SaveScan(state); err != nil {
				return stats, fmt.Errorf("save scan state: %w", err)
			}
			log.Info().
				Int("max_paths", s.MaxPaths).
				Msg("scan stopped at partition cap")
			return stats, nil
		}

		// The final entry's partition may continue onto the next page,
		// so it is not marked processed yet. Listing order is
		// lexicographic, so every other partition on this page is done.
		for _, day := range pageDays {
			if day == lastDay {
				continue
			}
			state.MarkProcessed(day)
		}
		if pending != "" && pending != lastDay {
			state.MarkProcessed(pending)
		}
		if page.NextToken == "" && lastDay != "" {
			state.MarkProcessed(lastDay)
		}
		pending = lastDay
		token = page.NextToken
		state.ContinuationToken = token

		if err := s.Checkpoints.SaveScan(state); err != nil {
			return stats, fmt.Errorf("save scan state: %w", err)
		}
		log.Debug().
			Int64("pages", stats.Pages).
			Int64("inserted", stats.Inserted).
			Msg("scan page committed")

		if token == "" {
			break
		}
	}

	stats.NewPaths = int64(newPaths)
	return stats, nil
}

func (s *Scanner) toObject(path string, entry s3store.Entry, validator *classify.Validator) catalog.Object {
	cls := classify.Classify(path)
	verdict := validator.Validate(path, cls)

	obj := catalog.Object{
		Path:   path,
		Year:   cls.Year,
		Month:  cls.Month,
		Day:    cls.Day,
		Origin: cls.Origin,
		Bucket: s.Bucket,
		Size:   entry.Size,
	}
	if !entry.LastModified.IsZero() {
		obj.Date = entry.LastModified.UTC().Format("2006-01-02")
	}

	if verdict.Proceed {
		obj.Destination = classify.DestinationKey(cls.Origin, cls.Year, cls.Month, cls.Day)
	} else {
		obj.Ignored = true
	}
	return obj
}
