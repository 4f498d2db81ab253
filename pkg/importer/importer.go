// Package importer feeds inventory rows through classification and
// eligibility checks into the catalog.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/eunmann/s3-lifecycle/internal/logctx"
	"github.com/eunmann/s3-lifecycle/pkg/catalog"
	"github.com/eunmann/s3-lifecycle/pkg/classify"
	"github.com/eunmann/s3-lifecycle/pkg/inventory"
	"github.com/eunmann/s3-lifecycle/pkg/logging"
)

// DefaultBatchSize is the number of rows inserted per transaction.
const DefaultBatchSize = 1000

// Stats summarizes one import run.
type Stats struct {
	// Read is the number of rows consumed from the source.
	Read int64

	// Inserted is the number of rows newly added to the catalog.
	Inserted int64

	// Duplicates is the number of rows the catalog already held.
	Duplicates int64

	// Eligible is the number of rows that passed every eligibility rule.
	Eligible int64

	// Bytes is the total size of the rows read.
	Bytes int64

	// Excluded counts rows per exclusion reason.
	Excluded map[classify.Reason]int64
}

// Importer catalogs inventory rows. Excluded rows are still cataloged,
// flagged ignored, so a re-import never reconsiders them; they are also
// recorded in the ledger when one is attached.
type Importer struct {
	Store     *catalog.Store
	Validator *classify.Validator

	// Ledger, when non-nil, receives one row per excluded path.
	Ledger *Ledger

	// Bucket is the bucket recorded for rows whose source carries none.
	Bucket string

	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
}

// Run consumes the source until EOF. Each row is normalized, classified,
// validated, and inserted with insert-or-ignore semantics, so running the
// same source twice leaves the catalog unchanged.
func (im *Importer) Run(ctx context.Context, src inventory.Reader) (Stats, error) {
	log := logctx.FromContext(ctx)

	stats := Stats{Excluded: make(map[classify.Reason]int64)}
	batchSize := im.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	validator := im.Validator
	if validator == nil {
		validator = classify.DefaultValidator()
	}

	batch := make([]catalog.Object, 0, batchSize)
	batchStart := time.Now()
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := im.Store.InsertBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		stats.Inserted += inserted
		stats.Duplicates += int64(len(batch)) - inserted
		logging.BatchComplete(log, "import", time.Since(batchStart)).
			Int("rows", len(batch)).
			Int64("inserted", inserted).
			Log("catalog batch committed")
		batch = batch[:0]
		batchStart = time.Now()
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read inventory row: %w", err)
		}
		stats.Read++
		stats.Bytes += row.Size

		if row.Key == "" {
			stats.Excluded[classify.ReasonColumnMissing]++
			if err := im.record(classify.ReasonColumnMissing, row); err != nil {
				return stats, err
			}
			continue
		}

		path := classify.Normalize(row.Key)
		cls := classify.Classify(path)
		verdict := validator.Validate(path, cls)

		obj := catalog.Object{
			Path:   path,
			Year:   cls.Year,
			Month:  cls.Month,
			Day:    cls.Day,
			Origin: cls.Origin,
			Bucket: im.bucketFor(row),
			Size:   row.Size,
			Date:   row.Date,
		}

		if verdict.Proceed {
			obj.Destination = classify.DestinationKey(cls.Origin, cls.Year, cls.Month, cls.Day)
			stats.Eligible++
		} else {
			obj.Ignored = true
			stats.Excluded[verdict.Reason]++
			if err := im.record(verdict.Reason, row); err != nil {
				return stats, err
			}
		}

		batch = append(batch, obj)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (im *Importer) bucketFor(row inventory.Row) string {
	if row.Bucket != "" {
		return row.Bucket
	}
	return im.Bucket
}

func (im *Importer) record(reason classify.Reason, row inventory.Row) error {
	if im.Ledger == nil {
		return nil
	}
	return im.Ledger.Record(reason, im.bucketFor(row), row.Key)
}
