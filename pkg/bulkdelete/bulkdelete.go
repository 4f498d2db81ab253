// Package bulkdelete removes an arbitrary list of keys in fixed-size
// chunks, independent of the catalog. Chunks run on a bounded worker
// pool; the coordinator alone writes the per-key results ledger and the
// chunk checkpoint, committing them in chunk order so a restart skips
// exactly the chunks already recorded.
package bulkdelete

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/s3-lifecycle/internal/logctx"
	"github.com/eunmann/s3-lifecycle/pkg/checkpoint"
	"github.com/eunmann/s3-lifecycle/pkg/classify"
	"github.com/eunmann/s3-lifecycle/pkg/logging"
	"github.com/eunmann/s3-lifecycle/pkg/s3store"
)

// DefaultChunkSize matches the delete API's batch cap.
const DefaultChunkSize = s3store.MaxDeleteBatch

// BatchDeleter is the transport surface bulk deletion needs.
type BatchDeleter interface {
	DeleteBatch(ctx context.Context, bucket string, keys []string) (*s3store.BatchResult, error)
}

// Stats summarizes one bulk delete run.
type Stats struct {
	Chunks        int
	SkippedChunks int
	Deleted       int64
	Errors        int64
}

// Deleter runs chunked deletions with a results ledger and checkpoint.
type Deleter struct {
	Objects     BatchDeleter
	Checkpoints *checkpoint.Store

	// LedgerPath is the CSV file receiving one bucket,key,outcome row
	// per key. Appended across resumed runs.
	LedgerPath string

	// Workers bounds concurrent chunks. Zero means 4.
	Workers int

	// ChunkSize overrides DefaultChunkSize when positive. Values above
	// the API cap are rejected by the transport.
	ChunkSize int
}

func (d *Deleter) workers() int {
	if d.Workers > 0 {
		return d.Workers
	}
	return 4
}

func (d *Deleter) chunkSize() int {
	if d.ChunkSize > 0 {
		return d.ChunkSize
	}
	return DefaultChunkSize
}

type ledgerRow struct {
	bucket  string
	key     string
	outcome string
}

type chunkResult struct {
	index int
	rows  []ledgerRow
}

// Run deletes the keys, resuming past chunks the checkpoint records as
// complete. Keys are normalized before chunking so chunk boundaries are
// stable across runs. A chunk whose transport call fails outright is
// recorded with an error outcome per key and still counts as complete;
// retrying is the operator's call.
func (d *Deleter) Run(ctx context.Context, bucket string, keys []string) (Stats, error) {
	log := logctx.FromContext(ctx)
	stats := Stats{}

	state, err := d.Checkpoints.LoadBulk()
	if err != nil {
		return stats, fmt.Errorf("load bulk state: %w", err)
	}

	normalized := make([]string, len(keys))
	for i, key := range keys {
		normalized[i] = classify.Normalize(key)
	}

	size := d.chunkSize()
	var chunks [][]string
	for start := 0; start < len(normalized); start += size {
		chunks = append(chunks, normalized[start:min(start+size, len(normalized))])
	}
	stats.Chunks = len(chunks)

	ledgerFile, err := os.OpenFile(d.LedgerPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return stats, fmt.Errorf("open results ledger: %w", err)
	}
	defer ledgerFile.Close()
	ledger := csv.NewWriter(ledgerFile)

	results := make(chan chunkResult, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers())

	for i, chunk := range chunks {
		if i <= state.LastCompletedBatch {
			stats.SkippedChunks++
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunkCtx := logctx.WithInt(gctx, "chunk", i)
			logging.ChunkStarted(logctx.FromContext(chunkCtx), "bulk_delete", i, len(chunks))
			results <- chunkResult{index: i, rows: d.deleteChunk(chunkCtx, bucket, chunk)}
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(results)
	}()

	// Workers finish out of order; the ledger and checkpoint commit in
	// chunk order so the checkpoint never claims a chunk whose
	// predecessors are still unrecorded.
	pending := make(map[int][]ledgerRow)
	next := state.LastCompletedBatch + 1

	for result := range results {
		pending[result.index] = result.rows
		for {
			rows, ok := pending[next]
			if !ok {
				break
			}
			for _, row := range rows {
				if err := ledger.Write([]string{row.bucket, row.key, row.outcome}); err != nil {
					return stats, fmt.Errorf("write ledger row: %w", err)
				}
				if row.outcome == "deleted" {
					stats.Deleted++
				} else {
					stats.Errors++
				}
			}
			ledger.Flush()
			if err := ledger.Error(); err != nil {
				return stats, fmt.Errorf("flush ledger: %w", err)
			}

			state.LastCompletedBatch = next
			if err := d.Checkpoints.SaveBulk(state); err != nil {
				return stats, fmt.Errorf("save bulk state: %w", err)
			}
			delete(pending, next)
			next++
		}
	}

	if err := <-waitErr; err != nil {
		return stats, err
	}

	log.Info().
		Int("chunks", stats.Chunks).
		Int("skipped_chunks", stats.SkippedChunks).
		Int64("deleted", stats.Deleted).
		Int64("errors", stats.Errors).
		Msg("bulk delete finished")
	return stats, nil
}

func (d *Deleter) deleteChunk(ctx context.Context, bucket string, keys []string) []ledgerRow {
	log := logctx.FromContext(ctx)

	result, err := d.Objects.DeleteBatch(ctx, bucket, keys)
	if err != nil {
		log.Warn().Err(err).Int("keys", len(keys)).Msg("chunk delete failed")
		rows := make([]ledgerRow, len(keys))
		for i, key := range keys {
			rows[i] = ledgerRow{bucket: bucket, key: key, outcome: "error: " + err.Error()}
		}
		return rows
	}

	rows := make([]ledgerRow, 0, len(keys))
	for _, key := range result.Deleted {
		rows = append(rows, ledgerRow{bucket: bucket, key: key, outcome: "deleted"})
	}
	for _, keyErr := range result.Errors {
		rows = append(rows, ledgerRow{
			bucket:  bucket,
			key:     keyErr.Key,
			outcome: "error: " + keyErr.Message,
		})
	}
	return rows
}

// ReadKeys reads one key per line, trimming whitespace and skipping
// blank lines.
func ReadKeys(r io.Reader) ([]string, error) {
	var keys []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read key list: %w", err)
	}
	return keys, nil
}
