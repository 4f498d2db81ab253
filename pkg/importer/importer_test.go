package importer

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/s3-lifecycle/internal/logctx"
	"github.com/eunmann/s3-lifecycle/pkg/catalog"
	"github.com/eunmann/s3-lifecycle/pkg/classify"
	"github.com/eunmann/s3-lifecycle/pkg/inventory"
)

// sliceSource is an inventory.Reader backed by a fixed set of rows.
type sliceSource struct {
	rows []inventory.Row
	idx  int
}

func (s *sliceSource) Next() (inventory.Row, error) {
	if s.idx >= len(s.rows) {
		return inventory.Row{}, io.EOF
	}
	row := s.rows[s.idx]
	s.idx++
	return row, nil
}

func (s *sliceSource) Close() error { return nil }

func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// fixedClock freezes eligibility decisions at 2025-01-01.
func fixedClock() time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
}

func testRows() []inventory.Row {
	return []inventory.Row{
		// Eligible: old partition, day != 1.
		{Bucket: "data", Key: "raw/acme/short/Contact/year=2024/month=1/day=15/a.csv", Size: 100, Date: "2024-01-15"},
		// Eligible, percent-escaped partition separators.
		{Bucket: "data", Key: "raw/acme/short/Contact/year%3D2024/month%3D1/day%3D15/b.csv", Size: 200, Date: "2024-01-15"},
		// Excluded: first day of month.
		{Bucket: "data", Key: "raw/acme/short/Contact/year=2024/month=2/day=1/c.csv", Size: 300, Date: "2024-02-01"},
		// Excluded: too recent relative to the fixed clock.
		{Bucket: "data", Key: "raw/acme/short/Contact/year=2024/month=12/day=20/d.csv", Size: 400, Date: "2024-12-20"},
		// Excluded: no raw root.
		{Bucket: "data", Key: "processed/acme/year=2024/month=1/day=15/e.csv", Size: 500, Date: "2024-01-15"},
		// Excluded: no date partition.
		{Bucket: "data", Key: "raw/acme/short/Contact/readme.txt", Size: 600, Date: "2024-01-15"},
	}
}

func newTestImporter(t *testing.T, store *catalog.Store) *Importer {
	t.Helper()
	return &Importer{
		Store:     store,
		Validator: &classify.Validator{MinAgeDays: 90, Now: fixedClock},
		Bucket:    "fallback",
		BatchSize: 2,
	}
}

func TestImportClassifiesAndCatalogs(t *testing.T) {
	store := openTestStore(t)
	im := newTestImporter(t, store)
	ctx := context.Background()

	stats, err := im.Run(ctx, &sliceSource{rows: testRows()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.Read != 6 {
		t.Errorf("Read = %d, want 6", stats.Read)
	}
	if stats.Inserted != 6 {
		t.Errorf("Inserted = %d, want 6", stats.Inserted)
	}
	if stats.Eligible != 2 {
		t.Errorf("Eligible = %d, want 2", stats.Eligible)
	}
	if stats.Bytes != 2100 {
		t.Errorf("Bytes = %d, want 2100", stats.Bytes)
	}
	if stats.Excluded[classify.ReasonFirstOfMonth] != 1 {
		t.Errorf("first_day_of_month = %d, want 1", stats.Excluded[classify.ReasonFirstOfMonth])
	}
	if stats.Excluded[classify.ReasonTooRecent] != 1 {
		t.Errorf("too_recent = %d, want 1", stats.Excluded[classify.ReasonTooRecent])
	}
	if stats.Excluded[classify.ReasonNotRaw] != 1 {
		t.Errorf("not_a_raw_path = %d, want 1", stats.Excluded[classify.ReasonNotRaw])
	}
	if stats.Excluded[classify.ReasonInvalidPath] != 1 {
		t.Errorf("invalid_path = %d, want 1", stats.Excluded[classify.ReasonInvalidPath])
	}

	// Escaped separators are normalized before cataloging.
	obj, err := store.GetByPath(ctx, "raw/acme/short/Contact/year=2024/month=1/day=15/b.csv")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if obj.Destination != "archive/acme/short/Contact/2024-1-15.tar" {
		t.Errorf("Destination = %q", obj.Destination)
	}
	if obj.Ignored {
		t.Error("eligible row flagged ignored")
	}

	// Excluded rows are cataloged with the ignored flag set.
	obj, err = store.GetByPath(ctx, "raw/acme/short/Contact/year=2024/month=2/day=1/c.csv")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if !obj.Ignored {
		t.Error("first-of-month row not flagged ignored")
	}
	if obj.Destination != "" {
		t.Errorf("ignored row has destination %q", obj.Destination)
	}
}

func TestImportIdempotent(t *testing.T) {
	store := openTestStore(t)
	im := newTestImporter(t, store)
	ctx := context.Background()

	first, err := im.Run(ctx, &sliceSource{rows: testRows()})
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	second, err := im.Run(ctx, &sliceSource{rows: testRows()})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if second.Inserted != 0 {
		t.Errorf("second run Inserted = %d, want 0", second.Inserted)
	}
	if second.Duplicates != first.Inserted {
		t.Errorf("second run Duplicates = %d, want %d", second.Duplicates, first.Inserted)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != first.Inserted {
		t.Errorf("catalog rows = %d, want %d", count, first.Inserted)
	}
}

func TestImportWritesLedger(t *testing.T) {
	store := openTestStore(t)
	dir := t.TempDir()

	ledger, err := NewLedger(dir)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}

	im := newTestImporter(t, store)
	im.Ledger = ledger

	if _, err := im.Run(context.Background(), &sliceSource{rows: testRows()}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := ledger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "excluded_too_recent.csv"))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	want := "data,raw/acme/short/Contact/year=2024/month=12/day=20/d.csv\n"
	if string(content) != want {
		t.Errorf("ledger content = %q, want %q", content, want)
	}

	// No file for reasons that never fired.
	if _, err := os.Stat(filepath.Join(dir, "excluded_path_column_missing.csv")); !os.IsNotExist(err) {
		t.Error("unexpected ledger file for unused reason")
	}
}

func TestImportFallbackBucket(t *testing.T) {
	store := openTestStore(t)
	im := newTestImporter(t, store)
	ctx := context.Background()

	rows := []inventory.Row{
		{Key: "raw/acme/short/Contact/year=2024/month=1/day=15/a.csv", Size: 1, Date: "2024-01-15"},
	}
	if _, err := im.Run(ctx, &sliceSource{rows: rows}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	obj, err := store.GetByPath(ctx, "raw/acme/short/Contact/year=2024/month=1/day=15/a.csv")
	if err != nil {
		t.Fatalf("GetByPath failed: %v", err)
	}
	if obj.Bucket != "fallback" {
		t.Errorf("Bucket = %q, want fallback", obj.Bucket)
	}
}

func TestImportLogsBatchCommits(t *testing.T) {
	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), zerolog.New(&buf))

	store := openTestStore(t)
	im := newTestImporter(t, store)

	if _, err := im.Run(ctx, &sliceSource{rows: testRows()}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Six rows at batch size 2 commit three batches.
	logs := buf.String()
	if got := strings.Count(logs, `"event":"batch_completed"`); got != 3 {
		t.Errorf("batch_completed lines = %d, want 3:\n%s", got, logs)
	}
	if !strings.Contains(logs, `"phase":"import"`) {
		t.Errorf("batch log missing phase:\n%s", logs)
	}
}
