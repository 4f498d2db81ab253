package checkpoint

import (
	"testing"
)

func TestLoadScanMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())

	state, err := store.LoadScan()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.ProcessedPaths) != 0 || state.ContinuationToken != "" {
		t.Errorf("fresh state not empty: %+v", state)
	}
}

func TestScanRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	state := &ScanState{
		LastPrefix:        "raw/acme/",
		ContinuationToken: "token-123",
	}
	state.MarkProcessed("acme/short/Contact/year=2024/month=1/day=2")
	state.MarkProcessed("acme/short/Contact/year=2024/month=1/day=2") // duplicate absorbed
	state.MarkProcessed("acme/short/Lead/year=2024/month=1/day=3")

	if err := store.SaveScan(state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.LoadScan()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.LastPrefix != "raw/acme/" || loaded.ContinuationToken != "token-123" {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.ProcessedPaths) != 2 {
		t.Errorf("processed paths = %d, want 2", len(loaded.ProcessedPaths))
	}
	if !loaded.Processed("acme/short/Contact/year=2024/month=1/day=2") {
		t.Error("processed path lost on round trip")
	}
	if loaded.Processed("acme/short/Other/year=2024/month=1/day=4") {
		t.Error("unknown path reported processed")
	}
}

func TestScanOverwrite(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.SaveScan(&ScanState{ContinuationToken: "first"}); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.SaveScan(&ScanState{ContinuationToken: "second"}); err != nil {
		t.Fatalf("save second: %v", err)
	}

	loaded, err := store.LoadScan()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ContinuationToken != "second" {
		t.Errorf("token = %q, want overwrite to second", loaded.ContinuationToken)
	}
}

func TestBulkRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	state, err := store.LoadBulk()
	if err != nil {
		t.Fatalf("load fresh: %v", err)
	}
	if state.LastCompletedBatch != -1 {
		t.Errorf("fresh LastCompletedBatch = %d, want -1", state.LastCompletedBatch)
	}

	state.LastCompletedBatch = 4
	if err := store.SaveBulk(state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.LoadBulk()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.LastCompletedBatch != 4 {
		t.Errorf("LastCompletedBatch = %d, want 4", loaded.LastCompletedBatch)
	}
}

func TestClear(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.SaveScan(&ScanState{ContinuationToken: "x"}); err != nil {
		t.Fatalf("save scan: %v", err)
	}
	if err := store.SaveBulk(&BulkState{LastCompletedBatch: 1}); err != nil {
		t.Fatalf("save bulk: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	scan, err := store.LoadScan()
	if err != nil {
		t.Fatalf("load scan: %v", err)
	}
	if scan.ContinuationToken != "" {
		t.Error("scan state survived clear")
	}
	bulk, err := store.LoadBulk()
	if err != nil {
		t.Fatalf("load bulk: %v", err)
	}
	if bulk.LastCompletedBatch != -1 {
		t.Error("bulk state survived clear")
	}

	// Clearing twice is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
