// Package checkpoint persists durable cursors for resumable scans and bulk
// batch jobs. Records are JSON files written atomically (tmp+rename), read
// once at process start, and overwritten, never appended.
//
// Checkpoint files are a single-writer resource: only the coordinator's main
// control loop writes them. Workers report completion over channels and the
// loop persists state after the corresponding unit of work has finished,
// never before, so a crash can only cause safe re-processing.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eunmann/s3-lifecycle/pkg/fileutil"
)

// ScanState is the cursor for listing-based discovery.
type ScanState struct {
	// ProcessedPaths are day paths already handled by a previous run.
	ProcessedPaths []string `json:"processed_paths"`

	// LastPrefix is the root prefix the interrupted scan was walking.
	LastPrefix string `json:"last_prefix,omitempty"`

	// ContinuationToken resumes ListObjectsV2 pagination mid-scan.
	ContinuationToken string `json:"continuation_token,omitempty"`
}

// Processed reports whether a day path was already handled.
func (s *ScanState) Processed(path string) bool {
	for _, p := range s.ProcessedPaths {
		if p == path {
			return true
		}
	}
	return false
}

// MarkProcessed records a day path as handled. Duplicates are absorbed.
func (s *ScanState) MarkProcessed(path string) {
	if !s.Processed(path) {
		s.ProcessedPaths = append(s.ProcessedPaths, path)
	}
}

// BulkState is the cursor for bulk batch processing.
type BulkState struct {
	// LastCompletedBatch is the number of contiguously completed chunks
	// from the start of the input. -1 means none.
	LastCompletedBatch int `json:"last_completed_batch"`
}

// Store reads and writes checkpoint files under a state directory.
type Store struct {
	dir string
}

// NewStore creates a checkpoint store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

const (
	scanFile = "scan_state.json"
	bulkFile = "bulk_delete_state.json"
)

// LoadScan reads the discovery cursor. A missing file yields a fresh state,
// not an error.
func (s *Store) LoadScan() (*ScanState, error) {
	state := &ScanState{}
	if err := s.load(scanFile, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SaveScan persists the discovery cursor atomically.
func (s *Store) SaveScan(state *ScanState) error {
	return s.save(scanFile, state)
}

// LoadBulk reads the bulk-delete cursor. A missing file yields a fresh state
// with no completed batches.
func (s *Store) LoadBulk() (*BulkState, error) {
	state := &BulkState{LastCompletedBatch: -1}
	if err := s.load(bulkFile, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SaveBulk persists the bulk-delete cursor atomically.
func (s *Store) SaveBulk(state *BulkState) error {
	return s.save(bulkFile, state)
}

// Clear discards all saved checkpoints (--clear-state).
func (s *Store) Clear() error {
	for _, name := range []string{scanFile, bulkFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove checkpoint %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) load(name string, into any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read checkpoint %s: %w", name, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse checkpoint %s: %w", name, err)
	}
	return nil
}

func (s *Store) save(name string, state any) error {
	path := filepath.Join(s.dir, name)
	return fileutil.WriteTmpThenMove(path, func(tmpPath string) error {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode checkpoint %s: %w", name, err)
		}
		if err := os.WriteFile(tmpPath, data, 0644); err != nil {
			return fmt.Errorf("write checkpoint %s: %w", name, err)
		}
		return nil
	})
}
