package importer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eunmann/s3-lifecycle/pkg/classify"
)

// Ledger records excluded paths into one CSV file per exclusion reason.
// Files are opened lazily on first use and flushed on Close. The ledger
// is not safe for concurrent use; the import loop is the single writer.
type Ledger struct {
	dir   string
	files map[classify.Reason]*ledgerFile
}

type ledgerFile struct {
	f *os.File
	w *csv.Writer
}

// NewLedger creates a ledger rooted at dir, creating the directory if needed.
func NewLedger(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &Ledger{
		dir:   dir,
		files: make(map[classify.Reason]*ledgerFile),
	}, nil
}

// Path returns the file that records a reason's exclusions.
func (l *Ledger) Path(reason classify.Reason) string {
	return filepath.Join(l.dir, "excluded_"+string(reason)+".csv")
}

// Record appends one excluded path to the reason's file.
func (l *Ledger) Record(reason classify.Reason, bucket, path string) error {
	lf, ok := l.files[reason]
	if !ok {
		f, err := os.OpenFile(l.Path(reason), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open ledger file for %s: %w", reason, err)
		}
		lf = &ledgerFile{f: f, w: csv.NewWriter(f)}
		l.files[reason] = lf
	}

	if err := lf.w.Write([]string{bucket, path}); err != nil {
		return fmt.Errorf("record exclusion: %w", err)
	}
	return nil
}

// Close flushes and closes every open file. It returns the first error
// encountered but always attempts to close everything.
func (l *Ledger) Close() error {
	var firstErr error
	for reason, lf := range l.files {
		lf.w.Flush()
		if err := lf.w.Error(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush ledger for %s: %w", reason, err)
		}
		if err := lf.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close ledger for %s: %w", reason, err)
		}
	}
	l.files = make(map[classify.Reason]*ledgerFile)
	return firstErr
}
