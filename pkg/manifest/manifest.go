// Package manifest materializes per-group archive manifests consumed by
// the external tar tool. A manifest is a CSV of bucket,key,size rows for
// every non-empty member of one destination group.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eunmann/s3-lifecycle/pkg/catalog"
	"github.com/eunmann/s3-lifecycle/pkg/fileutil"
)

// Writer materializes manifests under a working directory.
type Writer struct {
	dir string
}

// NewWriter creates a manifest writer rooted at dir, creating it if
// needed. Partial .tmp files left by a crashed run are swept out so they
// can never be handed to the archive tool.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	if err := fileutil.CleanupTmpFiles(dir); err != nil {
		return nil, fmt.Errorf("sweep manifest dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Path returns the manifest file path for a destination key. Destination
// keys contain slashes, so they are flattened into a single file name.
func (w *Writer) Path(destination string) string {
	name := strings.ReplaceAll(destination, "/", "_") + ".csv"
	return filepath.Join(w.dir, name)
}

// Write materializes the manifest for one group and returns its path
// along with the number of rows written. Rows are ordered by key so a
// retry produces a byte-identical file. The file appears atomically.
func (w *Writer) Write(destination string, rows []catalog.Object) (string, int, error) {
	outPath := w.Path(destination)

	err := fileutil.WriteTmpThenMove(outPath, func(tmpPath string) error {
		f, err := os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("create manifest: %w", err)
		}
		if err := writeRows(f, rows); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return "", 0, fmt.Errorf("write manifest %s: %w", outPath, err)
	}

	return outPath, len(rows), nil
}

func writeRows(dst io.Writer, rows []catalog.Object) error {
	cw := csv.NewWriter(dst)
	for _, row := range rows {
		if err := cw.Write([]string{row.Bucket, row.Path, strconv.FormatInt(row.Size, 10)}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Remove deletes the manifest for a destination. Missing files are not
// an error so cleanup after a failed attempt is unconditional.
func (w *Writer) Remove(destination string) error {
	path := w.Path(destination)
	if !fileutil.Exists(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove manifest: %w", err)
	}
	return nil
}
