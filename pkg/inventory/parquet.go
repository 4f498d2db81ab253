package inventory

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// parquetReader reads inventory records from Parquet files.
// It implements streaming by iterating through row groups.
type parquetReader struct {
	file     *parquet.File
	tempFile *os.File // Temp file for buffering (only if created by us)
	schema   *parquet.Schema

	bucketCol int // -1 if not available
	keyCol    int
	sizeCol   int
	dateCol   int // -1 if not available

	// Row group iteration state
	rowGroups    []parquet.RowGroup
	currentRGIdx int
	currentRows  parquet.Rows
	rowBuf       []parquet.Row
	bufIdx       int
	bufLen       int
}

// ParquetConfig configures column indices for the Parquet reader.
type ParquetConfig struct {
	// BucketCol is the column index for the bucket (-1 if not available).
	BucketCol int

	// KeyCol is the column index for the object key (required).
	KeyCol int

	// SizeCol is the column index for the object size (required).
	SizeCol int

	// DateCol is the column index for the listing date (-1 if not available).
	DateCol int
}

// NewParquetReader creates a Parquet inventory reader from an io.ReaderAt.
// Column indices are detected from the file schema.
func NewParquetReader(r io.ReaderAt, size int64) (Reader, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	cfg, err := detectParquetSchema(file.Schema())
	if err != nil {
		return nil, err
	}

	return newParquetReader(file, nil, cfg), nil
}

// NewParquetReaderFromStream creates a Parquet inventory reader from a stream.
// Since Parquet requires random access, this buffers the entire stream to a
// temp file that is removed on Close.
func NewParquetReaderFromStream(r io.ReadCloser) (Reader, error) {
	tempFile, err := os.CreateTemp("", "inventory-*.parquet")
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	written, err := io.Copy(tempFile, r)
	r.Close()
	if err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return nil, fmt.Errorf("buffer parquet data: %w", err)
	}

	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return nil, fmt.Errorf("seek temp file: %w", err)
	}

	file, err := parquet.OpenFile(tempFile, written)
	if err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	cfg, err := detectParquetSchema(file.Schema())
	if err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return nil, err
	}

	return newParquetReader(file, tempFile, cfg), nil
}

// detectParquetSchema detects column indices from the Parquet schema.
func detectParquetSchema(schema *parquet.Schema) (ParquetConfig, error) {
	cfg := ParquetConfig{
		BucketCol: -1,
		KeyCol:    -1,
		SizeCol:   -1,
		DateCol:   -1,
	}

	for i, field := range schema.Fields() {
		switch field.Name() {
		case "bucket":
			cfg.BucketCol = i
		case "key":
			cfg.KeyCol = i
		case "size":
			cfg.SizeCol = i
		case "date", "last_modified_date":
			cfg.DateCol = i
		}
	}

	if cfg.KeyCol < 0 {
		return cfg, errors.New("parquet schema missing 'key' column")
	}
	if cfg.SizeCol < 0 {
		return cfg, errors.New("parquet schema missing 'size' column")
	}

	return cfg, nil
}

func newParquetReader(file *parquet.File, tempFile *os.File, cfg ParquetConfig) *parquetReader {
	return &parquetReader{
		file:         file,
		tempFile:     tempFile,
		schema:       file.Schema(),
		bucketCol:    cfg.BucketCol,
		keyCol:       cfg.KeyCol,
		sizeCol:      cfg.SizeCol,
		dateCol:      cfg.DateCol,
		rowGroups:    file.RowGroups(),
		currentRGIdx: -1,
		rowBuf:       make([]parquet.Row, 1024), // Buffer 1024 rows at a time
	}
}

// Next returns the next inventory row.
func (r *parquetReader) Next() (Row, error) {
	for {
		// Check if we have buffered rows
		if r.bufIdx < r.bufLen {
			row := r.rowBuf[r.bufIdx]
			r.bufIdx++
			return r.toRow(row), nil
		}

		// Need to read more rows
		if r.currentRows != nil {
			n, err := r.currentRows.ReadRows(r.rowBuf)
			if n > 0 {
				r.bufIdx = 0
				r.bufLen = n
				continue // Process buffered rows
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return Row{}, fmt.Errorf("read parquet rows: %w", err)
			}
			// Current row group exhausted
			r.currentRows.Close()
			r.currentRows = nil
		}

		// Move to next row group
		r.currentRGIdx++
		if r.currentRGIdx >= len(r.rowGroups) {
			return Row{}, io.EOF
		}

		r.currentRows = r.rowGroups[r.currentRGIdx].Rows()
	}
}

// toRow converts a parquet.Row to an inventory Row.
func (r *parquetReader) toRow(row parquet.Row) Row {
	out := Row{}

	for _, val := range row {
		colIdx := val.Column()
		if val.IsNull() {
			continue
		}

		switch colIdx {
		case r.keyCol:
			out.Key = val.String()
		case r.sizeCol:
			out.Size = val.Int64()
		case r.bucketCol:
			if r.bucketCol >= 0 {
				out.Bucket = val.String()
			}
		case r.dateCol:
			if r.dateCol >= 0 {
				out.Date = val.String()
			}
		}
	}

	return out
}

// Close releases resources.
func (r *parquetReader) Close() error {
	if r.currentRows != nil {
		r.currentRows.Close()
	}

	// Clean up temp file if we created one
	if r.tempFile != nil {
		name := r.tempFile.Name()
		r.tempFile.Close()
		os.Remove(name)
	}

	return nil
}
