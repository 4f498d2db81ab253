// Package inventory provides readers for tabular object listings, the
// CSV and Parquet dumps that seed the catalog during an offline import.

package inventory

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Row represents a single object from an inventory listing.
// This is the unified representation used by both CSV and Parquet readers.
type Row struct {
	// Bucket is the bucket holding the object. May be empty if the
	// listing does not carry a bucket column.
	Bucket string

	// Key is the object key.
	Key string

	// Size is the object size in bytes.
	Size int64

	// Date is the listing's last-modified or snapshot date, verbatim.
	// May be empty if not included in the listing.
	Date string
}

// Reader is the unified interface for reading inventory listings.
// Implementations exist for both CSV and Parquet formats.
type Reader interface {
	// Next returns the next inventory row.
	// Returns io.EOF when all rows have been read.
	Next() (Row, error)

	// Close releases resources associated with the reader.
	Close() error
}

// CSVConfig configures column indices for the CSV reader.
// Any index set to -1 marks the column as absent.
type CSVConfig struct {
	// BucketCol is the column index for the bucket (-1 if not available).
	BucketCol int

	// KeyCol is the column index for the object key (required).
	KeyCol int

	// SizeCol is the column index for the object size (required).
	SizeCol int

	// DateCol is the column index for the listing date (-1 if not available).
	DateCol int
}

// DefaultCSVConfig is the column layout written by the export job:
// bucket, key, size, date.
func DefaultCSVConfig() CSVConfig {
	return CSVConfig{BucketCol: 0, KeyCol: 1, SizeCol: 2, DateCol: 3}
}

// csvReader reads inventory records from CSV streams.
type csvReader struct {
	csvReader *csv.Reader
	bucketCol int
	keyCol    int
	sizeCol   int
	dateCol   int
	closers   []io.Closer
}

// NewCSVReader creates a new CSV inventory reader from an io.Reader.
// The reader should provide the raw CSV data (already decompressed if needed).
// Use NewCSVReaderFromStream for automatic gzip handling.
func NewCSVReader(r io.Reader, cfg CSVConfig) Reader {
	csvr := csv.NewReader(r)
	csvr.ReuseRecord = true
	csvr.FieldsPerRecord = -1 // Variable field count
	csvr.LazyQuotes = true    // Handle malformed quotes

	return &csvReader{
		csvReader: csvr,
		bucketCol: cfg.BucketCol,
		keyCol:    cfg.KeyCol,
		sizeCol:   cfg.SizeCol,
		dateCol:   cfg.DateCol,
	}
}

// NewCSVReaderFromStream creates a CSV inventory reader from a stream.
// It handles gzip decompression based on the name's extension.
func NewCSVReaderFromStream(r io.ReadCloser, name string, cfg CSVConfig) (Reader, error) {
	var reader io.Reader = r
	closers := []io.Closer{r}

	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		gzr, err := gzip.NewReader(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		closers = append(closers, gzr)
		reader = gzr
	}

	csvr := csv.NewReader(reader)
	csvr.ReuseRecord = true
	csvr.FieldsPerRecord = -1
	csvr.LazyQuotes = true

	return &csvReader{
		csvReader: csvr,
		bucketCol: cfg.BucketCol,
		keyCol:    cfg.KeyCol,
		sizeCol:   cfg.SizeCol,
		dateCol:   cfg.DateCol,
		closers:   closers,
	}, nil
}

// Next returns the next inventory row.
func (r *csvReader) Next() (Row, error) {
	for {
		fields, err := r.csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Row{}, io.EOF
			}
			return Row{}, fmt.Errorf("read CSV row: %w", err)
		}

		// Skip rows with insufficient columns
		if len(fields) <= r.keyCol || len(fields) <= r.sizeCol {
			continue
		}

		key := fields[r.keyCol]
		if key == "" {
			continue
		}

		sizeStr := strings.TrimSpace(fields[r.sizeCol])
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			// Treat invalid size as 0 (could be empty or malformed)
			size = 0
		}

		row := Row{
			Key:  key,
			Size: size,
		}

		if r.bucketCol >= 0 && len(fields) > r.bucketCol {
			row.Bucket = fields[r.bucketCol]
		}
		if r.dateCol >= 0 && len(fields) > r.dateCol {
			row.Date = fields[r.dateCol]
		}

		return row, nil
	}
}

// Close releases resources.
func (r *csvReader) Close() error {
	var firstErr error
	// Close in reverse order (gzip reader before underlying stream)
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
