package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eunmann/s3-lifecycle/pkg/importer"
	"github.com/eunmann/s3-lifecycle/pkg/inventory"
	"github.com/eunmann/s3-lifecycle/pkg/logging"
)

func newImportCommand(app *appContext) *cobra.Command {
	var (
		file      string
		format    string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Catalog objects from an inventory listing file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.runContext()
			defer cancel()

			src, err := openInventory(ctx, app, file, format)
			if err != nil {
				return err
			}
			defer src.Close()

			store, err := app.openCatalog()
			if err != nil {
				return err
			}
			defer store.Close()

			ledger, err := importer.NewLedger(app.cfg.Paths.LedgerDir)
			if err != nil {
				return err
			}
			defer ledger.Close()

			im := &importer.Importer{
				Store:     store,
				Validator: app.validator(),
				Ledger:    ledger,
				Bucket:    app.cfg.AWS.Bucket,
				BatchSize: batchSize,
			}

			start := time.Now()
			stats, err := im.Run(ctx, src)
			if err != nil {
				return err
			}

			event := logging.PhaseComplete(*logging.L(), "import", time.Since(start)).
				Count("rows_read", stats.Read).
				Bytes("bytes_read", stats.Bytes).
				Count("inserted", stats.Inserted).
				Count("duplicates", stats.Duplicates).
				Count("eligible", stats.Eligible)
			for reason, n := range stats.Excluded {
				event.Int64("excluded_"+string(reason), n)
			}
			event.Log("import finished")
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "inventory listing: local file or s3:// URI (.csv, .csv.gz, or .parquet)")
	cmd.Flags().StringVar(&format, "format", "", "listing format: csv or parquet (default: by extension)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per catalog transaction (default from config)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// openInventory builds the reader matching the source's format. Sources
// may be local files or s3:// URIs.
func openInventory(ctx context.Context, app *appContext, path, format string) (inventory.Reader, error) {
	if format == "" {
		switch {
		case strings.HasSuffix(path, ".parquet"):
			format = "parquet"
		default:
			format = "csv"
		}
	}

	stream, err := openInventoryStream(ctx, app, path)
	if err != nil {
		return nil, err
	}

	switch format {
	case "csv":
		return inventory.NewCSVReaderFromStream(stream, path, inventory.DefaultCSVConfig())
	case "parquet":
		return inventory.NewParquetReaderFromStream(stream)
	default:
		stream.Close()
		return nil, fmt.Errorf("unknown inventory format %q", format)
	}
}

func openInventoryStream(ctx context.Context, app *appContext, path string) (io.ReadCloser, error) {
	if bucket, key, ok := strings.Cut(strings.TrimPrefix(path, "s3://"), "/"); ok && strings.HasPrefix(path, "s3://") {
		client, err := app.s3client(ctx)
		if err != nil {
			return nil, err
		}
		return client.Get(ctx, bucket, key)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open inventory: %w", err)
	}
	return f, nil
}
