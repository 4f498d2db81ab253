package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/eunmann/s3-lifecycle/internal/config"
	"github.com/eunmann/s3-lifecycle/internal/logctx"
	"github.com/eunmann/s3-lifecycle/pkg/catalog"
	"github.com/eunmann/s3-lifecycle/pkg/checkpoint"
	"github.com/eunmann/s3-lifecycle/pkg/classify"
	"github.com/eunmann/s3-lifecycle/pkg/logging"
	"github.com/eunmann/s3-lifecycle/pkg/s3store"
)

// appContext carries the persistent flags and the loaded configuration
// shared by every subcommand.
type appContext struct {
	configPath string
	debug      bool
	pretty     bool
	bucket     string
	region     string
	profile    string
	dbPath     string

	cfg *config.Config
}

// setup loads the configuration, applies flag overrides, and initializes
// logging. Called once from the root command's persistent pre-run.
func (a *appContext) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.bucket != "" {
		cfg.AWS.Bucket = a.bucket
	}
	if a.region != "" {
		cfg.AWS.Region = a.region
	}
	if a.profile != "" {
		cfg.AWS.Profile = a.profile
	}
	if a.dbPath != "" {
		cfg.Paths.DB = a.dbPath
	}
	a.cfg = cfg

	logging.Init(a.debug, a.pretty)
	logctx.SetDefaultLogger(*logging.L())
	return nil
}

// runContext returns a context that carries the base logger and ends on
// SIGINT or SIGTERM, letting in-flight work flush its checkpoints.
func (a *appContext) runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return logctx.WithLogger(ctx, *logging.L()), cancel
}

func (a *appContext) requireBucket() error {
	if a.cfg.AWS.Bucket == "" {
		return errors.New("no bucket configured: set --bucket or [aws] bucket")
	}
	return nil
}

func (a *appContext) openCatalog() (*catalog.Store, error) {
	return catalog.Open(a.cfg.Paths.DB)
}

func (a *appContext) checkpoints() *checkpoint.Store {
	return checkpoint.NewStore(a.cfg.Paths.StateDir)
}

func (a *appContext) s3client(ctx context.Context) (*s3store.Client, error) {
	return s3store.NewClient(ctx, a.cfg.AWS.Region, a.cfg.AWS.Profile)
}

func (a *appContext) validator() *classify.Validator {
	return &classify.Validator{
		MinAgeDays:        a.cfg.Rules.MinAgeDays,
		InclusiveBoundary: a.cfg.Rules.InclusiveBoundary,
	}
}

func (a *appContext) ledgerPath(name string) string {
	return filepath.Join(a.cfg.Paths.LedgerDir, name)
}
