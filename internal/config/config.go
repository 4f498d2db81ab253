// Package config loads the TOML configuration file and supplies defaults
// for everything left unset.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// AWS contains object store client configuration.
type AWS struct {
	Region  string `toml:"region"`
	Profile string `toml:"profile"`
	Bucket  string `toml:"bucket"`
}

// Rules contains eligibility and storage rules.
type Rules struct {
	MinAgeDays        int  `toml:"min_age_days"`
	InclusiveBoundary bool `toml:"inclusive_boundary"`
	DeepArchive       bool `toml:"deep_archive"`
}

// Paths contains local file and directory configuration.
type Paths struct {
	DB          string `toml:"db"`
	StateDir    string `toml:"state_dir"`
	ManifestDir string `toml:"manifest_dir"`
	LedgerDir   string `toml:"ledger_dir"`
}

// Run contains concurrency and batching configuration.
type Run struct {
	Workers   int `toml:"workers"`
	BatchSize int `toml:"batch_size"`
	PageSize  int `toml:"page_size"`
	ChunkSize int `toml:"chunk_size"`
	MaxPaths  int `toml:"max_paths"`
}

// Config is the root configuration document.
type Config struct {
	AWS   AWS   `toml:"aws"`
	Rules Rules `toml:"rules"`
	Paths Paths `toml:"paths"`
	Run   Run   `toml:"run"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		AWS: AWS{
			Region: "us-east-1",
		},
		Rules: Rules{
			MinAgeDays: 90,
		},
		Paths: Paths{
			DB:          "lifecycle.db",
			StateDir:    "state",
			ManifestDir: "manifests",
			LedgerDir:   "ledgers",
		},
		Run: Run{
			Workers:   4,
			BatchSize: 1000,
			PageSize:  1000,
			ChunkSize: 1000,
		},
	}
}

// Load reads the config file at path, layered over the defaults. An empty
// path returns the defaults unchanged; a named but missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that would make a run misbehave.
func (c *Config) Validate() error {
	if c.AWS.Region == "" {
		return errors.New("config: aws.region must not be empty")
	}
	if c.Rules.MinAgeDays < 0 {
		return fmt.Errorf("config: rules.min_age_days must be >= 0, got %d", c.Rules.MinAgeDays)
	}
	if c.Run.Workers <= 0 {
		return fmt.Errorf("config: run.workers must be > 0, got %d", c.Run.Workers)
	}
	if c.Run.BatchSize <= 0 {
		return fmt.Errorf("config: run.batch_size must be > 0, got %d", c.Run.BatchSize)
	}
	if c.Run.PageSize <= 0 || c.Run.PageSize > 1000 {
		return fmt.Errorf("config: run.page_size must be in 1..1000, got %d", c.Run.PageSize)
	}
	if c.Run.ChunkSize <= 0 || c.Run.ChunkSize > 1000 {
		return fmt.Errorf("config: run.chunk_size must be in 1..1000, got %d", c.Run.ChunkSize)
	}
	if c.Run.MaxPaths < 0 {
		return fmt.Errorf("config: run.max_paths must be >= 0, got %d", c.Run.MaxPaths)
	}
	return nil
}
