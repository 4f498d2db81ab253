package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Rules.MinAgeDays != 90 {
		t.Errorf("MinAgeDays = %d, want 90", cfg.Rules.MinAgeDays)
	}
	if cfg.Run.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Run.Workers)
	}
	if cfg.Run.ChunkSize != 1000 {
		t.Errorf("ChunkSize = %d, want 1000", cfg.Run.ChunkSize)
	}
	if cfg.AWS.Region == "" {
		t.Error("default region empty")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[aws]
region = "eu-west-1"
profile = "prod"
bucket = "data-bucket"

[rules]
min_age_days = 30
inclusive_boundary = true

[run]
workers = 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AWS.Region != "eu-west-1" || cfg.AWS.Profile != "prod" || cfg.AWS.Bucket != "data-bucket" {
		t.Errorf("unexpected aws section %+v", cfg.AWS)
	}
	if cfg.Rules.MinAgeDays != 30 || !cfg.Rules.InclusiveBoundary {
		t.Errorf("unexpected rules section %+v", cfg.Rules)
	}
	if cfg.Run.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Run.Workers)
	}
	// Untouched sections keep their defaults.
	if cfg.Run.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want 1000", cfg.Run.BatchSize)
	}
	if cfg.Paths.DB != "lifecycle.db" {
		t.Errorf("DB = %q, want lifecycle.db", cfg.Paths.DB)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for named missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty region", func(c *Config) { c.AWS.Region = "" }, "aws.region"},
		{"negative min age", func(c *Config) { c.Rules.MinAgeDays = -1 }, "min_age_days"},
		{"zero workers", func(c *Config) { c.Run.Workers = 0 }, "workers"},
		{"oversized page", func(c *Config) { c.Run.PageSize = 1001 }, "page_size"},
		{"oversized chunk", func(c *Config) { c.Run.ChunkSize = 2000 }, "chunk_size"},
		{"negative max paths", func(c *Config) { c.Run.MaxPaths = -5 }, "max_paths"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
