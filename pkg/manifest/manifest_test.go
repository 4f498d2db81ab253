package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eunmann/s3-lifecycle/pkg/catalog"
)

func TestWriteManifest(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	dest := "archive/acme/short/Contact/2024-1-15.tar"
	rows := []catalog.Object{
		{Bucket: "data-bucket", Path: "raw/acme/short/Contact/year=2024/month=1/day=15/a.csv", Size: 100},
		{Bucket: "data-bucket", Path: "raw/acme/short/Contact/year=2024/month=1/day=15/b.csv", Size: 200},
	}

	path, n, err := w.Write(dest, rows)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 2 {
		t.Errorf("rows written = %d, want 2", n)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := "data-bucket,raw/acme/short/Contact/year=2024/month=1/day=15/a.csv,100\n" +
		"data-bucket,raw/acme/short/Contact/year=2024/month=1/day=15/b.csv,200\n"
	if string(content) != want {
		t.Errorf("manifest content = %q, want %q", content, want)
	}
}

func TestWriteManifest_Deterministic(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	dest := "archive/acme/short/Contact/2024-1-15.tar"
	rows := []catalog.Object{
		{Bucket: "b", Path: "raw/x/year=2024/month=1/day=15/a.csv", Size: 1},
	}

	path1, _, err := w.Write(dest, rows)
	if err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	first, _ := os.ReadFile(path1)

	path2, _, err := w.Write(dest, rows)
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	second, _ := os.ReadFile(path2)

	if path1 != path2 {
		t.Errorf("paths differ: %q vs %q", path1, path2)
	}
	if string(first) != string(second) {
		t.Error("rewrite produced different content")
	}
}

func TestManifestPathFlattensSlashes(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	path := w.Path("archive/acme/short/Contact/2024-1-15.tar")
	base := filepath.Base(path)
	if strings.Contains(base, "/") {
		t.Errorf("manifest name contains slash: %q", base)
	}
	if base != "archive_acme_short_Contact_2024-1-15.tar.csv" {
		t.Errorf("unexpected manifest name %q", base)
	}
}

func TestRemoveManifest(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	dest := "archive/acme/short/Contact/2024-1-15.tar"
	path, _, err := w.Write(dest, []catalog.Object{{Bucket: "b", Path: "k", Size: 1}})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := w.Remove(dest); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("manifest still exists after Remove")
	}

	// Removing again is not an error.
	if err := w.Remove(dest); err != nil {
		t.Errorf("second Remove failed: %v", err)
	}
}

func TestNewWriterSweepsStaleTmpFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "archive_acme_short_Contact_2024-1-15.tar.csv.tmp")
	kept := filepath.Join(dir, "archive_acme_short_Contact_2024-1-15.tar.csv")
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatalf("write stale tmp: %v", err)
	}
	if err := os.WriteFile(kept, []byte("data,row,1\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	if _, err := NewWriter(dir); err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale .tmp file survived writer startup")
	}
	if _, err := os.Stat(kept); err != nil {
		t.Errorf("completed manifest removed: %v", err)
	}
}
