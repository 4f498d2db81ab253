// Package archiver shells out to the external s3tar tool to aggregate a
// group of objects into a single tar archive in the object store.
package archiver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/eunmann/s3-lifecycle/internal/logctx"
)

// Request describes one archive invocation.
type Request struct {
	// Bucket is the bucket holding both the originals and the archive.
	Bucket string

	// Destination is the archive object key, e.g.
	// archive/acme/short/Contact/2024-1-15.tar.
	Destination string

	// ManifestPath is the local CSV manifest listing the members.
	ManifestPath string
}

// Archiver runs one archive aggregation. Implementations must be safe
// for concurrent use.
type Archiver interface {
	Archive(ctx context.Context, req Request) error
}

// S3Tar invokes the s3tar binary for each request.
type S3Tar struct {
	// Binary is the executable name or path. Empty means "s3tar".
	Binary string

	// Region is passed as --region.
	Region string

	// Profile is passed as --profile when non-empty.
	Profile string

	// DeepArchive adds --storage-class DEEP_ARCHIVE so the archive
	// lands directly in cold storage.
	DeepArchive bool
}

func (a *S3Tar) binary() string {
	if a.Binary != "" {
		return a.Binary
	}
	return "s3tar"
}

// Args returns the command line arguments for a request.
func (a *S3Tar) Args(req Request) []string {
	args := []string{
		"--region", a.Region,
		"-c",
		"-f", fmt.Sprintf("s3://%s/%s", req.Bucket, req.Destination),
		"--concat-in-memory",
		"-m", req.ManifestPath,
	}
	if a.DeepArchive {
		args = append(args, "--storage-class", "DEEP_ARCHIVE")
	}
	if a.Profile != "" {
		args = append(args, "--profile", a.Profile)
	}
	return args
}

// Archive runs s3tar and waits for it to finish. The subprocess output
// is captured and folded into the error on failure.
func (a *S3Tar) Archive(ctx context.Context, req Request) error {
	log := logctx.FromContext(ctx)

	args := a.Args(req)
	log.Debug().
		Str("binary", a.binary()).
		Strs("args", args).
		Msg("running archive tool")

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, a.binary(), args...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s for %s: %w (output: %s)",
			a.binary(), req.Destination, err, bytes.TrimSpace(output.Bytes()))
	}

	log.Debug().
		Str("destination", req.Destination).
		Msg("archive tool finished")
	return nil
}
