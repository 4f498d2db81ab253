// Package s3store wraps the object-store operations the lifecycle
// coordinator consumes: paginated listing, existence probes, and batched
// deletion. The wrapper is deliberately thin; consumers depend on the
// narrow subset they use so tests can substitute fakes.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MaxDeleteBatch is the object store's cap on keys per DeleteObjects call.
const MaxDeleteBatch = 1000

// ErrBatchTooLarge is returned when a delete batch exceeds MaxDeleteBatch.
var ErrBatchTooLarge = errors.New("delete batch exceeds 1000 keys")

// api is the subset of the S3 client the store uses.
type api interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Client provides object-store operations for the lifecycle stages.
type Client struct {
	s3Client api
}

// NewClient creates a client using shared AWS configuration. Region and
// profile may be empty to fall back to the environment.
func NewClient(ctx context.Context, region, profile string) (*Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	if profile != "" {
		optFns = append(optFns, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Client{s3Client: s3.NewFromConfig(cfg)}, nil
}

// NewClientWithAPI wraps an existing S3 API implementation (used by tests).
func NewClientWithAPI(a api) *Client {
	return &Client{s3Client: a}
}

// Entry is one listed object.
type Entry struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Page is one page of listing results.
type Page struct {
	Entries   []Entry
	NextToken string
}

// ListPage lists up to pageSize keys under prefix, resuming from token.
// An empty NextToken in the result means the listing is exhausted.
func (c *Client) ListPage(ctx context.Context, bucket, prefix, token string, pageSize int32) (*Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(pageSize),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	out, err := c.s3Client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
	}

	page := &Page{Entries: make([]Entry, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		entry := Entry{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
		if obj.LastModified != nil {
			entry.LastModified = *obj.LastModified
		}
		page.Entries = append(page.Entries, entry)
	}
	if out.NextContinuationToken != nil {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// ListPrefixes lists the common prefixes directly under root (delimiter "/").
func (c *Client) ListPrefixes(ctx context.Context, bucket, root string) ([]string, error) {
	out, err := c.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(root),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, fmt.Errorf("list prefixes s3://%s/%s: %w", bucket, root, err)
	}

	prefixes := make([]string, 0, len(out.CommonPrefixes))
	for _, cp := range out.CommonPrefixes {
		prefixes = append(prefixes, aws.ToString(cp.Prefix))
	}
	return prefixes, nil
}

// Exists probes whether a key exists via HeadObject. A NotFound response is
// not an error.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// Get opens a key for streaming reads. The caller owns the returned body.
func (c *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// KeyError is a per-key deletion failure.
type KeyError struct {
	Key     string
	Code    string
	Message string
}

// BatchResult is the per-key outcome of one DeleteObjects call.
type BatchResult struct {
	Deleted []string
	Errors  []KeyError
}

// DeleteBatch deletes up to MaxDeleteBatch keys in one call and reports the
// outcome per key. Larger batches are rejected with ErrBatchTooLarge; the
// caller is responsible for chunking.
func (c *Client) DeleteBatch(ctx context.Context, bucket string, keys []string) (*BatchResult, error) {
	if len(keys) == 0 {
		return &BatchResult{}, nil
	}
	if len(keys) > MaxDeleteBatch {
		return nil, fmt.Errorf("delete %d keys: %w", len(keys), ErrBatchTooLarge)
	}

	objects := make([]types.ObjectIdentifier, len(keys))
	for i, key := range keys {
		objects[i] = types.ObjectIdentifier{Key: aws.String(key)}
	}

	out, err := c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(false),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("delete batch in s3://%s: %w", bucket, err)
	}

	result := &BatchResult{
		Deleted: make([]string, 0, len(out.Deleted)),
	}
	for _, d := range out.Deleted {
		result.Deleted = append(result.Deleted, aws.ToString(d.Key))
	}
	for _, e := range out.Errors {
		result.Errors = append(result.Errors, KeyError{
			Key:     aws.ToString(e.Key),
			Code:    aws.ToString(e.Code),
			Message: aws.ToString(e.Message),
		})
	}
	return result, nil
}
