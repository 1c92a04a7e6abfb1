package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	ledgerContentType = "application/json"

	// historyStamp names history objects so that lexical order is time order.
	historyStamp = "20060102T150405Z"

	// maxDeleteBatch is the S3 limit on keys per DeleteObjects call.
	maxDeleteBatch = 1000
)

// objectStore is the part of the S3 API the destination uses.
type objectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Options configures an S3Destination.
type S3Options struct {
	Bucket   string
	Key      string // latest export; default "bizledger.json"
	Region   string
	Endpoint string // non-empty enables path-style addressing (MinIO)
	// History is how many timestamped exports to keep next to Key.
	// Zero keeps only the latest.
	History int
}

// S3Destination keeps the latest ledger export in a bucket, plus a rolling
// set of timestamped copies under "<key without .json>/".
type S3Destination struct {
	client  objectStore
	bucket  string
	key     string
	history int
	now     func() time.Time
}

// NewS3Destination loads the default AWS credential chain and returns a
// destination for opts.Bucket.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 destination: bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}
	return newS3Destination(s3.NewFromConfig(cfg, s3opts...), opts), nil
}

func newS3Destination(client objectStore, opts S3Options) *S3Destination {
	key := opts.Key
	if key == "" {
		key = "bizledger.json"
	}
	return &S3Destination{
		client:  client,
		bucket:  opts.Bucket,
		key:     key,
		history: max(opts.History, 0),
		now:     time.Now,
	}
}

// historyPrefix is the key prefix of timestamped copies.
func (d *S3Destination) historyPrefix() string {
	return strings.TrimSuffix(d.key, path.Ext(d.key)) + "/"
}

// Write replaces the latest export, then stores a timestamped copy and
// prunes copies beyond the history limit.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	if err := d.put(ctx, d.key, data); err != nil {
		return err
	}
	if d.history == 0 {
		return nil
	}
	stamped := d.historyPrefix() + d.now().UTC().Format(historyStamp) + ".json"
	if err := d.put(ctx, stamped, data); err != nil {
		return err
	}
	return d.prune(ctx)
}

func (d *S3Destination) put(ctx context.Context, key string, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ledgerContentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

// prune deletes the oldest timestamped copies so at most d.history remain.
func (d *S3Destination) prune(ctx context.Context) error {
	var keys []string
	p := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(d.historyPrefix()),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list history: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	if len(keys) <= d.history {
		return nil
	}
	sort.Strings(keys)
	stale := keys[:len(keys)-d.history]

	for len(stale) > 0 {
		n := min(len(stale), maxDeleteBatch)
		ids := make([]types.ObjectIdentifier, n)
		for i, k := range stale[:n] {
			ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
		}
		_, err := d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3 prune history: %w", err)
		}
		stale = stale[n:]
	}
	return nil
}
