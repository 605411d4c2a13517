package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/skyvault-io/skyvault/pkg/config"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// S3Store keeps objects in an S3-compatible bucket. Keys map directly to
// object keys; there is no prefix because the bucket is dedicated.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds the client from configuration and verifies bucket
// access. The bucket must already exist.
func NewS3Store(ctx context.Context, cfg *config.S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob: s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"", // session token (static credentials)
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("blob: access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads the stream as a single object. S3 makes the object visible
// only after a complete upload, so failures leave nothing behind.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("blob: put s3 object %s: %w", key, err)
	}
	return nil
}

// Get returns the object body stream.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: blob %s", models.ErrNotFound, key)
		}
		return nil, fmt.Errorf("blob: get s3 object %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes the object. S3 deletion of a missing key succeeds, which
// matches the idempotency contract.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("blob: delete s3 object %s: %w", key, err)
	}
	return nil
}

// Exists checks the object with a HEAD request.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, fmt.Errorf("blob: head s3 object %s: %w", key, err)
}

// ModTime returns the object's LastModified from a HEAD request.
func (s *S3Store) ModTime(ctx context.Context, key string) (time.Time, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return time.Time{}, fmt.Errorf("%w: blob %s", models.ErrNotFound, key)
		}
		return time.Time{}, fmt.Errorf("blob: head s3 object %s: %w", key, err)
	}
	if out.LastModified == nil {
		return time.Time{}, fmt.Errorf("blob: head s3 object %s: no last-modified", key)
	}
	return *out.LastModified, nil
}

// Rename is copy-then-delete. The copy runs first so a failure at any
// point leaves at least one complete object.
func (s *S3Store) Rename(ctx context.Context, oldKey, newKey string) error {
	source := url.PathEscape(s.bucket + "/" + oldKey)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(newKey),
		CopySource: aws.String(source),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return fmt.Errorf("%w: blob %s", models.ErrNotFound, oldKey)
		}
		return fmt.Errorf("blob: copy s3 object %s -> %s: %w", oldKey, newKey, err)
	}
	return s.Delete(ctx, oldKey)
}

// List pages object keys through fn with bounded memory regardless of
// bucket size.
func (s *S3Store) List(ctx context.Context, pageSize int, fn func(keys []string) error) error {
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(int32(pageSize)),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("blob: list s3 objects: %w", err)
		}
		keys := make([]string, 0, len(page.Contents))
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if len(keys) == 0 {
			continue
		}
		if err := fn(keys); err != nil {
			return err
		}
	}
	return nil
}

// isNoSuchKey recognises the S3 not-found shapes: NoSuchKey from GET,
// NotFound from HEAD.
func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}
	return false
}
