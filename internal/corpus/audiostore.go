package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// DirStore is an [AudioStore] reading recordings from a local audiolog
// directory.
type DirStore struct {
	root string
}

// Compile-time interface check.
var _ AudioStore = (*DirStore)(nil)

// NewDirStore returns a [DirStore] rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// Open opens root/filename. File names may not escape the root directory.
func (d *DirStore) Open(_ context.Context, filename string) (io.ReadCloser, error) {
	if !filepath.IsLocal(filename) {
		return nil, fmt.Errorf("corpus: audio file name %q escapes the audiolog directory", filename)
	}
	f, err := os.Open(filepath.Join(d.root, filename))
	if err != nil {
		return nil, fmt.Errorf("corpus: open audio: %w", err)
	}
	return f, nil
}

// S3Client abstracts the S3 API operations used by [S3Store].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store is an [AudioStore] reading recordings from Amazon S3 or any
// S3-compatible object store (MinIO, R2, ...).
type S3Store struct {
	client S3Client
	bucket string
	prefix string
}

// Compile-time interface check.
var _ AudioStore = (*S3Store)(nil)

// NewS3Store creates an S3-backed [AudioStore]. Prefix is prepended to every
// object key; pass "" for none.
func NewS3Store(client S3Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) key(filename string) string {
	if s.prefix == "" {
		return filename
	}
	return path.Join(s.prefix, filename)
}

// Open fetches the object for filename. A missing key yields an error
// wrapping os.ErrNotExist.
func (s *S3Store) Open(ctx context.Context, filename string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(filename)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("corpus: open audio %s: %w", filename, os.ErrNotExist)
		}
		return nil, fmt.Errorf("corpus: open audio %s: %w", filename, err)
	}
	return out.Body, nil
}

// Ping reports whether the bucket is reachable. Used by readiness checks.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("corpus: head bucket %s: %w", s.bucket, err)
	}
	return nil
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
