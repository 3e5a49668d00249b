// Package storage reads tenant assets from S3-compatible object storage.
//
// Keys are laid out as "<tenant>/<path>". Reads support conditional
// requests: passing the ETag a client already holds yields
// [ErrNotModified] instead of a body.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	ErrInvalidConfig = errors.New("storage: invalid configuration")
	ErrInvalidKey    = errors.New("storage: invalid key")
	ErrNotFound      = errors.New("storage: object not found")
	ErrNotModified   = errors.New("storage: object not modified")
	ErrAccessDenied  = errors.New("storage: access denied")
	ErrReadFailed    = errors.New("storage: read failed")
)

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "us-east-1"

// Config holds S3 connection settings.
type Config struct {
	Bucket    string `env:"STORAGE_BUCKET"`
	AccessKey string `env:"STORAGE_ACCESS_KEY"`
	SecretKey string `env:"STORAGE_SECRET_KEY"`
	Endpoint  string `env:"STORAGE_ENDPOINT"` // MinIO and other S3-compatible services
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	PathStyle bool   `env:"STORAGE_PATH_STYLE"`
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != ""
}

// Object describes a stored object. Body is nil for Stat results and must
// be closed by the caller otherwise.
type Object struct {
	Key          string
	ContentType  string
	ETag         string
	Size         int64
	LastModified time.Time
	Body         io.ReadCloser
}

// S3 is a read-only view over one bucket.
type S3 struct {
	client *s3.Client
	bucket string
}

// New creates an S3 reader.
func New(cfg Config) (*S3, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ErrInvalidConfig
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	client := s3.New(s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		}
	})
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._~-]`)

// Key builds the object key of path for tenant. Traversal segments are
// rejected.
func Key(tenant, path string) (string, error) {
	path = strings.Trim(path, "/")
	if tenant == "" || path == "" {
		return "", ErrInvalidKey
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" || p == "." || p == ".." {
			return "", ErrInvalidKey
		}
		parts[i] = unsafeSegment.ReplaceAllString(p, "_")
	}
	return unsafeSegment.ReplaceAllString(tenant, "_") + "/" + strings.Join(parts, "/"), nil
}

// Stat returns object metadata without the body.
func (s *S3) Stat(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return &Object{
		Key:          key,
		ContentType:  aws.ToString(out.ContentType),
		ETag:         aws.ToString(out.ETag),
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Open fetches an object. When ifNoneMatch equals the current ETag it
// returns ErrNotModified.
func (s *S3) Open(ctx context.Context, key, ifNoneMatch string) (*Object, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if ifNoneMatch != "" {
		in.IfNoneMatch = aws.String(ifNoneMatch)
	}
	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		return nil, wrapError(err)
	}
	return &Object{
		Key:          key,
		ContentType:  aws.ToString(out.ContentType),
		ETag:         aws.ToString(out.ETag),
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		Body:         out.Body,
	}, nil
}

// wrapError maps S3 failures to sentinel errors. The original error is
// formatted with %v so callers match on sentinels only.
func wrapError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case "NotModified", "304":
			return ErrNotModified
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrReadFailed, err)
}
