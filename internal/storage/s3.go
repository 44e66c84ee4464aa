package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrInvalidURI is returned for locations that are not s3://bucket/key.
	ErrInvalidURI = errors.New("invalid s3 uri")
	// ErrObjectNotFound is returned when the object is gone, e.g. expired by a lifecycle rule.
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectURI is a parsed s3://bucket/key location.
type ObjectURI struct {
	Bucket string
	Key    string
}

func (u ObjectURI) String() string {
	return fmt.Sprintf("s3://%s/%s", u.Bucket, u.Key)
}

// ParseURI splits an s3:// location into bucket and key.
func ParseURI(raw string) (ObjectURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ObjectURI{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return ObjectURI{}, fmt.Errorf("%w: %q", ErrInvalidURI, raw)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return ObjectURI{}, fmt.Errorf("%w: %q has no key", ErrInvalidURI, raw)
	}
	return ObjectURI{Bucket: u.Host, Key: key}, nil
}

// S3API is the subset of the S3 client used for reading results.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Storage implements ResultStore on top of S3
type S3Storage struct {
	client S3API
}

// NewS3Storage creates a result store from a loaded AWS config.
// A custom endpoint (LocalStack, MinIO) switches to path-style addressing.
func NewS3Storage(awsCfg aws.Config, endpoint string) *S3Storage {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Storage{client: client}
}

// NewS3StorageWithClient wraps an existing client.
func NewS3StorageWithClient(client S3API) *S3Storage {
	return &S3Storage{client: client}
}

// Download opens an object for reading. The caller closes the body.
func (s *S3Storage) Download(ctx context.Context, uri string) (io.ReadCloser, error) {
	obj, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, uri)
		}
		return nil, fmt.Errorf("failed to download object: %w", err)
	}

	return result.Body, nil
}

// Exists checks if an object exists in storage
func (s *S3Storage) Exists(ctx context.Context, uri string) (bool, error) {
	obj, err := ParseURI(uri)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	// HeadObject errors carry no body, so some endpoints only surface a generic code.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}
