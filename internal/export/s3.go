package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"fairgate/internal/domain"
)

var _ Sink = (*S3Sink)(nil)

// S3Sink uploads archives to S3-compatible object storage. It uses the AWS
// SDK v2 with path-style addressing so non-AWS endpoints work unchanged.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink creates a sink from a stored S3 destination.
func NewS3Sink(dest *domain.ExportDestination) (*S3Sink, error) {
	if dest.Bucket == "" {
		return nil, fmt.Errorf("bucket is required for S3 destinations")
	}
	if dest.KeyID == "" || dest.Secret == "" {
		return nil, fmt.Errorf("S3 credentials are incomplete")
	}

	opts := s3.Options{
		Region: dest.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			dest.KeyID, dest.Secret, "",
		),
		UsePathStyle: true,
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if dest.Endpoint != "" {
		opts.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", dest.Endpoint))
	}

	return &S3Sink{
		client: s3.New(opts),
		bucket: dest.Bucket,
		prefix: dest.Prefix,
	}, nil
}

// Store uploads the archive and returns its s3:// URI.
func (s *S3Sink) Store(ctx context.Context, name string, data []byte) (string, error) {
	key := joinKey(s.prefix, name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("put object %q/%q: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Close is a no-op; the S3 client needs no shutdown.
func (s *S3Sink) Close() error { return nil }
