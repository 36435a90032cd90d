package export

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"fairgate/internal/domain"
)

var _ Sink = (*GCSSink)(nil)

// GCSSink uploads archives to Google Cloud Storage.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink creates a sink from a stored GCS destination. When no key
// file is configured the client falls back to ambient credentials.
func NewGCSSink(ctx context.Context, dest *domain.ExportDestination) (*GCSSink, error) {
	if dest.GCSBucket == "" {
		return nil, fmt.Errorf("bucket is required for GCS destinations")
	}

	var opts []option.ClientOption
	if dest.GCSKeyFilePath != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, dest.GCSKeyFilePath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCSSink{
		client: client,
		bucket: dest.GCSBucket,
		prefix: dest.Prefix,
	}, nil
}

// Store uploads the archive and returns its gs:// URI.
func (s *GCSSink) Store(ctx context.Context, name string, data []byte) (string, error) {
	key := joinKey(s.prefix, name)
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType(name)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("write object %q/%q: %w", s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %q/%q: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

// Close releases the underlying client connections.
func (s *GCSSink) Close() error { return s.client.Close() }
