package export

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"fairgate/internal/domain"
)

var _ Sink = (*AzureSink)(nil)

// AzureSink uploads archives to Azure Blob Storage using shared-key
// credentials.
type AzureSink struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureSink creates a sink from a stored Azure destination. Only
// account-key authentication is supported.
func NewAzureSink(dest *domain.ExportDestination) (*AzureSink, error) {
	if dest.AzureAccountName == "" || dest.AzureAccountKey == "" {
		return nil, fmt.Errorf("Azure account name and key are required")
	}
	if dest.AzureContainer == "" {
		return nil, fmt.Errorf("container is required for Azure destinations")
	}

	sharedKeyCred, err := azblob.NewSharedKeyCredential(dest.AzureAccountName, dest.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", dest.AzureAccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, sharedKeyCred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}

	return &AzureSink{
		client:    client,
		container: dest.AzureContainer,
		prefix:    dest.Prefix,
	}, nil
}

// Store uploads the archive and returns its az:// URI.
func (s *AzureSink) Store(ctx context.Context, name string, data []byte) (string, error) {
	key := joinKey(s.prefix, name)
	if _, err := s.client.UploadBuffer(ctx, s.container, key, data, nil); err != nil {
		return "", fmt.Errorf("upload blob %q/%q: %w", s.container, key, err)
	}
	return fmt.Sprintf("az://%s/%s", s.container, key), nil
}

// Close is a no-op; the Azure client needs no shutdown.
func (s *AzureSink) Close() error { return nil }
