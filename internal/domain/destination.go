package domain

import "time"

// DestinationKind identifies where a ledger export is written.
type DestinationKind string

// Supported export destination kinds.
const (
	DestinationS3    DestinationKind = "S3"
	DestinationAzure DestinationKind = "AZURE"
	DestinationGCS   DestinationKind = "GCS"
	DestinationFile  DestinationKind = "FILE"
)

// ExportDestination holds a named target for ledger export archives.
// Sensitive fields are stored encrypted at rest and decrypted in memory.
type ExportDestination struct {
	ID   string
	Name string
	Kind DestinationKind

	// Prefix is prepended to archive names on object-store kinds.
	Prefix string

	// S3 fields
	Bucket   string
	KeyID    string // plaintext after decryption
	Secret   string // plaintext after decryption
	Endpoint string
	Region   string

	// Azure fields
	AzureAccountName string
	AzureAccountKey  string // plaintext after decryption
	AzureContainer   string

	// GCS fields
	GCSBucket      string
	GCSKeyFilePath string

	// File fields
	Directory string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateExportDestinationRequest holds parameters for registering a
// destination.
type CreateExportDestinationRequest struct {
	Name string
	Kind DestinationKind

	Prefix string

	Bucket   string
	KeyID    string
	Secret   string
	Endpoint string
	Region   string

	AzureAccountName string
	AzureAccountKey  string
	AzureContainer   string

	GCSBucket      string
	GCSKeyFilePath string

	Directory string
}

// Validate checks that the request is well-formed for its kind.
func (r *CreateExportDestinationRequest) Validate() error {
	if r.Name == "" {
		return ErrValidation("destination name is required")
	}
	switch r.Kind {
	case DestinationS3:
		if r.Bucket == "" {
			return ErrValidation("bucket is required for S3 destinations")
		}
		if r.KeyID == "" || r.Secret == "" {
			return ErrValidation("key_id and secret are required for S3 destinations")
		}
	case DestinationAzure:
		if r.AzureAccountName == "" || r.AzureAccountKey == "" {
			return ErrValidation("account name and key are required for Azure destinations")
		}
		if r.AzureContainer == "" {
			return ErrValidation("container is required for Azure destinations")
		}
	case DestinationGCS:
		if r.GCSBucket == "" {
			return ErrValidation("bucket is required for GCS destinations")
		}
	case DestinationFile:
		if r.Directory == "" {
			return ErrValidation("directory is required for file destinations")
		}
	default:
		return ErrValidation("unknown destination kind %q", string(r.Kind))
	}
	return nil
}
