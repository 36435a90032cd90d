package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fairgate/internal/db/crypto"
	"fairgate/internal/domain"
)

var _ domain.ExportDestinationRepository = (*DestinationRepo)(nil)

// DestinationRepo stores export destinations with secrets encrypted at rest.
type DestinationRepo struct {
	db  *sql.DB
	enc *crypto.Encryptor
}

// NewDestinationRepo creates a new DestinationRepo.
func NewDestinationRepo(db *sql.DB, enc *crypto.Encryptor) *DestinationRepo {
	return &DestinationRepo{db: db, enc: enc}
}

// Create inserts a new destination, encrypting secret material first.
func (r *DestinationRepo) Create(ctx context.Context, d *domain.ExportDestination) (*domain.ExportDestination, error) {
	if d == nil {
		return nil, domain.ErrValidation("destination is required")
	}
	if d.ID == "" {
		d.ID = domain.NewID()
	}

	secretEnc, err := r.enc.Encrypt(d.Secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}
	azureKeyEnc, err := r.enc.Encrypt(d.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt azure account key: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO export_destinations (
			id, name, kind, bucket, prefix, key_id, secret_encrypted, endpoint, region,
			azure_account_name, azure_account_key_encrypted, azure_container,
			gcs_bucket, gcs_key_file_path, directory
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Name, string(d.Kind), d.Bucket, d.Prefix, d.KeyID, secretEnc, d.Endpoint, d.Region,
		d.AzureAccountName, azureKeyEnc, d.AzureContainer,
		d.GCSBucket, d.GCSKeyFilePath, d.Directory)
	if err != nil {
		return nil, mapDBError(err)
	}

	return r.GetByName(ctx, d.Name)
}

// GetByName returns a destination by name with secrets decrypted.
func (r *DestinationRepo) GetByName(ctx context.Context, name string) (*domain.ExportDestination, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, kind, bucket, prefix, key_id, secret_encrypted, endpoint, region,
		       azure_account_name, azure_account_key_encrypted, azure_container,
		       gcs_bucket, gcs_key_file_path, directory, created_at, updated_at
		FROM export_destinations WHERE name = ?
	`, name)
	d, err := r.scanDestination(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return d, nil
}

// List returns destinations ordered by name.
func (r *DestinationRepo) List(ctx context.Context, page domain.PageRequest) ([]domain.ExportDestination, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM export_destinations`).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, kind, bucket, prefix, key_id, secret_encrypted, endpoint, region,
		       azure_account_name, azure_account_key_encrypted, azure_container,
		       gcs_bucket, gcs_key_file_path, directory, created_at, updated_at
		FROM export_destinations ORDER BY name LIMIT ? OFFSET ?
	`, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, mapDBError(err)
	}
	defer rows.Close()

	dests := make([]domain.ExportDestination, 0)
	for rows.Next() {
		d, err := r.scanDestination(rows)
		if err != nil {
			return nil, 0, mapDBError(err)
		}
		dests = append(dests, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapDBError(err)
	}
	return dests, total, nil
}

// Delete removes a destination by name.
func (r *DestinationRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM export_destinations WHERE name = ?`, name)
	if err != nil {
		return mapDBError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	return nil
}

func (r *DestinationRepo) scanDestination(row rowScanner) (*domain.ExportDestination, error) {
	var (
		d                      domain.ExportDestination
		kind                   string
		secretEnc, azureKeyEnc string
		createdAt, updatedAt   time.Time
	)
	err := row.Scan(
		&d.ID,
		&d.Name,
		&kind,
		&d.Bucket,
		&d.Prefix,
		&d.KeyID,
		&secretEnc,
		&d.Endpoint,
		&d.Region,
		&d.AzureAccountName,
		&azureKeyEnc,
		&d.AzureContainer,
		&d.GCSBucket,
		&d.GCSKeyFilePath,
		&d.Directory,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	secret, err := r.enc.Decrypt(secretEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}
	azureKey, err := r.enc.Decrypt(azureKeyEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt azure account key: %w", err)
	}

	d.Kind = domain.DestinationKind(kind)
	d.Secret = secret
	d.AzureAccountKey = azureKey
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt
	return &d, nil
}
