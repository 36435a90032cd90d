package repository

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "fairgate/internal/db"
	"fairgate/internal/db/crypto"
	"fairgate/internal/domain"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func setupDestinationRepo(t *testing.T) (*DestinationRepo, *sql.DB) {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	enc, err := crypto.NewEncryptor(testEncryptionKey)
	require.NoError(t, err)
	return NewDestinationRepo(writeDB, enc), writeDB
}

func TestDestinationRepo_CRUD(t *testing.T) {
	repo, db := setupDestinationRepo(t)
	ctx := context.Background()

	dest := &domain.ExportDestination{
		Name:     "compliance-archive",
		Kind:     domain.DestinationS3,
		Bucket:   "fairgate-exports",
		Prefix:   "ledger/",
		KeyID:    "AKID",
		Secret:   "super-secret",
		Endpoint: "https://s3.amazonaws.com",
		Region:   "us-east-1",
	}

	t.Run("create", func(t *testing.T) {
		created, err := repo.Create(ctx, dest)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "compliance-archive", created.Name)
		assert.Equal(t, domain.DestinationS3, created.Kind)
		assert.Equal(t, "super-secret", created.Secret)
		assert.False(t, created.CreatedAt.IsZero())
	})

	t.Run("secret is encrypted at rest", func(t *testing.T) {
		var stored string
		err := db.QueryRow(`SELECT secret_encrypted FROM export_destinations WHERE name = ?`, "compliance-archive").Scan(&stored)
		require.NoError(t, err)
		assert.NotEmpty(t, stored)
		assert.NotContains(t, stored, "super-secret")
	})

	t.Run("get by name decrypts", func(t *testing.T) {
		fetched, err := repo.GetByName(ctx, "compliance-archive")
		require.NoError(t, err)
		assert.Equal(t, "super-secret", fetched.Secret)
		assert.Equal(t, "AKID", fetched.KeyID)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		_, err := repo.Create(ctx, &domain.ExportDestination{
			Name: "compliance-archive",
			Kind: domain.DestinationFile,
		})
		var conflict *domain.ConflictError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("list", func(t *testing.T) {
		_, err := repo.Create(ctx, &domain.ExportDestination{
			Name:      "local-drop",
			Kind:      domain.DestinationFile,
			Directory: "/var/exports",
		})
		require.NoError(t, err)

		dests, total, err := repo.List(ctx, domain.PageRequest{})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, dests, 2)
		assert.Equal(t, "compliance-archive", dests[0].Name)
		assert.Equal(t, "local-drop", dests[1].Name)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "local-drop"))

		_, err := repo.GetByName(ctx, "local-drop")
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("delete missing", func(t *testing.T) {
		err := repo.Delete(ctx, "never-existed")
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}

func TestDestinationRepo_AzureKeyEncrypted(t *testing.T) {
	repo, db := setupDestinationRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, &domain.ExportDestination{
		Name:             "azure-archive",
		Kind:             domain.DestinationAzure,
		AzureAccountName: "fairgatestore",
		AzureAccountKey:  "azure-key-material",
		AzureContainer:   "ledger",
	})
	require.NoError(t, err)

	var stored string
	err = db.QueryRow(`SELECT azure_account_key_encrypted FROM export_destinations WHERE name = ?`, "azure-archive").Scan(&stored)
	require.NoError(t, err)
	assert.NotContains(t, stored, "azure-key-material")

	fetched, err := repo.GetByName(ctx, "azure-archive")
	require.NoError(t, err)
	assert.Equal(t, "azure-key-material", fetched.AzureAccountKey)
}
