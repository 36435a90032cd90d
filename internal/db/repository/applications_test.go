package repository

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "fairgate/internal/db"
	"fairgate/internal/domain"
)

func setupApplicationRepo(t *testing.T) *ApplicationRepo {
	t.Helper()
	writeDB, _ := internaldb.OpenTestSQLite(t)
	return NewApplicationRepo(writeDB)
}

func seedApplication(t *testing.T, repo *ApplicationRepo, name, assignedTo string) *domain.Application {
	t.Helper()
	app, err := repo.Create(context.Background(), &domain.Application{
		ApplicantName: name,
		SSNLast4:      "1234",
		IncomeCents:   8_500_000,
		AmountCents:   25_000_000,
		AssignedTo:    assignedTo,
	})
	require.NoError(t, err)
	return app
}

func TestApplicationRepo_CRUD(t *testing.T) {
	repo := setupApplicationRepo(t)
	ctx := context.Background()

	var id string

	t.Run("create", func(t *testing.T) {
		created := seedApplication(t, repo, "Ada Lovelace", "officer_7")
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "Ada Lovelace", created.ApplicantName)
		assert.Equal(t, domain.ApplicationStatusReceived, created.Status)
		assert.Equal(t, "officer_7", created.AssignedTo)
		assert.False(t, created.CreatedAt.IsZero())
		id = created.ID
	})

	t.Run("get by id", func(t *testing.T) {
		fetched, err := repo.GetByID(ctx, id, nil)
		require.NoError(t, err)
		assert.Equal(t, id, fetched.ID)
		assert.Equal(t, "1234", fetched.SSNLast4)
	})

	t.Run("set status", func(t *testing.T) {
		require.NoError(t, repo.SetStatus(ctx, id, domain.ApplicationStatusInReview))
		fetched, err := repo.GetByID(ctx, id, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.ApplicationStatusInReview, fetched.Status)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "no-such-id", nil)
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("set status missing", func(t *testing.T) {
		err := repo.SetStatus(ctx, "no-such-id", domain.ApplicationStatusClosed)
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}

func TestApplicationRepo_ScopeFilter(t *testing.T) {
	repo := setupApplicationRepo(t)
	ctx := context.Background()

	mine := seedApplication(t, repo, "Mine", "officer_7")
	theirs := seedApplication(t, repo, "Theirs", "officer_9")

	scope := &domain.ScopeFilter{Column: "assigned_to", Value: "officer_7"}

	t.Run("in scope row is visible", func(t *testing.T) {
		fetched, err := repo.GetByID(ctx, mine.ID, scope)
		require.NoError(t, err)
		assert.Equal(t, mine.ID, fetched.ID)
	})

	t.Run("out of scope row reads as missing", func(t *testing.T) {
		_, outOfScopeErr := repo.GetByID(ctx, theirs.ID, scope)
		_, missingErr := repo.GetByID(ctx, "no-such-id", scope)

		var nf *domain.NotFoundError
		require.ErrorAs(t, outOfScopeErr, &nf)
		// Indistinguishable from a row that does not exist.
		assert.Equal(t, missingErr.Error(), outOfScopeErr.Error())
	})

	t.Run("list honors scope", func(t *testing.T) {
		apps, total, err := repo.List(ctx, scope, domain.PageRequest{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, apps, 1)
		assert.Equal(t, mine.ID, apps[0].ID)
	})

	t.Run("list unscoped sees all", func(t *testing.T) {
		apps, total, err := repo.List(ctx, nil, domain.PageRequest{})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, apps, 2)
	})

	t.Run("unknown scope column fails closed", func(t *testing.T) {
		bad := &domain.ScopeFilter{Column: "applicant_name; DROP TABLE applications", Value: "x"}
		_, err := repo.GetByID(ctx, mine.ID, bad)
		var se *domain.ScopeError
		require.ErrorAs(t, err, &se)
	})
}
