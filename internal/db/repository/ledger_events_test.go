package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "fairgate/internal/db"
	"fairgate/internal/domain"
)

func setupLedgerEventRepo(t *testing.T) *LedgerEventRepo {
	t.Helper()
	appendDB, readDB := internaldb.OpenTestLedger(t)
	return NewLedgerEventRepo(appendDB, readDB)
}

func insertTestEvent(t *testing.T, repo *LedgerEventRepo, seq int64, eventType domain.EventType, subjectID string, at time.Time) {
	t.Helper()
	err := repo.Insert(context.Background(), &domain.LedgerEvent{
		SequenceNo:  seq,
		PrevHash:    fmt.Sprintf("h%d", seq-1),
		ThisHash:    fmt.Sprintf("h%d", seq),
		EventType:   eventType,
		PrincipalID: "user_1",
		RoleAtTime:  "loan_officer",
		SubjectID:   subjectID,
		Payload:     map[string]any{"seq": seq},
		CreatedAt:   at,
	})
	require.NoError(t, err)
}

func TestLedgerEventRepo_InsertAndHead(t *testing.T) {
	repo := setupLedgerEventRepo(t)
	ctx := context.Background()

	seq, hash, err := repo.Head(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, seq)
	assert.Empty(t, hash)

	now := time.Now().UTC()
	insertTestEvent(t, repo, 1, domain.EventDecision, "app_1", now)
	insertTestEvent(t, repo, 2, domain.EventDataAccess, "app_1", now)

	seq, hash, err = repo.Head(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq)
	assert.Equal(t, "h2", hash)

	ev, err := repo.GetBySequence(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.EventDecision, ev.EventType)
	assert.Equal(t, "app_1", ev.SubjectID)
	assert.Equal(t, "h0", ev.PrevHash)
	assert.EqualValues(t, 1, ev.Payload["seq"])
}

func TestLedgerEventRepo_DuplicateSequenceRejected(t *testing.T) {
	repo := setupLedgerEventRepo(t)

	now := time.Now().UTC()
	insertTestEvent(t, repo, 1, domain.EventSystem, "", now)

	err := repo.Insert(context.Background(), &domain.LedgerEvent{
		SequenceNo:  1,
		PrevHash:    "h0",
		ThisHash:    "forged",
		EventType:   domain.EventSystem,
		PrincipalID: "user_2",
		RoleAtTime:  "admin",
		CreatedAt:   now,
	})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestLedgerEventRepo_ListRange(t *testing.T) {
	repo := setupLedgerEventRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := int64(1); i <= 5; i++ {
		insertTestEvent(t, repo, i, domain.EventQuery, "", now)
	}

	t.Run("bounded", func(t *testing.T) {
		events, err := repo.ListRange(ctx, 2, 4, 100)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.EqualValues(t, 2, events[0].SequenceNo)
		assert.EqualValues(t, 4, events[2].SequenceNo)
	})

	t.Run("unbounded upper", func(t *testing.T) {
		events, err := repo.ListRange(ctx, 3, 0, 100)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.EqualValues(t, 5, events[2].SequenceNo)
	})

	t.Run("limit caps batch", func(t *testing.T) {
		events, err := repo.ListRange(ctx, 1, 0, 2)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})
}

func TestLedgerEventRepo_ListBySubject(t *testing.T) {
	repo := setupLedgerEventRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	insertTestEvent(t, repo, 1, domain.EventDecision, "app_1", now)
	insertTestEvent(t, repo, 2, domain.EventDataAccess, "app_2", now)
	insertTestEvent(t, repo, 3, domain.EventOverride, "app_1", now)

	events, total, err := repo.ListBySubject(ctx, "app_1", domain.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, events, 2)
	assert.EqualValues(t, 1, events[0].SequenceNo)
	assert.EqualValues(t, 3, events[1].SequenceNo)
}

func TestLedgerEventRepo_ListByTime(t *testing.T) {
	repo := setupLedgerEventRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	insertTestEvent(t, repo, 1, domain.EventDecision, "app_1", base)
	insertTestEvent(t, repo, 2, domain.EventSecurityEvent, "", base.Add(1*time.Hour))
	insertTestEvent(t, repo, 3, domain.EventDecision, "app_2", base.Add(2*time.Hour))

	t.Run("window", func(t *testing.T) {
		events, total, err := repo.ListByTime(ctx, domain.LedgerTimeFilter{
			From: base,
			To:   base.Add(90 * time.Minute),
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, events, 2)
	})

	t.Run("window and type", func(t *testing.T) {
		et := domain.EventDecision
		events, total, err := repo.ListByTime(ctx, domain.LedgerTimeFilter{
			From:      base,
			To:        base.Add(3 * time.Hour),
			EventType: &et,
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, events, 2)
		for _, ev := range events {
			assert.Equal(t, domain.EventDecision, ev.EventType)
		}
	})

	t.Run("exclusive upper bound", func(t *testing.T) {
		events, total, err := repo.ListByTime(ctx, domain.LedgerTimeFilter{
			From: base,
			To:   base.Add(1 * time.Hour),
		})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, events, 1)
		assert.EqualValues(t, 1, events[0].SequenceNo)
	})
}

func TestLedgerEventRepo_EmptySubjectStoredAsNull(t *testing.T) {
	repo := setupLedgerEventRepo(t)
	ctx := context.Background()

	insertTestEvent(t, repo, 1, domain.EventSystem, "", time.Now().UTC())

	ev, err := repo.GetBySequence(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ev.SubjectID)

	_, total, err := repo.ListBySubject(ctx, "", domain.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total, "NULL subject rows must not match an empty-string subject query")
}
