package ledger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "fairgate/internal/db"
	"fairgate/internal/db/repository"
	"fairgate/internal/domain"
	"fairgate/internal/policy"
)

type testLedger struct {
	svc      *Service
	repo     *repository.LedgerEventRepo
	appendDB *sql.DB
	policies *policy.Store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func writeAndLoadPolicy(t *testing.T, yamlSrc string) *policy.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlSrc), 0o600))
	store := policy.NewStore(path, discardLogger(), policy.StoreOptions{})
	_, err := store.Load(context.Background())
	require.NoError(t, err)
	return store
}

func setupLedger(t *testing.T) *testLedger {
	t.Helper()

	appendDB, readDB := internaldb.OpenTestLedger(t)
	repo := repository.NewLedgerEventRepo(appendDB, readDB)
	policies := writeAndLoadPolicy(t, policy.DefaultYAML)

	return &testLedger{
		svc:      NewService(repo, policies, discardLogger()),
		repo:     repo,
		appendDB: appendDB,
		policies: policies,
	}
}

func newEmptyPolicyStore(t *testing.T) *policy.Store {
	t.Helper()
	return policy.NewStore(filepath.Join(t.TempDir(), "never-loaded.yaml"), discardLogger(), policy.StoreOptions{})
}

func decisionInput(subjectID, outcome string) domain.EventInput {
	return domain.EventInput{
		EventType:   domain.EventDecision,
		PrincipalID: "officer_7",
		RoleAtTime:  "loan_officer",
		SubjectID:   subjectID,
		Payload:     map[string]any{"outcome": outcome, "ssn_last4": "1234"},
	}
}

func TestService_AppendExtendsChain(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	seq1, err := l.svc.Append(ctx, decisionInput("app_1", "ALLOW"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, seq1)

	seq2, err := l.svc.Append(ctx, decisionInput("app_2", "DENY"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq2)

	first, err := l.repo.GetBySequence(ctx, 1)
	require.NoError(t, err)
	second, err := l.repo.GetBySequence(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, GenesisHash, first.PrevHash)
	assert.Equal(t, first.ThisHash, second.PrevHash)
	assert.NotEqual(t, first.ThisHash, second.ThisHash)

	recomputed, err := ChainHash(first.PrevHash, first)
	require.NoError(t, err)
	assert.Equal(t, first.ThisHash, recomputed)
}

func TestService_AppendStampsRequestID(t *testing.T) {
	l := setupLedger(t)
	ctx := domain.WithRequestID(context.Background(), "req_41f2")

	seq, err := l.svc.Append(ctx, decisionInput("app_1", "ALLOW"))
	require.NoError(t, err)

	ev, err := l.repo.GetBySequence(ctx, seq)
	require.NoError(t, err)
	assert.Equal(t, "req_41f2", ev.Payload["request_id"])

	// Appends from schedulers and CLI runs carry no request id.
	seq, err = l.svc.Append(context.Background(), domain.EventInput{
		EventType:   domain.EventSystem,
		PrincipalID: "system",
		RoleAtTime:  "system",
	})
	require.NoError(t, err)
	ev, err = l.repo.GetBySequence(ctx, seq)
	require.NoError(t, err)
	assert.NotContains(t, ev.Payload, "request_id")
}

func TestService_ResumesHeadAcrossRestart(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.svc.Append(ctx, decisionInput("app_1", "ALLOW"))
		require.NoError(t, err)
	}

	// A new service over the same storage picks up the chain tail.
	svc2 := NewService(l.repo, l.policies, discardLogger())
	seq, err := svc2.Append(ctx, decisionInput("app_1", "DENY"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, seq)

	res, err := svc2.VerifyChain(ctx, 1, 0)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.EqualValues(t, 4, res.Checked)
}

// Ten writers appending concurrently must produce a gap-free sequence and a
// single unbranched chain.
func TestService_ConcurrentAppends(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	const writers = 10
	const perWriter = 100

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := l.svc.Append(ctx, decisionInput("app_1", "ALLOW")); err != nil {
					errs[w] = err
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w, err := range errs {
		require.NoError(t, err, "writer %d", w)
	}

	seq, _, err := l.repo.Head(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, writers*perWriter, seq)

	res, err := l.svc.VerifyChain(ctx, 1, 0)
	require.NoError(t, err)
	assert.True(t, res.Valid, "chain broken at %v", res.FirstBrokenAt)
	assert.EqualValues(t, writers*perWriter, res.Checked)
}

func TestService_CanceledContextWritesNothing(t *testing.T) {
	l := setupLedger(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.svc.Append(ctx, decisionInput("app_1", "ALLOW"))
	require.Error(t, err)

	seq, _, headErr := l.repo.Head(context.Background())
	require.NoError(t, headErr)
	assert.EqualValues(t, 0, seq)
}

type failingRepo struct {
	domain.LedgerEventRepository
	insertErr error
}

func (r *failingRepo) Insert(ctx context.Context, e *domain.LedgerEvent) error {
	return r.insertErr
}

func (r *failingRepo) Head(ctx context.Context) (int64, string, error) {
	return 0, "", nil
}

func TestService_StorageFailurePropagates(t *testing.T) {
	l := setupLedger(t)

	svc := NewService(&failingRepo{insertErr: errors.New("disk on fire")}, l.policies, discardLogger())
	_, err := svc.Append(context.Background(), decisionInput("app_1", "ALLOW"))

	var lu *domain.LedgerUnavailableError
	require.ErrorAs(t, err, &lu)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestService_MutationAttemptBecomesSecurityEvent(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	for i := 0; i < 42; i++ {
		_, err := l.svc.Append(ctx, decisionInput("app_1", "ALLOW"))
		require.NoError(t, err)
	}

	// Tampering attempt through the restricted credential.
	_, delErr := l.appendDB.Exec(`DELETE FROM ledger_events WHERE sequence_no = 42`)
	require.Error(t, delErr)
	require.True(t, IsMutationDenial(delErr))

	seq, err := l.svc.RecordMutationAttempt(ctx, "rogue_admin", "admin", 42, "DELETE", delErr)
	require.NoError(t, err)
	assert.EqualValues(t, 43, seq)

	ev, err := l.repo.GetBySequence(ctx, 43)
	require.NoError(t, err)
	assert.Equal(t, domain.EventSecurityEvent, ev.EventType)
	assert.Equal(t, domain.SeverityHigh, ev.Payload["severity"])
	assert.EqualValues(t, 42, ev.Payload["target_sequence_no"])
	assert.Equal(t, "DELETE", ev.Payload["attempted_operation"])

	// Event 42 is intact and the chain still verifies end to end.
	res, err := l.svc.VerifyChain(ctx, 1, 0)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.EqualValues(t, 43, res.Checked)
}

func TestIsMutationDenial(t *testing.T) {
	assert.False(t, IsMutationDenial(nil))
	assert.False(t, IsMutationDenial(errors.New("connection reset")))
	assert.True(t, IsMutationDenial(errors.New("ledger events are append-only")))
}
