package ledger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fairgate/internal/db"
	"fairgate/internal/domain"
	"fairgate/internal/policy"
)

var _ domain.LedgerAppender = (*Service)(nil)

// Service is the single writer for the hash-chained ledger. All appends
// pass through one mutex so two concurrent writers can never take the same
// sequence number or branch the chain.
type Service struct {
	repo     domain.LedgerEventRepository
	policies *policy.Store
	logger   *slog.Logger

	mu         sync.Mutex
	headSeq    int64
	headHash   string
	headLoaded bool
}

// NewService creates the ledger service. The chain head is read lazily on
// first append.
func NewService(repo domain.LedgerEventRepository, policies *policy.Store, logger *slog.Logger) *Service {
	return &Service{repo: repo, policies: policies, logger: logger}
}

// Append assigns the next sequence number, extends the hash chain, and
// persists the event. Content never fails an append; storage failure does,
// and the caller must fail the operation that triggered the event.
func (s *Service) Append(ctx context.Context, in domain.EventInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if !s.headLoaded {
		seq, hash, err := s.repo.Head(ctx)
		if err != nil {
			return 0, domain.ErrLedgerUnavailable(err)
		}
		s.headSeq, s.headHash = seq, hash
		if s.headSeq == 0 {
			s.headHash = GenesisHash
		}
		s.headLoaded = true
	}

	// Correlate with the originating request when one is in the context.
	if rid := domain.RequestIDFromContext(ctx); rid != "" {
		if in.Payload == nil {
			in.Payload = map[string]any{}
		}
		in.Payload["request_id"] = rid
	}

	event := &domain.LedgerEvent{
		SequenceNo:  s.headSeq + 1,
		PrevHash:    s.headHash,
		EventType:   in.EventType,
		PrincipalID: in.PrincipalID,
		RoleAtTime:  in.RoleAtTime,
		SubjectID:   in.SubjectID,
		Payload:     in.Payload,
		CreatedAt:   time.Now().UTC(),
	}

	thisHash, err := ChainHash(event.PrevHash, event)
	if err != nil {
		return 0, err
	}
	event.ThisHash = thisHash

	if err := s.repo.Insert(ctx, event); err != nil {
		// The in-memory head may be stale (another writer, crashed insert);
		// re-read it on the next append rather than trusting it.
		s.headLoaded = false
		return 0, domain.ErrLedgerUnavailable(err)
	}

	s.headSeq = event.SequenceNo
	s.headHash = event.ThisHash

	s.logger.Debug("ledger event appended",
		"sequence_no", event.SequenceNo,
		"event_type", string(event.EventType),
		"principal_id", event.PrincipalID)
	return event.SequenceNo, nil
}

// IsMutationDenial reports whether an error came from the storage layer
// refusing to modify ledger rows, either at the connection credential or
// through the schema triggers.
func IsMutationDenial(err error) bool {
	if err == nil {
		return false
	}
	if db.IsAuthorizerDenial(err) {
		return true
	}
	return strings.Contains(err.Error(), "append-only")
}

// RecordMutationAttempt converts a storage-layer mutation denial into a
// high-severity security_event referencing the targeted sequence number.
func (s *Service) RecordMutationAttempt(ctx context.Context, principalID, role string, targetSeq int64, attempted string, denial error) (int64, error) {
	payload := map[string]any{
		"severity":            domain.SeverityHigh,
		"attempted_operation": attempted,
		"target_sequence_no":  targetSeq,
	}
	if denial != nil {
		payload["denial"] = denial.Error()
	}

	seq, err := s.Append(ctx, domain.EventInput{
		EventType:   domain.EventSecurityEvent,
		PrincipalID: principalID,
		RoleAtTime:  role,
		Payload:     payload,
	})
	if err != nil {
		return 0, err
	}

	s.logger.Error("ledger mutation attempt recorded",
		"sequence_no", seq,
		"target_sequence_no", targetSeq,
		"attempted_operation", attempted,
		"principal_id", principalID)
	return seq, nil
}
