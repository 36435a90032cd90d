package policy

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"fairgate/internal/domain"
)

// Store holds the active policy snapshot. Current never blocks and never
// does I/O; Load swaps in a new snapshot atomically and keeps the previous
// one on any failure.
type Store struct {
	path     string
	logger   *slog.Logger
	attempts int
	backoff  time.Duration

	mu      sync.Mutex // serializes Load
	version atomic.Int64
	current atomic.Pointer[Snapshot]
}

// StoreOptions tunes retry behavior for transient read failures.
type StoreOptions struct {
	// Attempts bounds reads of the policy file per Load call. Zero means 3.
	Attempts int
	// Backoff is the base delay between attempts, scaled linearly. Zero
	// means 250ms.
	Backoff time.Duration
}

// NewStore creates a Store for the given policy file. No snapshot is loaded
// yet; until the first successful Load every Current call fails and callers
// deny.
func NewStore(path string, logger *slog.Logger, opts StoreOptions) *Store {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 250 * time.Millisecond
	}
	return &Store{
		path:     path,
		logger:   logger,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
	}
}

// Current returns the active snapshot. With no successfully loaded snapshot
// it returns an error; callers treat that as deny-all.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, domain.ErrPolicyLoad(nil, "no policy snapshot loaded")
	}
	return snap, nil
}

// Load reads, validates, and atomically swaps in the policy file. Transient
// read failures are retried with bounded backoff; a file that parses or
// validates badly is definitive and is not retried. On any failure the
// previous snapshot, if any, stays active.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readWithRetry(ctx)
	if err != nil {
		s.logger.Warn("policy load failed, previous snapshot retained",
			"path", s.path, "error", err)
		return nil, domain.ErrPolicyLoad(err, "load policy from %s", s.path)
	}

	snap, err := Parse(data)
	if err != nil {
		s.logger.Warn("policy rejected, previous snapshot retained",
			"path", s.path, "error", err)
		return nil, domain.ErrPolicyLoad(err, "validate policy from %s", s.path)
	}

	snap.Version = s.version.Add(1)
	s.current.Store(snap)
	s.logger.Info("policy loaded",
		"path", s.path, "version", snap.Version, "hash", snap.Hash,
		"roles", len(snap.roles), "operations", len(snap.operations))
	return snap, nil
}

func (s *Store) readWithRetry(ctx context.Context) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		data, err := os.ReadFile(s.path)
		if err == nil {
			return data, nil
		}
		lastErr = err
		// A missing file is definitive, not transient.
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}
