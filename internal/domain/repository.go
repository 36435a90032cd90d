package domain

import (
	"context"
	"time"
)

// ApplicationRepository provides general-path access to loan applications.
// Scope filters are applied inside the repository so that an out-of-scope
// row and a missing row are indistinguishable to the caller.
type ApplicationRepository interface {
	Create(ctx context.Context, a *Application) (*Application, error)
	GetByID(ctx context.Context, id string, scope *ScopeFilter) (*Application, error)
	List(ctx context.Context, scope *ScopeFilter, page PageRequest) ([]Application, int64, error)
	SetStatus(ctx context.Context, id string, status ApplicationStatus) error
}

// LedgerTimeFilter selects events by time window, type, and page.
type LedgerTimeFilter struct {
	From      time.Time
	To        time.Time
	EventType *EventType
	Page      PageRequest
}

// LedgerEventRepository persists and reads hash-chained events. The backing
// storage credential holds INSERT and SELECT only; UPDATE and DELETE are
// refused below this interface.
type LedgerEventRepository interface {
	Insert(ctx context.Context, e *LedgerEvent) error
	Head(ctx context.Context) (seq int64, hash string, err error)
	GetBySequence(ctx context.Context, seq int64) (*LedgerEvent, error)
	ListRange(ctx context.Context, fromSeq, toSeq int64, limit int) ([]LedgerEvent, error)
	ListBySubject(ctx context.Context, subjectID string, page PageRequest) ([]LedgerEvent, int64, error)
	ListByTime(ctx context.Context, filter LedgerTimeFilter) ([]LedgerEvent, int64, error)
}

// LedgerAppender accepts events for the hash-chained ledger. A failed append
// must fail the operation that triggered it.
type LedgerAppender interface {
	Append(ctx context.Context, in EventInput) (int64, error)
}

// ExportDestinationRepository provides CRUD operations for export
// destinations.
type ExportDestinationRepository interface {
	Create(ctx context.Context, d *ExportDestination) (*ExportDestination, error)
	GetByName(ctx context.Context, name string) (*ExportDestination, error)
	List(ctx context.Context, page PageRequest) ([]ExportDestination, int64, error)
	Delete(ctx context.Context, name string) error
}
