package ledger

import (
	"context"

	"fairgate/internal/domain"
)

// maskEvents re-applies the caller's field mask to every event leaving the
// ledger boundary. Masking here is never trusted from upstream.
func (s *Service) maskEvents(caller *domain.Principal, operation string, events []domain.LedgerEvent) ([]domain.LedgerEvent, error) {
	snap, err := s.policies.Current()
	if err != nil {
		return nil, err
	}
	mask := snap.MaskFor(caller.Role, operation)
	if mask.Empty() {
		return events, nil
	}
	for i := range events {
		events[i].Payload = mask.Apply(events[i].Payload)
	}
	return events, nil
}

// QueryBySubject returns every event for one case, in sequence order,
// masked for the caller.
func (s *Service) QueryBySubject(ctx context.Context, caller *domain.Principal, subjectID string, page domain.PageRequest) ([]domain.LedgerEvent, int64, error) {
	events, total, err := s.repo.ListBySubject(ctx, subjectID, page)
	if err != nil {
		return nil, 0, err
	}
	events, err = s.maskEvents(caller, domain.OpLedgerQuery, events)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Trace is a decision-centric view: the decision event and every earlier
// event sharing its subject.
type Trace struct {
	Decision domain.LedgerEvent
	Related  []domain.LedgerEvent
}

// DecisionTrace loads a decision or override event and walks backward
// through everything recorded for the same subject up to that point.
func (s *Service) DecisionTrace(ctx context.Context, caller *domain.Principal, sequenceNo int64, page domain.PageRequest) (*Trace, error) {
	event, err := s.repo.GetBySequence(ctx, sequenceNo)
	if err != nil {
		return nil, err
	}
	if event.EventType != domain.EventDecision && event.EventType != domain.EventOverride {
		return nil, domain.ErrValidation("event %d is %s, want decision or override", sequenceNo, event.EventType)
	}

	trace := &Trace{Decision: *event}
	if event.SubjectID != "" {
		related, _, err := s.repo.ListBySubject(ctx, event.SubjectID, page)
		if err != nil {
			return nil, err
		}
		trace.Related = make([]domain.LedgerEvent, 0, len(related))
		for _, r := range related {
			if r.SequenceNo < event.SequenceNo {
				trace.Related = append(trace.Related, r)
			}
		}
	}

	masked, err := s.maskEvents(caller, domain.OpLedgerQuery, append([]domain.LedgerEvent{trace.Decision}, trace.Related...))
	if err != nil {
		return nil, err
	}
	trace.Decision = masked[0]
	trace.Related = masked[1:]
	return trace, nil
}

// QueryPattern returns events in a time window, optionally narrowed to one
// event type and filtered by a sandboxed payload predicate. The returned
// total counts window events before predicate filtering.
func (s *Service) QueryPattern(ctx context.Context, caller *domain.Principal, filter domain.LedgerTimeFilter, predicateSrc string) ([]domain.LedgerEvent, int64, error) {
	events, total, err := s.repo.ListByTime(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	if predicateSrc != "" {
		pred, err := CompilePredicate(predicateSrc)
		if err != nil {
			return nil, 0, err
		}
		kept := events[:0]
		for i := range events {
			ok, err := pred.Match(&events[i])
			if err != nil {
				return nil, 0, err
			}
			if ok {
				kept = append(kept, events[i])
			}
		}
		events = kept
	}

	events, err = s.maskEvents(caller, domain.OpLedgerQuery, events)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
