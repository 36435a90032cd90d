package domain

import "time"

// EventType classifies ledger events.
type EventType string

const (
	EventQuery         EventType = "query"
	EventToolCall      EventType = "tool_call"
	EventDataAccess    EventType = "data_access"
	EventDecision      EventType = "decision"
	EventOverride      EventType = "override"
	EventSecurityEvent EventType = "security_event"
	EventSystem        EventType = "system"
)

var knownEventTypes = map[EventType]bool{
	EventQuery:         true,
	EventToolCall:      true,
	EventDataAccess:    true,
	EventDecision:      true,
	EventOverride:      true,
	EventSecurityEvent: true,
	EventSystem:        true,
}

// ParseEventType validates an event type string.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !knownEventTypes[t] {
		return "", ErrValidation("unknown event type %q", s)
	}
	return t, nil
}

// Severity levels used inside security_event payloads. Routine denials log at
// SeverityRoutine; isolation breaches and tamper attempts are elevated.
const (
	SeverityRoutine  = "routine"
	SeverityElevated = "elevated"
	SeverityHigh     = "high"
)

// EventInput is the caller-supplied portion of a ledger event. The ledger
// assigns sequence number, hashes, and server timestamp.
type EventInput struct {
	EventType   EventType
	PrincipalID string
	RoleAtTime  string
	SubjectID   string
	Payload     map[string]any
}

// LedgerEvent is one immutable, hash-chained record. Once written no field
// changes; attempted mutation is itself recorded as a security_event.
type LedgerEvent struct {
	SequenceNo  int64
	PrevHash    string
	ThisHash    string
	EventType   EventType
	PrincipalID string
	RoleAtTime  string
	SubjectID   string
	Payload     map[string]any
	CreatedAt   time.Time
}

// DecisionRecord is what business/decision logic submits for a decision or
// override ledger event.
type DecisionRecord struct {
	SubjectID         string
	Outcome           string
	Rationale         string
	RecommenderOutput string
	HumanOutput       string
	Override          bool
}

// Validate checks that the record is well-formed.
func (r *DecisionRecord) Validate() error {
	if r.SubjectID == "" {
		return ErrValidation("subject_id is required")
	}
	if r.Outcome == "" {
		return ErrValidation("outcome is required")
	}
	return nil
}
