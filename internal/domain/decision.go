package domain

import (
	"sort"
	"strings"
	"time"
)

// Outcome is the result of a gateway evaluation.
type Outcome string

const (
	OutcomeAllow Outcome = "ALLOW"
	OutcomeDeny  Outcome = "DENY"
)

// ScopeFilter is a query constraint the caller must apply before touching
// storage. The gateway authorizes and constrains; it never runs the query.
type ScopeFilter struct {
	Column string
	Value  string
}

// String renders the filter for logging and ledger payloads, e.g.
// "assigned_to = officer_7".
func (f ScopeFilter) String() string {
	return f.Column + " = " + f.Value
}

// FieldMask lists fields that must be redacted from responses and ledger
// payloads before they reach the caller's role.
type FieldMask struct {
	Fields []string
}

// Empty reports whether the mask redacts nothing.
func (m FieldMask) Empty() bool { return len(m.Fields) == 0 }

// Covers reports whether the named field is masked.
func (m FieldMask) Covers(field string) bool {
	for _, f := range m.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Apply returns a copy of payload with every masked field replaced by
// MaskedValue. Nested maps are walked; the original map is not modified.
func (m FieldMask) Apply(payload map[string]any) map[string]any {
	if m.Empty() || payload == nil {
		return payload
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if m.Covers(k) {
			out[k] = MaskedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = m.Apply(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// String renders the mask field list sorted, for stable ledger payloads.
func (m FieldMask) String() string {
	fields := append([]string(nil), m.Fields...)
	sort.Strings(fields)
	return strings.Join(fields, ",")
}

// MaskedValue replaces redacted field values in responses and payloads.
const MaskedValue = "[REDACTED]"

// Decision is the outbound result of Authorize.
type Decision struct {
	Outcome     Outcome
	ScopeFilter *ScopeFilter
	FieldMask   FieldMask
	// Reason is internal only; callers receive generic refusals.
	Reason string
}

// Allowed reports whether the decision permits the operation.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllow }

// AccessDecision is the immutable record of one gateway evaluation. It is
// created once per request and always emitted to the ledger.
type AccessDecision struct {
	PrincipalID        string
	Role               Role
	Operation          string
	Outcome            Outcome
	DenialReason       string
	ScopeFilterApplied string
	MaskedFields       string
	Timestamp          time.Time
}
