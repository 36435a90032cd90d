package domain

import "time"

// IsolatedRecord is one demographic record. It exists only inside the
// isolated partition; nothing in the general path holds this type after
// collection, and no general-path query can reach its fields.
type IsolatedRecord struct {
	ID           string
	SubjectID    string
	Attributes   map[string]string
	CollectedVia string
	CreatedAt    time.Time
}

// Validate checks that the record is well-formed before it enters the
// isolated partition.
func (r *IsolatedRecord) Validate() error {
	if r.SubjectID == "" {
		return ErrValidation("subject_id is required")
	}
	if len(r.Attributes) == 0 {
		return ErrValidation("at least one attribute is required")
	}
	for k := range r.Attributes {
		if k == "" {
			return ErrValidation("attribute names cannot be empty")
		}
	}
	return nil
}

// AggregateSpec describes one threshold-gated aggregation over the isolated
// partition. GroupBy names isolated attribute keys; Statuses optionally
// narrows to applications in the given states via the subject join.
type AggregateSpec struct {
	GroupBy  []string
	Statuses []string
}

// Validate checks that the aggregation request is well-formed.
func (s *AggregateSpec) Validate() error {
	if len(s.GroupBy) == 0 {
		return ErrValidation("group_by is required")
	}
	if len(s.GroupBy) > 2 {
		return ErrValidation("at most two group_by attributes are allowed")
	}
	for _, g := range s.GroupBy {
		if g == "" {
			return ErrValidation("group_by attributes cannot be empty")
		}
	}
	return nil
}

// AggregateStatistic is the only representation of isolated data permitted
// to cross into the general path: non-reversible counts and ratios over a
// group no smaller than the configured minimum sample size.
type AggregateStatistic struct {
	GroupLabels map[string]string
	Values      map[string]float64
	SampleSize  int
}

// ExtractedContent is free-form content from the document-processing
// collaborator, screened before it may enter the general path.
type ExtractedContent struct {
	Payload   map[string]string
	SourceRef string
}

// Validate checks that the content is well-formed.
func (c *ExtractedContent) Validate() error {
	if c.SourceRef == "" {
		return ErrValidation("source_ref is required")
	}
	return nil
}
