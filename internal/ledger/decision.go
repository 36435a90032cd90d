package ledger

import (
	"context"

	"fairgate/internal/domain"
)

// RecordDecision appends a decision or override event for a case. The
// payload keeps the recommender output and the human outcome side by side
// so a later trace shows what was proposed and what was actually done.
func (s *Service) RecordDecision(ctx context.Context, caller *domain.Principal, rec domain.DecisionRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	kind := domain.EventDecision
	payload := map[string]any{"outcome": rec.Outcome}
	if rec.Override {
		kind = domain.EventOverride
		payload["override"] = true
	}
	if rec.Rationale != "" {
		payload["rationale"] = rec.Rationale
	}
	if rec.RecommenderOutput != "" {
		payload["recommender_output"] = rec.RecommenderOutput
	}
	if rec.HumanOutput != "" {
		payload["human_output"] = rec.HumanOutput
	}

	return s.Append(ctx, domain.EventInput{
		EventType:   kind,
		PrincipalID: caller.ID,
		RoleAtTime:  string(caller.Role),
		SubjectID:   rec.SubjectID,
		Payload:     payload,
	})
}
