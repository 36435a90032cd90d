// Package gateway is the single authorization point every route and agent
// tool invocation passes through before it executes. It evaluates the caller
// against the active policy snapshot, constrains allowed operations with
// scope filters and field masks, and records every evaluation in the ledger
// regardless of outcome.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"fairgate/internal/domain"
	"fairgate/internal/policy"
)

// deniedMessage is the only refusal text a caller ever sees. Internal denial
// reasons stay in the decision record and the ledger.
const deniedMessage = "operation not permitted"

// DenialSink observes every denial so repeated-denial patterns can raise an
// operator alert without coupling the gateway to the alerting pipeline.
type DenialSink interface {
	RecordDenial(principalID, operation string)
}

// Request is one operation evaluation. Kind selects the ledger event type
// the decision is recorded under: EventQuery for HTTP routes, EventToolCall
// for agent tool invocations. SubjectID names the case the operation
// touches, when there is one.
type Request struct {
	Principal *domain.Principal
	Operation string
	SubjectID string
	Kind      domain.EventType
}

// Service evaluates access requests. It never executes the operation itself:
// on ALLOW the caller receives the scope filter and field mask it must apply
// before touching storage.
type Service struct {
	policies *policy.Store
	ledger   domain.LedgerAppender
	logger   *slog.Logger
	denials  DenialSink
	now      func() time.Time
}

// NewService creates the gateway over a policy store and the ledger.
func NewService(policies *policy.Store, ledger domain.LedgerAppender, logger *slog.Logger) *Service {
	return &Service{
		policies: policies,
		ledger:   ledger,
		logger:   logger,
		now:      time.Now,
	}
}

// SetDenialSink registers an observer for denials. Optional; wired by the
// application so the gateway stays ignorant of alert thresholds.
func (s *Service) SetDenialSink(d DenialSink) { s.denials = d }

// Authorize evaluates one operation for one principal:
//
//  1. The credential must be unexpired; expiry is rechecked on every call so
//     a long-lived agent conversation cannot outlive its token.
//  2. The role must be exactly one member of the closed role set. Zero,
//     several, or unknown roles deny and are logged as a configuration
//     anomaly, never widened to a permissive default.
//  3. The operation is looked up in the active policy snapshot. No snapshot
//     means every request denies until one loads.
//  4. A granted scope template is instantiated against the principal's
//     attributes; a missing attribute denies rather than unscoping.
//
// Every evaluation, allowed or denied, is appended to the ledger before the
// decision is returned. If the ledger cannot record it, the evaluation fails
// with that storage error: an unauditable operation does not proceed.
func (s *Service) Authorize(ctx context.Context, req Request) (domain.Decision, error) {
	if err := ctx.Err(); err != nil {
		return domain.Decision{}, err
	}
	if req.Principal == nil {
		return domain.Decision{}, domain.ErrAuthentication("no verified credential")
	}
	p := req.Principal

	if p.Expired(s.now()) {
		d, err := s.deny(ctx, req, "credential expired")
		if err != nil {
			return domain.Decision{}, err
		}
		return d, domain.ErrAuthentication("credential expired")
	}

	if _, err := domain.ParseRole(string(p.Role)); err != nil {
		s.logger.Warn("configuration anomaly: credential resolves to no single valid role",
			"principal_id", p.ID,
			"role_claim", string(p.Role),
			"operation", req.Operation)
		return s.denyClosed(ctx, req, "credential resolves to no single valid role")
	}

	snap, err := s.policies.Current()
	if err != nil {
		s.logger.Warn("authorization failing closed: no policy snapshot",
			"operation", req.Operation, "error", err)
		return s.denyClosed(ctx, req, "no policy snapshot loaded")
	}

	grant, ok := snap.Grant(p.Role, req.Operation)
	if !ok {
		reason := "role holds no grant for operation"
		if !snap.KnownOperation(req.Operation) {
			reason = "operation not registered"
		}
		return s.denyClosed(ctx, req, reason)
	}

	d := domain.Decision{Outcome: domain.OutcomeAllow, FieldMask: grant.Mask()}
	if grant.Scope != nil {
		filter, ferr := grant.Scope.Filter(p)
		if ferr != nil {
			s.logger.Warn("configuration anomaly: scope template unresolvable for principal",
				"principal_id", p.ID,
				"operation", req.Operation,
				"scope", grant.Scope.String(),
				"error", ferr)
			return s.denyClosed(ctx, req, ferr.Error())
		}
		d.ScopeFilter = filter
	}

	if err := s.record(ctx, req, d); err != nil {
		return domain.Decision{}, err
	}
	return d, nil
}

// denyClosed records a denial and returns it with the generic refusal. Only
// a ledger failure replaces the refusal, so storage outages stay
// distinguishable from policy decisions for the caller's retry logic.
func (s *Service) denyClosed(ctx context.Context, req Request, reason string) (domain.Decision, error) {
	d, err := s.deny(ctx, req, reason)
	if err != nil {
		return domain.Decision{}, err
	}
	return d, domain.ErrAccessDenied(deniedMessage)
}

// deny records a deny decision. The returned error is non-nil only when the
// ledger could not record the evaluation.
func (s *Service) deny(ctx context.Context, req Request, reason string) (domain.Decision, error) {
	d := domain.Decision{Outcome: domain.OutcomeDeny, Reason: reason}
	if err := s.record(ctx, req, d); err != nil {
		return domain.Decision{}, err
	}
	if s.denials != nil {
		s.denials.RecordDenial(req.Principal.ID, req.Operation)
	}
	return d, nil
}

// record appends the access decision to the ledger. The event carries the
// full internal picture: outcome, denial reason, the scope filter and mask
// the caller was constrained to.
func (s *Service) record(ctx context.Context, req Request, d domain.Decision) error {
	kind := req.Kind
	if kind != domain.EventToolCall {
		kind = domain.EventQuery
	}
	payload := map[string]any{
		"operation": req.Operation,
		"outcome":   string(d.Outcome),
	}
	if d.Reason != "" {
		payload["denial_reason"] = d.Reason
	}
	if d.ScopeFilter != nil {
		payload["scope_filter_applied"] = d.ScopeFilter.String()
	}
	if !d.FieldMask.Empty() {
		payload["masked_fields"] = d.FieldMask.String()
	}
	_, err := s.ledger.Append(ctx, domain.EventInput{
		EventType:   kind,
		PrincipalID: req.Principal.ID,
		RoleAtTime:  string(req.Principal.Role),
		SubjectID:   req.SubjectID,
		Payload:     payload,
	})
	if err != nil {
		s.logger.Error("access decision could not be recorded",
			"principal_id", req.Principal.ID,
			"operation", req.Operation,
			"error", err)
		return err
	}
	return nil
}
