package domain

import "time"

// ApplicationStatus represents the lifecycle state of a loan application.
type ApplicationStatus string

// Application lifecycle statuses.
const (
	ApplicationStatusReceived ApplicationStatus = "RECEIVED"
	ApplicationStatusInReview ApplicationStatus = "IN_REVIEW"
	ApplicationStatusDecided  ApplicationStatus = "DECIDED"
	ApplicationStatusClosed   ApplicationStatus = "CLOSED"
)

// Application is the general-path view of a loan application. Demographic
// attributes are never part of this type; they live behind the isolation
// boundary and are collected separately.
type Application struct {
	ID            string
	ApplicantName string
	SSNLast4      string
	IncomeCents   int64
	AmountCents   int64
	Status        ApplicationStatus
	AssignedTo    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Payload renders the application as a ledger/API payload map. Field names
// here are the ones policy mask rules refer to.
func (a *Application) Payload() map[string]any {
	return map[string]any{
		"id":             a.ID,
		"applicant_name": a.ApplicantName,
		"ssn_last4":      a.SSNLast4,
		"income_cents":   a.IncomeCents,
		"amount_cents":   a.AmountCents,
		"status":         string(a.Status),
		"assigned_to":    a.AssignedTo,
		"created_at":     a.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":     a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateApplicationRequest holds parameters for registering an application.
type CreateApplicationRequest struct {
	ApplicantName string
	SSNLast4      string
	IncomeCents   int64
	AmountCents   int64
	AssignedTo    string
}

// Validate checks that the request is well-formed.
func (r *CreateApplicationRequest) Validate() error {
	if r.ApplicantName == "" {
		return ErrValidation("applicant_name is required")
	}
	if r.AmountCents <= 0 {
		return ErrValidation("amount_cents must be positive")
	}
	if r.AssignedTo == "" {
		return ErrValidation("assigned_to is required")
	}
	return nil
}
