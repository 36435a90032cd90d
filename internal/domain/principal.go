package domain

import "time"

// Role is the closed set of roles the platform recognizes. Anything outside
// this set is treated as no valid role.
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleLoanOfficer     Role = "loan_officer"
	RoleUnderwriter     Role = "underwriter"
	RoleCompliance      Role = "compliance_officer"
	RoleFairnessAnalyst Role = "fairness_analyst"
	RoleIntakeAgent     Role = "intake_agent"
)

var knownRoles = map[Role]bool{
	RoleAdmin:           true,
	RoleLoanOfficer:     true,
	RoleUnderwriter:     true,
	RoleCompliance:      true,
	RoleFairnessAnalyst: true,
	RoleIntakeAgent:     true,
}

// ParseRole validates a role string against the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !knownRoles[r] {
		return "", ErrValidation("unknown role %q", s)
	}
	return r, nil
}

// DeriveRole maps the role claims of a verified credential to exactly one
// valid role. Zero claims, multiple claims, and unknown names all yield an
// error: ambiguity is never resolved toward the more permissive option.
func DeriveRole(claims []string) (Role, error) {
	if len(claims) == 0 {
		return "", ErrValidation("credential carries no role")
	}
	if len(claims) > 1 {
		return "", ErrValidation("credential carries %d roles, expected exactly one", len(claims))
	}
	return ParseRole(claims[0])
}

// Principal is an authenticated caller, reconstructed per request from a
// signed credential. It is never persisted.
type Principal struct {
	ID              string
	Role            Role
	ScopeAttributes map[string]string
	TokenExpiry     time.Time
}

// Expired reports whether the backing credential has expired as of now.
func (p Principal) Expired(now time.Time) bool {
	return !p.TokenExpiry.IsZero() && now.After(p.TokenExpiry)
}

// ScopeAttribute returns a named scope attribute. The principal id is always
// available under "id" even when no explicit attributes were issued.
func (p Principal) ScopeAttribute(name string) (string, bool) {
	if name == "id" {
		return p.ID, true
	}
	v, ok := p.ScopeAttributes[name]
	return v, ok
}
