// Package policy holds the versioned role/permission/scope/mask
// configuration consumed by the gateway and the ledger. Snapshots are
// immutable; reload swaps the active snapshot atomically so a request in
// flight keeps the one it started with.
package policy

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"fairgate/internal/domain"
)

// WildcardOperation grants a role every registered operation, unscoped and
// unmasked.
const WildcardOperation = "*"

// ScopeTemplate is a parsed data-scope predicate of the form
// "column = {principal.attr}" or "column = literal".
type ScopeTemplate struct {
	Column    string
	Attribute string // principal attribute name; empty when Literal is set
	Literal   string
}

var scopeTemplatePattern = regexp.MustCompile(`^([a-z][a-z0-9_]*)\s*=\s*(\S.*)$`)
var scopeAttributePattern = regexp.MustCompile(`^\{principal\.([a-z][a-z0-9_]*)\}$`)

// ParseScopeTemplate parses a scope string from the policy file.
func ParseScopeTemplate(s string) (*ScopeTemplate, error) {
	m := scopeTemplatePattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("scope %q: want \"column = {principal.attr}\" or \"column = literal\"", s)
	}
	t := &ScopeTemplate{Column: m[1]}
	rhs := m[2]
	if am := scopeAttributePattern.FindStringSubmatch(rhs); am != nil {
		t.Attribute = am[1]
		return t, nil
	}
	if rhs == "" || rhs[0] == '{' {
		return nil, fmt.Errorf("scope %q: unresolvable right-hand side", s)
	}
	t.Literal = rhs
	return t, nil
}

// Filter instantiates the template for one principal. A missing scope
// attribute is an error so the caller denies rather than widening scope.
func (t *ScopeTemplate) Filter(p *domain.Principal) (*domain.ScopeFilter, error) {
	if t.Literal != "" {
		return &domain.ScopeFilter{Column: t.Column, Value: t.Literal}, nil
	}
	val, ok := p.ScopeAttribute(t.Attribute)
	if !ok || val == "" {
		return nil, fmt.Errorf("principal %s carries no scope attribute %q", p.ID, t.Attribute)
	}
	return &domain.ScopeFilter{Column: t.Column, Value: val}, nil
}

func (t *ScopeTemplate) String() string {
	if t.Literal != "" {
		return fmt.Sprintf("%s = %s", t.Column, t.Literal)
	}
	return fmt.Sprintf("%s = {principal.%s}", t.Column, t.Attribute)
}

// Grant is one (role, operation) permission with optional scope and mask.
type Grant struct {
	Operation  string
	Scope      *ScopeTemplate
	MaskFields []string
}

// Mask returns the grant's field mask.
func (g Grant) Mask() domain.FieldMask {
	return domain.FieldMask{Fields: g.MaskFields}
}

type rolePolicy struct {
	wildcard bool
	grants   map[string]Grant
}

// Snapshot is one immutable, validated policy version.
type Snapshot struct {
	Version  int64
	Hash     string
	LoadedAt time.Time

	operations map[string]bool
	roles      map[domain.Role]rolePolicy
}

// KnownOperation reports whether the operation identifier is registered.
func (s *Snapshot) KnownOperation(op string) bool {
	return s.operations[op]
}

// Grant returns the grant a role holds for an operation. The second result
// is false when the role has no grant or the operation is unregistered.
func (s *Snapshot) Grant(role domain.Role, operation string) (Grant, bool) {
	if !s.KnownOperation(operation) {
		return Grant{}, false
	}
	rp, ok := s.roles[role]
	if !ok {
		return Grant{}, false
	}
	if g, ok := rp.grants[operation]; ok {
		return g, true
	}
	if rp.wildcard {
		return Grant{Operation: operation}, true
	}
	return Grant{}, false
}

// MaskFor returns the field mask a role is subject to for an operation.
// Roles without a grant get an empty mask; callers must have denied them
// before any data flows.
func (s *Snapshot) MaskFor(role domain.Role, operation string) domain.FieldMask {
	g, ok := s.Grant(role, operation)
	if !ok {
		return domain.FieldMask{}
	}
	return g.Mask()
}

// OperationNames returns the sorted operation registry.
func (s *Snapshot) OperationNames() []string {
	names := make([]string, 0, len(s.operations))
	for op := range s.operations {
		names = append(names, op)
	}
	sort.Strings(names)
	return names
}

// RoleNames returns the sorted roles present in the snapshot.
func (s *Snapshot) RoleNames() []string {
	names := make([]string, 0, len(s.roles))
	for r := range s.roles {
		names = append(names, string(r))
	}
	sort.Strings(names)
	return names
}
