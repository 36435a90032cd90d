package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fairgate/internal/domain"
)

type grantSpec struct {
	Name       string   `yaml:"name"`
	Scope      string   `yaml:"scope,omitempty"`
	MaskFields []string `yaml:"mask_fields,omitempty"`
}

type roleSpec struct {
	Operations []grantSpec `yaml:"operations"`
}

type fileSpec struct {
	Operations []string            `yaml:"operations"`
	Roles      map[string]roleSpec `yaml:"roles"`
}

// LoadFile reads, parses, and validates a policy file. The returned
// snapshot carries the SHA-256 of the raw bytes; Version is assigned by the
// store on swap.
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse builds a validated snapshot from raw policy YAML.
func Parse(data []byte) (*Snapshot, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse policy yaml: %w", err)
	}

	if len(spec.Operations) == 0 {
		return nil, fmt.Errorf("policy registers no operations")
	}
	if len(spec.Roles) == 0 {
		return nil, fmt.Errorf("policy grants no roles")
	}

	operations := make(map[string]bool, len(spec.Operations))
	for _, op := range spec.Operations {
		if op == "" || op == WildcardOperation {
			return nil, fmt.Errorf("operation registry entry %q is not a valid identifier", op)
		}
		if operations[op] {
			return nil, fmt.Errorf("operation %q registered twice", op)
		}
		operations[op] = true
	}

	roles := make(map[domain.Role]rolePolicy, len(spec.Roles))
	for name, rs := range spec.Roles {
		role, err := domain.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("role %q: %w", name, err)
		}

		rp := rolePolicy{grants: make(map[string]Grant, len(rs.Operations))}
		for _, gs := range rs.Operations {
			if gs.Name == WildcardOperation {
				if gs.Scope != "" || len(gs.MaskFields) > 0 {
					return nil, fmt.Errorf("role %q: wildcard grant cannot carry scope or mask", name)
				}
				rp.wildcard = true
				continue
			}
			if !operations[gs.Name] {
				return nil, fmt.Errorf("role %q grants unregistered operation %q", name, gs.Name)
			}
			if _, dup := rp.grants[gs.Name]; dup {
				return nil, fmt.Errorf("role %q grants operation %q twice", name, gs.Name)
			}

			g := Grant{Operation: gs.Name, MaskFields: gs.MaskFields}
			if gs.Scope != "" {
				tmpl, err := ParseScopeTemplate(gs.Scope)
				if err != nil {
					return nil, fmt.Errorf("role %q operation %q: %w", name, gs.Name, err)
				}
				g.Scope = tmpl
			}
			for _, f := range g.MaskFields {
				if f == "" {
					return nil, fmt.Errorf("role %q operation %q: empty mask field", name, gs.Name)
				}
			}
			rp.grants[gs.Name] = g
		}
		roles[role] = rp
	}

	h := sha256.Sum256(data)
	return &Snapshot{
		Hash:       "sha256:" + hex.EncodeToString(h[:]),
		LoadedAt:   time.Now().UTC(),
		operations: operations,
		roles:      roles,
	}, nil
}
