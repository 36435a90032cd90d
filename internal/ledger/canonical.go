// Package ledger implements the append-only, hash-chained audit ledger.
// Sequence assignment and chain extension are serialized through a single
// ordering point; storage below refuses UPDATE and DELETE outright.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"fairgate/internal/domain"
)

// GenesisHash is the prev_hash of the first event in a new ledger.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// canonicalBody fixes the field order for hashing. Payload values must
// re-marshal to identical bytes after a JSON round trip: JSON-native types
// only, integers under 2^53.
type canonicalBody struct {
	SequenceNo  int64          `json:"sequence_no"`
	EventType   string         `json:"event_type"`
	PrincipalID string         `json:"principal_id"`
	RoleAtTime  string         `json:"role_at_time"`
	SubjectID   string         `json:"subject_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// ChainHash computes this_hash for an event: SHA-256 over the previous
// hash concatenated with the canonicalized event body.
func ChainHash(prevHash string, e *domain.LedgerEvent) (string, error) {
	body, err := json.Marshal(canonicalBody{
		SequenceNo:  e.SequenceNo,
		EventType:   string(e.EventType),
		PrincipalID: e.PrincipalID,
		RoleAtTime:  e.RoleAtTime,
		SubjectID:   e.SubjectID,
		Payload:     e.Payload,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize event: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(body)
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
