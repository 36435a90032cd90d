package api

import (
	"net/http"
	"time"

	"fairgate/internal/domain"
)

type policyResponse struct {
	Version    int64     `json:"version"`
	Hash       string    `json:"hash"`
	LoadedAt   time.Time `json:"loaded_at"`
	Roles      []string  `json:"roles,omitempty"`
	Operations []string  `json:"operations,omitempty"`
}

func (h *Handler) policySnapshot(w http.ResponseWriter, r *http.Request) {
	_, _, err := h.authorize(r, domain.OpPolicyRead, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	snap, err := h.policies.Current()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, policyResponse{
		Version:    snap.Version,
		Hash:       snap.Hash,
		LoadedAt:   snap.LoadedAt.UTC(),
		Roles:      snap.RoleNames(),
		Operations: snap.OperationNames(),
	})
}

// reloadPolicy swaps in a freshly validated snapshot. A file that fails
// validation leaves the previous snapshot in effect and returns the load
// error; a successful swap is recorded as a system event.
func (h *Handler) reloadPolicy(w http.ResponseWriter, r *http.Request) {
	caller, _, err := h.authorize(r, domain.OpPolicyReload, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	snap, err := h.policies.Load(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := h.ledger.Append(r.Context(), domain.EventInput{
		EventType:   domain.EventSystem,
		PrincipalID: caller.ID,
		RoleAtTime:  string(caller.Role),
		Payload: map[string]any{
			"action":  "policy_reload",
			"version": snap.Version,
			"hash":    snap.Hash,
		},
	}); err != nil {
		// The snapshot is already active; the caller still learns the
		// recording failed.
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, policyResponse{
		Version:  snap.Version,
		Hash:     snap.Hash,
		LoadedAt: snap.LoadedAt.UTC(),
	})
}
