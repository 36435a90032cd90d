package ui

import (
	"net/http"
	"strconv"
	"strings"

	"fairgate/internal/domain"
)

// PolicyView renders the active policy snapshot: version, content hash,
// and the full grant table the gateway is enforcing right now.
func (h *Handler) PolicyView(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.authorize(r, domain.OpPolicyRead, ""); err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	snap, err := h.Policies.Current()
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	rows := make([]grantRowData, 0, len(snap.RoleNames())*4)
	for _, roleName := range snap.RoleNames() {
		role := domain.Role(roleName)
		for _, op := range snap.OperationNames() {
			g, ok := snap.Grant(role, op)
			if !ok {
				continue
			}
			row := grantRowData{
				Filter:    roleName + " " + op,
				Role:      roleName,
				Operation: op,
				Scope:     "-",
				Mask:      "-",
			}
			if g.Scope != nil {
				row.Scope = g.Scope.String()
			}
			if len(g.MaskFields) > 0 {
				row.Mask = strings.Join(g.MaskFields, ", ")
			}
			rows = append(rows, row)
		}
	}

	renderHTML(w, http.StatusOK, policyPage(principalFromContext(r), policyPageData{
		Version:  strconv.FormatInt(snap.Version, 10),
		Hash:     snap.Hash,
		LoadedAt: formatTime(snap.LoadedAt),
		Grants:   rows,
	}))
}
