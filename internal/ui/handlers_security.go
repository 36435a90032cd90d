package ui

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"fairgate/internal/domain"
)

// SecurityEvents renders the security feed: breach and tamper events from
// the last 30 days plus an on-demand chain verification form.
func (h *Handler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	h.renderSecurity(w, r, nil)
}

// VerifyRun recomputes the hash chain over the requested range and renders
// the outcome. The verification itself is an authorized operation and
// leaves its own ledger trail.
func (h *Handler) VerifyRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderServiceError(w, r, domain.ErrValidation("invalid form"))
		return
	}
	fromSeq, err := formSeq(r, "from_seq")
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	toSeq, err := formSeq(r, "to_seq")
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	if _, _, err := h.authorize(r, domain.OpLedgerVerify, ""); err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	res, err := h.Ledger.VerifyChain(r.Context(), fromSeq, toSeq)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	h.renderSecurity(w, r, &chainStatusData{Valid: res.Valid, Checked: res.Checked, FirstBrokenAt: res.FirstBrokenAt})
}

func (h *Handler) renderSecurity(w http.ResponseWriter, r *http.Request, verify *chainStatusData) {
	caller, _, err := h.authorize(r, domain.OpLedgerQuery, "")
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	now := time.Now().UTC()
	et := domain.EventSecurityEvent
	pageReq := pageFromRequest(r, 50)
	events, total, err := h.Ledger.QueryPattern(r.Context(), caller, domain.LedgerTimeFilter{
		From:      now.Add(-30 * 24 * time.Hour),
		To:        now,
		EventType: &et,
		Page:      pageReq,
	}, "")
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	renderHTML(w, http.StatusOK, securityPage(principalFromContext(r), securityPageData{
		Verify: verify,
		Events: toEventRows(events),
		Total:  total,
		Page:   pageReq,
		CSRF:   csrfField(r),
	}))
}

func formSeq(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.Form.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, domain.ErrValidation("%s must be a non-negative integer", key)
	}
	return n, nil
}
