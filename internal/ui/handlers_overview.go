package ui

import (
	"errors"
	"net/http"
	"time"

	"fairgate/internal/domain"
)

const recentDecisionLimit = 10

// Home renders the landing dashboard: decision volume, override volume,
// security events, chain integrity, and the newest decisions.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	caller, _, err := h.authorize(r, domain.OpLedgerQuery, "")
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	now := time.Now().UTC()
	d := overviewData{}

	decisions, decisionTotal, err := h.recentOfType(r, caller, domain.EventDecision, now.Add(-7*24*time.Hour), now)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	d.DecisionCount = decisionTotal
	d.Recent = toEventRows(decisions)

	overrideType := domain.EventOverride
	_, overrideTotal, err := h.Ledger.QueryPattern(r.Context(), caller, domain.LedgerTimeFilter{
		From:      now.Add(-7 * 24 * time.Hour),
		To:        now,
		EventType: &overrideType,
		Page:      domain.PageRequest{MaxResults: 1},
	}, "")
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	d.OverrideCount = overrideTotal

	securityType := domain.EventSecurityEvent
	_, securityTotal, err := h.Ledger.QueryPattern(r.Context(), caller, domain.LedgerTimeFilter{
		From:      now.Add(-30 * 24 * time.Hour),
		To:        now,
		EventType: &securityType,
		Page:      domain.PageRequest{MaxResults: 1},
	}, "")
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	d.SecurityCount = securityTotal

	// The integrity card is gated on its own grant; a viewer who may read
	// the ledger but not verify it still gets the rest of the page.
	if _, _, err := h.authorize(r, domain.OpLedgerVerify, ""); err == nil {
		res, verr := h.Ledger.VerifyChain(r.Context(), 0, 0)
		if verr != nil {
			h.renderServiceError(w, r, verr)
			return
		}
		d.Chain = &chainStatusData{Valid: res.Valid, Checked: res.Checked, FirstBrokenAt: res.FirstBrokenAt}
	} else {
		var denied *domain.AccessDeniedError
		if !errors.As(err, &denied) {
			h.renderServiceError(w, r, err)
			return
		}
	}

	renderHTML(w, http.StatusOK, overviewPage(principalFromContext(r), d))
}

// recentOfType returns the newest events of one type in the window.
// ListByTime pages forward through the chain, so the feed re-reads the
// tail page once the window total is known.
func (h *Handler) recentOfType(r *http.Request, caller *domain.Principal, et domain.EventType, from, to time.Time) ([]domain.LedgerEvent, int64, error) {
	filter := domain.LedgerTimeFilter{
		From:      from,
		To:        to,
		EventType: &et,
		Page:      domain.PageRequest{MaxResults: recentDecisionLimit},
	}
	events, total, err := h.Ledger.QueryPattern(r.Context(), caller, filter, "")
	if err != nil {
		return nil, 0, err
	}
	if total > int64(recentDecisionLimit) {
		filter.Page.PageToken = domain.EncodePageToken(int(total) - recentDecisionLimit)
		events, _, err = h.Ledger.QueryPattern(r.Context(), caller, filter, "")
		if err != nil {
			return nil, 0, err
		}
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, total, nil
}
