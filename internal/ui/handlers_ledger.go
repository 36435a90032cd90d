package ui

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fairgate/internal/domain"
)

// LedgerSearch renders the ledger browser. With a subject the page shows
// that case's full history; without one it shows a time window, optionally
// narrowed to a single event type.
func (h *Handler) LedgerSearch(w http.ResponseWriter, r *http.Request) {
	q := ledgerSearchQuery{
		SubjectID: strings.TrimSpace(r.URL.Query().Get("subject_id")),
		EventType: strings.TrimSpace(r.URL.Query().Get("event_type")),
		Window:    normalizeWindow(r.URL.Query().Get("window")),
	}

	caller, _, err := h.authorize(r, domain.OpLedgerQuery, q.SubjectID)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	pageReq := pageFromRequest(r, 50)

	var events []domain.LedgerEvent
	var total int64
	if q.SubjectID != "" {
		events, total, err = h.Ledger.QueryBySubject(r.Context(), caller, q.SubjectID, pageReq)
	} else {
		now := time.Now().UTC()
		filter := domain.LedgerTimeFilter{
			From: windowStart(q.Window, now),
			To:   now,
			Page: pageReq,
		}
		if q.EventType != "" {
			et, perr := domain.ParseEventType(q.EventType)
			if perr != nil {
				h.renderServiceError(w, r, perr)
				return
			}
			filter.EventType = &et
		}
		events, total, err = h.Ledger.QueryPattern(r.Context(), caller, filter, "")
	}
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	renderHTML(w, http.StatusOK, ledgerSearchPage(principalFromContext(r), q, toEventRows(events), pageReq, total))
}

// DecisionTraceDetail renders one decision with everything recorded for
// its subject beforehand.
func (h *Handler) DecisionTraceDetail(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "sequenceNo"), 10, 64)
	if err != nil {
		h.renderServiceError(w, r, domain.ErrValidation("sequence number must be an integer"))
		return
	}
	caller, _, err := h.authorize(r, domain.OpLedgerQuery, "")
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	trace, err := h.Ledger.DecisionTrace(r.Context(), caller, seq, pageFromRequest(r, 100))
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	d := trace.Decision
	renderHTML(w, http.StatusOK, decisionTracePage(principalFromContext(r), traceDetailData{
		Seq:       strconv.FormatInt(d.SequenceNo, 10),
		Time:      formatTime(d.CreatedAt),
		Type:      string(d.EventType),
		Principal: d.PrincipalID,
		Role:      d.RoleAtTime,
		Subject:   d.SubjectID,
		PrevHash:  d.PrevHash,
		ThisHash:  d.ThisHash,
		Payload:   payloadSummary(d.Payload),
		Related:   toEventRows(trace.Related),
	}))
}

func toEventRows(events []domain.LedgerEvent) []eventRowData {
	rows := make([]eventRowData, 0, len(events))
	for i := range events {
		e := events[i]
		payload := payloadSummary(e.Payload)
		row := eventRowData{
			Filter:    string(e.EventType) + " " + e.PrincipalID + " " + e.RoleAtTime + " " + e.SubjectID + " " + payload,
			Seq:       strconv.FormatInt(e.SequenceNo, 10),
			Time:      formatTime(e.CreatedAt),
			Type:      string(e.EventType),
			Principal: e.PrincipalID,
			Role:      e.RoleAtTime,
			Subject:   e.SubjectID,
			Payload:   payload,
		}
		if e.EventType == domain.EventDecision || e.EventType == domain.EventOverride {
			row.SeqURL = "/ui/ledger/decisions/" + row.Seq
		}
		rows = append(rows, row)
	}
	return rows
}

func normalizeWindow(name string) string {
	switch strings.TrimSpace(name) {
	case "24h", "30d", "90d":
		return strings.TrimSpace(name)
	default:
		return "7d"
	}
}

func windowStart(name string, now time.Time) time.Time {
	switch name {
	case "24h":
		return now.Add(-24 * time.Hour)
	case "30d":
		return now.Add(-30 * 24 * time.Hour)
	case "90d":
		return now.Add(-90 * 24 * time.Hour)
	default:
		return now.Add(-7 * 24 * time.Hour)
	}
}
