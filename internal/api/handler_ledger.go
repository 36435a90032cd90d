package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fairgate/internal/domain"
	"fairgate/internal/export"
	"fairgate/internal/ledger"
)

type eventListResponse struct {
	Events        []eventResponse `json:"events"`
	TotalCount    int64           `json:"total_count"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

func (h *Handler) subjectHistory(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	caller, _, err := h.authorize(r, domain.OpLedgerQuery, subjectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	events, total, err := h.ledger.QueryBySubject(r.Context(), caller, subjectID, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, eventListResponse{
		Events:        toEventResponses(events),
		TotalCount:    total,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

type traceResponse struct {
	Decision eventResponse   `json:"decision"`
	Related  []eventResponse `json:"related"`
}

func (h *Handler) decisionTrace(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "sequenceNo"), 10, 64)
	if err != nil {
		h.writeError(w, r, domain.ErrValidation("sequence number must be an integer"))
		return
	}
	caller, _, err := h.authorize(r, domain.OpLedgerQuery, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	trace, err := h.ledger.DecisionTrace(r.Context(), caller, seq, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, traceResponse{
		Decision: toEventResponse(trace.Decision),
		Related:  toEventResponses(trace.Related),
	})
}

type searchBody struct {
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	EventType  string    `json:"event_type,omitempty"`
	Predicate  string    `json:"predicate,omitempty"`
	MaxResults int       `json:"max_results,omitempty"`
	PageToken  string    `json:"page_token,omitempty"`
}

func (h *Handler) searchLedger(w http.ResponseWriter, r *http.Request) {
	caller, _, err := h.authorize(r, domain.OpLedgerQuery, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body searchBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	filter := domain.LedgerTimeFilter{
		From: body.From,
		To:   body.To,
		Page: domain.PageRequest{MaxResults: body.MaxResults, PageToken: body.PageToken},
	}
	if body.EventType != "" {
		et, err := domain.ParseEventType(body.EventType)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.EventType = &et
	}

	events, total, err := h.ledger.QueryPattern(r.Context(), caller, filter, body.Predicate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, eventListResponse{
		Events:        toEventResponses(events),
		TotalCount:    total,
		NextPageToken: domain.NextPageToken(filter.Page.Offset(), filter.Page.Limit(), total),
	})
}

type verifyBody struct {
	FromSeq int64 `json:"from_seq,omitempty"`
	ToSeq   int64 `json:"to_seq,omitempty"`
}

type verifyResponse struct {
	Valid         bool   `json:"valid"`
	Checked       int64  `json:"checked"`
	FirstBrokenAt *int64 `json:"first_broken_at,omitempty"`
}

func (h *Handler) verifyLedger(w http.ResponseWriter, r *http.Request) {
	_, _, err := h.authorize(r, domain.OpLedgerVerify, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body verifyBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.ledger.VerifyChain(r.Context(), body.FromSeq, body.ToSeq)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, verifyResponse{
		Valid:         res.Valid,
		Checked:       res.Checked,
		FirstBrokenAt: res.FirstBrokenAt,
	})
}

type exportBody struct {
	FromSeq     int64  `json:"from_seq,omitempty"`
	ToSeq       int64  `json:"to_seq,omitempty"`
	Format      string `json:"format"`
	Destination string `json:"destination,omitempty"`
}

type exportResponse struct {
	Events   int64  `json:"events"`
	Location string `json:"location"`
}

// exportLedger copies a chain range out of the system. With a registered
// destination the archive is uploaded and its location returned; without
// one the archive streams back in the response. Either way the copy itself
// lands in the ledger as a data_access event, and a copy that cannot be
// recorded is not released.
func (h *Handler) exportLedger(w http.ResponseWriter, r *http.Request) {
	caller, _, err := h.authorize(r, domain.OpLedgerExport, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body exportBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	format, err := ledger.ParseExportFormat(body.Format)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	spec := ledger.ExportSpec{
		FromSeq:     body.FromSeq,
		ToSeq:       body.ToSeq,
		Format:      format,
		Destination: "http_response",
	}

	if body.Destination == "" {
		var buf bytes.Buffer
		count, err := h.ledger.Export(r.Context(), caller, spec, &buf)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", archiveContentType(format))
		w.Header().Set("X-Export-Events", strconv.FormatInt(count, 10))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, &buf); err != nil {
			h.logger.Error("stream export", "error", err)
		}
		return
	}

	dest, err := h.destinations.GetByName(r.Context(), body.Destination)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sink, err := export.NewSink(r.Context(), dest)
	if err != nil {
		h.logger.Error("export destination unusable",
			"destination", dest.Name,
			"error", err)
		h.writeJSON(w, http.StatusBadGateway, errorBody{
			Code:    http.StatusBadGateway,
			Message: "destination unusable",
		})
		return
	}
	defer sink.Close()

	spec.Destination = dest.Name
	var buf bytes.Buffer
	count, err := h.ledger.Export(r.Context(), caller, spec, &buf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	name := export.ArchiveName(spec.FromSeq, spec.ToSeq, string(format), time.Now())
	location, err := sink.Store(r.Context(), name, buf.Bytes())
	if err != nil {
		h.logger.Error("export upload failed",
			"destination", dest.Name,
			"archive", name,
			"error", err)
		h.writeJSON(w, http.StatusBadGateway, errorBody{
			Code:    http.StatusBadGateway,
			Message: "upload to destination failed",
		})
		return
	}

	h.logger.Info("ledger exported",
		"destination", dest.Name,
		"location", location,
		"events", count)
	h.writeJSON(w, http.StatusOK, exportResponse{Events: count, Location: location})
}

func archiveContentType(f ledger.ExportFormat) string {
	if f == ledger.FormatCSV {
		return "text/csv"
	}
	return "application/x-ndjson"
}
