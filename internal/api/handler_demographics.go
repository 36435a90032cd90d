package api

import (
	"net/http"

	"fairgate/internal/domain"
)

type isolatedRecordBody struct {
	SubjectID    string            `json:"subject_id"`
	Attributes   map[string]string `json:"attributes"`
	CollectedVia string            `json:"collected_via"`
}

func (h *Handler) writeDemographics(w http.ResponseWriter, r *http.Request) {
	var body isolatedRecordBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	caller, _, err := h.authorize(r, domain.OpDemographicsWrite, body.SubjectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rec := &domain.IsolatedRecord{
		SubjectID:    body.SubjectID,
		Attributes:   body.Attributes,
		CollectedVia: body.CollectedVia,
	}
	id, err := h.isolation.WriteIsolated(r.Context(), caller, rec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type aggregateBody struct {
	GroupBy  []string `json:"group_by"`
	Statuses []string `json:"statuses,omitempty"`
}

type aggregateGroup struct {
	GroupLabels map[string]string  `json:"group_labels"`
	Values      map[string]float64 `json:"values"`
	SampleSize  int                `json:"sample_size"`
}

type aggregateResponse struct {
	Groups []aggregateGroup `json:"groups"`
}

func (h *Handler) aggregateDemographics(w http.ResponseWriter, r *http.Request) {
	caller, _, err := h.authorize(r, domain.OpDemographicsAgg, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body aggregateBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	stats, err := h.isolation.Aggregate(r.Context(), caller, domain.AggregateSpec{
		GroupBy:  body.GroupBy,
		Statuses: body.Statuses,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := aggregateResponse{Groups: make([]aggregateGroup, len(stats))}
	for i, s := range stats {
		out.Groups[i] = aggregateGroup{
			GroupLabels: s.GroupLabels,
			Values:      s.Values,
			SampleSize:  s.SampleSize,
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

type screenBody struct {
	Payload   map[string]string `json:"payload"`
	SourceRef string            `json:"source_ref"`
}

type screenResponse struct {
	Payload        map[string]string `json:"payload"`
	ExcludedFields []string          `json:"excluded_fields,omitempty"`
}

// screenExtracted filters collaborator-extracted content before it may
// enter general-path storage. Detected isolated-category fields come back
// excluded, not cleaned in place.
func (h *Handler) screenExtracted(w http.ResponseWriter, r *http.Request) {
	caller, _, err := h.authorize(r, domain.OpExtractedScan, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body screenBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	cleaned, excluded, err := h.isolation.ExcludeIfDetected(r.Context(), caller, &domain.ExtractedContent{
		Payload:   body.Payload,
		SourceRef: body.SourceRef,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, screenResponse{Payload: cleaned, ExcludedFields: excluded})
}
