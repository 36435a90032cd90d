package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fairgate/internal/domain"
)

type createApplicationBody struct {
	ApplicantName string `json:"applicant_name"`
	SSNLast4      string `json:"ssn_last4"`
	IncomeCents   int64  `json:"income_cents"`
	AmountCents   int64  `json:"amount_cents"`
	AssignedTo    string `json:"assigned_to"`
}

type applicationListResponse struct {
	Applications  []map[string]any `json:"applications"`
	TotalCount    int64            `json:"total_count"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

// applicationMatchesScope reports whether a row satisfies a scope filter.
// Reads fold the filter into SQL; writes check the incoming row here.
func applicationMatchesScope(a *domain.Application, f *domain.ScopeFilter) bool {
	if f == nil {
		return true
	}
	switch f.Column {
	case "assigned_to":
		return a.AssignedTo == f.Value
	case "status":
		return string(a.Status) == f.Value
	case "id":
		return a.ID == f.Value
	default:
		return false
	}
}

func (h *Handler) createApplication(w http.ResponseWriter, r *http.Request) {
	// The id is minted before authorization so the recorded decision is
	// bound to the case it created.
	id := domain.NewID()
	_, d, err := h.authorize(r, domain.OpApplicationsCreate, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body createApplicationBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	req := domain.CreateApplicationRequest{
		ApplicantName: body.ApplicantName,
		SSNLast4:      body.SSNLast4,
		IncomeCents:   body.IncomeCents,
		AmountCents:   body.AmountCents,
		AssignedTo:    body.AssignedTo,
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	app := &domain.Application{
		ID:            id,
		ApplicantName: req.ApplicantName,
		SSNLast4:      req.SSNLast4,
		IncomeCents:   req.IncomeCents,
		AmountCents:   req.AmountCents,
		AssignedTo:    req.AssignedTo,
	}
	if !applicationMatchesScope(app, d.ScopeFilter) {
		h.writeError(w, r, domain.ErrAccessDenied("operation not permitted"))
		return
	}

	created, err := h.applications.Create(r.Context(), app)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, h.renderApplication(created, d))
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "applicationID")
	_, d, err := h.authorize(r, domain.OpApplicationsRead, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	app, err := h.applications.GetByID(r.Context(), id, d.ScopeFilter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.renderApplication(app, d))
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	_, d, err := h.authorize(r, domain.OpApplicationsList, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	apps, total, err := h.applications.List(r.Context(), d.ScopeFilter, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := applicationListResponse{
		Applications:  make([]map[string]any, len(apps)),
		TotalCount:    total,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	}
	for i := range apps {
		out.Applications[i] = h.renderApplication(&apps[i], d)
	}
	h.writeJSON(w, http.StatusOK, out)
}

type decisionBody struct {
	Outcome           string `json:"outcome"`
	Rationale         string `json:"rationale"`
	RecommenderOutput string `json:"recommender_output"`
	HumanOutput       string `json:"human_output"`
	Override          bool   `json:"override"`
}

type decisionResponse struct {
	SequenceNo int64  `json:"sequence_no"`
	EventType  string `json:"event_type"`
	SubjectID  string `json:"subject_id"`
	Status     string `json:"status"`
}

func (h *Handler) recordDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "applicationID")
	caller, d, err := h.authorize(r, domain.OpApplicationsDecide, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body decisionBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	app, err := h.applications.GetByID(r.Context(), id, d.ScopeFilter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if app.Status == domain.ApplicationStatusDecided && !body.Override {
		h.writeError(w, r, domain.ErrConflict("application %s is already decided; submit an override", id))
		return
	}

	// Free text headed for the general-path ledger goes through the output
	// net first. A detection refuses the decision rather than cleaning it.
	freeText := strings.Join([]string{body.Rationale, body.RecommenderOutput, body.HumanOutput}, "\n")
	if err := h.isolation.ScanOutput(r.Context(), caller, id, freeText); err != nil {
		h.writeError(w, r, err)
		return
	}

	rec := domain.DecisionRecord{
		SubjectID:         id,
		Outcome:           body.Outcome,
		Rationale:         body.Rationale,
		RecommenderOutput: body.RecommenderOutput,
		HumanOutput:       body.HumanOutput,
		Override:          body.Override,
	}
	seq, err := h.ledger.RecordDecision(r.Context(), caller, rec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// The ledger event is authoritative; the status column is a projection.
	if err := h.applications.SetStatus(r.Context(), id, domain.ApplicationStatusDecided); err != nil {
		h.writeError(w, r, err)
		return
	}

	kind := domain.EventDecision
	if rec.Override {
		kind = domain.EventOverride
	}
	h.writeJSON(w, http.StatusCreated, decisionResponse{
		SequenceNo: seq,
		EventType:  string(kind),
		SubjectID:  id,
		Status:     string(domain.ApplicationStatusDecided),
	})
}

// renderApplication applies the caller's field mask to the wire form.
func (h *Handler) renderApplication(a *domain.Application, d domain.Decision) map[string]any {
	payload := a.Payload()
	if !d.FieldMask.Empty() {
		payload = d.FieldMask.Apply(payload)
	}
	return payload
}
