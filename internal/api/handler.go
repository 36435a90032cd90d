// Package api exposes the platform over HTTP. Every versioned route asks
// the gateway for a decision before doing anything else, then applies the
// returned scope filter and field mask to whatever it reads or writes.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"fairgate/internal/domain"
	"fairgate/internal/gateway"
	"fairgate/internal/isolation"
	"fairgate/internal/ledger"
	"fairgate/internal/middleware"
	"fairgate/internal/policy"
)

// maxBodyBytes bounds request bodies; export and aggregation requests are
// small, so anything larger is a caller bug.
const maxBodyBytes = 1 << 20

// Handler wires HTTP routes to the gateway, the ledger, and the isolated
// partition. It holds no authorization logic of its own.
type Handler struct {
	gateway      *gateway.Service
	applications domain.ApplicationRepository
	ledger       *ledger.Service
	isolation    *isolation.Router
	policies     *policy.Store
	destinations domain.ExportDestinationRepository
	logger       *slog.Logger
}

// NewHandler creates the API handler over the platform services.
func NewHandler(
	gw *gateway.Service,
	applications domain.ApplicationRepository,
	ledgerSvc *ledger.Service,
	isolationRouter *isolation.Router,
	policies *policy.Store,
	destinations domain.ExportDestinationRepository,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		gateway:      gw,
		applications: applications,
		ledger:       ledgerSvc,
		isolation:    isolationRouter,
		policies:     policies,
		destinations: destinations,
		logger:       logger,
	}
}

// Routes builds the routing tree. authn verifies credentials for the
// versioned API; public endpoints stay outside it. Extra middlewares (rate
// limiting) run after authentication so their keys see the principal.
func (h *Handler) Routes(authn func(http.Handler) http.Handler, extra ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authn)
		for _, mw := range extra {
			r.Use(mw)
		}

		r.Route("/applications", func(r chi.Router) {
			r.Get("/", h.listApplications)
			r.Post("/", h.createApplication)
			r.Get("/{applicationID}", h.getApplication)
			r.Post("/{applicationID}/decision", h.recordDecision)
		})

		r.Post("/demographics", h.writeDemographics)
		r.Post("/demographics/aggregate", h.aggregateDemographics)
		r.Post("/extracted/screen", h.screenExtracted)

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/subjects/{subjectID}/events", h.subjectHistory)
			r.Get("/decisions/{sequenceNo}/trace", h.decisionTrace)
			r.Post("/search", h.searchLedger)
			r.Post("/verify", h.verifyLedger)
			r.Post("/export", h.exportLedger)
		})

		r.Route("/policy", func(r chi.Router) {
			r.Get("/", h.policySnapshot)
			r.Post("/reload", h.reloadPolicy)
		})

		r.Route("/destinations", func(r chi.Router) {
			r.Get("/", h.listDestinations)
			r.Post("/", h.createDestination)
			r.Delete("/{name}", h.deleteDestination)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorize resolves the verified principal and asks the gateway for a
// decision on the operation. HTTP traffic is recorded under the query event
// type; the agent tool surface records tool_call separately.
func (h *Handler) authorize(r *http.Request, operation, subjectID string) (*domain.Principal, domain.Decision, error) {
	p, ok := domain.PrincipalFromContext(r.Context())
	if !ok {
		return nil, domain.Decision{}, domain.ErrAuthentication("no verified credential")
	}
	d, err := h.gateway.Authorize(r.Context(), gateway.Request{
		Principal: &p,
		Operation: operation,
		SubjectID: subjectID,
		Kind:      domain.EventQuery,
	})
	if err != nil {
		return nil, domain.Decision{}, err
	}
	return &p, d, nil
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	h.writeJSON(w, status, errorBody{Code: status, Message: clientMessage(err)})
}

func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

func pageFromQuery(r *http.Request) (domain.PageRequest, error) {
	q := r.URL.Query()
	page := domain.PageRequest{PageToken: q.Get("page_token")}
	if s := q.Get("max_results"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return page, domain.ErrValidation("max_results must be a non-negative integer")
		}
		page.MaxResults = n
	}
	return page, nil
}

// eventResponse is the wire form of one ledger event. Hashes are included
// so callers can re-run the chain check externally.
type eventResponse struct {
	SequenceNo  int64          `json:"sequence_no"`
	PrevHash    string         `json:"prev_hash"`
	ThisHash    string         `json:"this_hash"`
	EventType   string         `json:"event_type"`
	PrincipalID string         `json:"principal_id"`
	RoleAtTime  string         `json:"role_at_time"`
	SubjectID   string         `json:"subject_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toEventResponse(e domain.LedgerEvent) eventResponse {
	return eventResponse{
		SequenceNo:  e.SequenceNo,
		PrevHash:    e.PrevHash,
		ThisHash:    e.ThisHash,
		EventType:   string(e.EventType),
		PrincipalID: e.PrincipalID,
		RoleAtTime:  e.RoleAtTime,
		SubjectID:   e.SubjectID,
		Payload:     e.Payload,
		CreatedAt:   e.CreatedAt.UTC(),
	}
}

func toEventResponses(events []domain.LedgerEvent) []eventResponse {
	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = toEventResponse(e)
	}
	return out
}
