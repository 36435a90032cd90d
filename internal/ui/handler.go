// Package ui serves the operator console: server-rendered pages over the
// decision ledger, security events, and the active policy. Every page view
// goes through the same gateway funnel as the API, so each view is
// evaluated against policy, recorded in the ledger, and masked for the
// signed-in role before anything renders.
package ui

import (
	"errors"
	"net/http"
	"strconv"

	"fairgate/internal/domain"
	"fairgate/internal/gateway"
	"fairgate/internal/ledger"
	"fairgate/internal/policy"

	gomponents "maragu.dev/gomponents"
)

// Handler renders the console pages. It holds no authorization logic of
// its own; the gateway decides, the ledger services mask.
type Handler struct {
	Gateway    *gateway.Service
	Ledger     *ledger.Service
	Policies   *policy.Store
	Production bool
}

// NewHandler creates the console handler over the platform services.
func NewHandler(gw *gateway.Service, ledgerSvc *ledger.Service, policies *policy.Store, production bool) *Handler {
	return &Handler{
		Gateway:    gw,
		Ledger:     ledgerSvc,
		Policies:   policies,
		Production: production,
	}
}

// authorize resolves the verified principal and asks the gateway for a
// decision. Console traffic is recorded under the query event type, the
// same as the JSON API.
func (h *Handler) authorize(r *http.Request, operation, subjectID string) (*domain.Principal, domain.Decision, error) {
	p, ok := domain.PrincipalFromContext(r.Context())
	if !ok {
		return nil, domain.Decision{}, domain.ErrAuthentication("no verified credential")
	}
	d, err := h.Gateway.Authorize(r.Context(), gateway.Request{
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

func pageFromRequest(r *http.Request, defaultPageSize int) domain.PageRequest {
	maxResults := defaultPageSize
	if maxResults <= 0 {
		maxResults = 25
	}
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			maxResults = parsed
		}
	}
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > 200 {
		maxResults = 200
	}
	return domain.PageRequest{
		MaxResults: maxResults,
		PageToken:  r.URL.Query().Get("page_token"),
	}
}

func renderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}

func principalFromContext(r *http.Request) domain.Principal {
	p, _ := domain.PrincipalFromContext(r.Context())
	return p
}

// renderServiceError translates a domain error into an error page. A stale
// session goes back to sign-in; a scope denial renders exactly like a
// missing resource.
func (h *Handler) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var authn *domain.AuthenticationError
	var scope *domain.ScopeError
	var notFound *domain.NotFoundError
	var accessDenied *domain.AccessDeniedError
	var validation *domain.ValidationError

	switch {
	case errors.As(err, &authn):
		RedirectToLogin(w, r)
	case errors.As(err, &scope):
		renderHTML(w, http.StatusNotFound, errorPage("Not Found", "resource not found"))
	case errors.As(err, &notFound):
		renderHTML(w, http.StatusNotFound, errorPage("Not Found", notFound.Error()))
	case errors.As(err, &accessDenied):
		renderHTML(w, http.StatusForbidden, errorPage("Access Denied", accessDenied.Error()))
	case errors.As(err, &validation):
		renderHTML(w, http.StatusBadRequest, errorPage("Invalid Request", validation.Error()))
	default:
		renderHTML(w, http.StatusInternalServerError, errorPage("Unexpected Error", "An unexpected error occurred while loading this page."))
	}
}
