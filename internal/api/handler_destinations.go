package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fairgate/internal/domain"
)

type destinationBody struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Prefix string `json:"prefix,omitempty"`

	Bucket   string `json:"bucket,omitempty"`
	KeyID    string `json:"key_id,omitempty"`
	Secret   string `json:"secret,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Region   string `json:"region,omitempty"`

	AzureAccountName string `json:"azure_account_name,omitempty"`
	AzureAccountKey  string `json:"azure_account_key,omitempty"`
	AzureContainer   string `json:"azure_container,omitempty"`

	GCSBucket      string `json:"gcs_bucket,omitempty"`
	GCSKeyFilePath string `json:"gcs_key_file_path,omitempty"`

	Directory string `json:"directory,omitempty"`
}

// destinationResponse never carries credential material; secrets go in at
// registration and stay encrypted at rest.
type destinationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Prefix    string    `json:"prefix,omitempty"`
	Bucket    string    `json:"bucket,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Region    string    `json:"region,omitempty"`
	Container string    `json:"container,omitempty"`
	Directory string    `json:"directory,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type destinationListResponse struct {
	Destinations  []destinationResponse `json:"destinations"`
	TotalCount    int64                 `json:"total_count"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

func toDestinationResponse(d *domain.ExportDestination) destinationResponse {
	out := destinationResponse{
		ID:        d.ID,
		Name:      d.Name,
		Kind:      string(d.Kind),
		Prefix:    d.Prefix,
		Endpoint:  d.Endpoint,
		Region:    d.Region,
		Container: d.AzureContainer,
		Directory: d.Directory,
		CreatedAt: d.CreatedAt.UTC(),
	}
	switch d.Kind {
	case domain.DestinationGCS:
		out.Bucket = d.GCSBucket
	default:
		out.Bucket = d.Bucket
	}
	return out
}

func (h *Handler) createDestination(w http.ResponseWriter, r *http.Request) {
	_, _, err := h.authorize(r, domain.OpDestinationsManage, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body destinationBody
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	req := domain.CreateExportDestinationRequest{
		Name:             body.Name,
		Kind:             domain.DestinationKind(body.Kind),
		Prefix:           body.Prefix,
		Bucket:           body.Bucket,
		KeyID:            body.KeyID,
		Secret:           body.Secret,
		Endpoint:         body.Endpoint,
		Region:           body.Region,
		AzureAccountName: body.AzureAccountName,
		AzureAccountKey:  body.AzureAccountKey,
		AzureContainer:   body.AzureContainer,
		GCSBucket:        body.GCSBucket,
		GCSKeyFilePath:   body.GCSKeyFilePath,
		Directory:        body.Directory,
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.destinations.Create(r.Context(), &domain.ExportDestination{
		Name:             req.Name,
		Kind:             req.Kind,
		Prefix:           req.Prefix,
		Bucket:           req.Bucket,
		KeyID:            req.KeyID,
		Secret:           req.Secret,
		Endpoint:         req.Endpoint,
		Region:           req.Region,
		AzureAccountName: req.AzureAccountName,
		AzureAccountKey:  req.AzureAccountKey,
		AzureContainer:   req.AzureContainer,
		GCSBucket:        req.GCSBucket,
		GCSKeyFilePath:   req.GCSKeyFilePath,
		Directory:        req.Directory,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toDestinationResponse(created))
}

func (h *Handler) listDestinations(w http.ResponseWriter, r *http.Request) {
	_, _, err := h.authorize(r, domain.OpDestinationsManage, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dests, total, err := h.destinations.List(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := destinationListResponse{
		Destinations:  make([]destinationResponse, len(dests)),
		TotalCount:    total,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	}
	for i := range dests {
		out.Destinations[i] = toDestinationResponse(&dests[i])
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) deleteDestination(w http.ResponseWriter, r *http.Request) {
	_, _, err := h.authorize(r, domain.OpDestinationsManage, "")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.destinations.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
