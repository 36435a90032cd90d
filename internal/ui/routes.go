package ui

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fairgate/internal/ui/assets"
)

// MountRoutes attaches the console under the router it is given, which the
// server mounts at /ui. Sign-in and sign-out stay outside authentication;
// everything else requires a verified session. The cookie bridge runs
// before the authenticator so browser sessions and API credentials pass
// through the same verification path.
func MountRoutes(r chi.Router, h *Handler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(h.EnsureCSRFToken)
	r.Use(h.RequireCSRF)

	r.Get("/login", h.LoginPage)
	r.Post("/login", h.LoginSubmit)
	r.Post("/logout", h.Logout)

	staticFS, err := fs.Sub(assets.StaticFS(), "static")
	if err == nil {
		r.Handle("/static/*", http.StripPrefix("/ui/static/", http.FileServer(http.FS(staticFS))))
	}

	r.Group(func(r chi.Router) {
		r.Use(h.CookieHeaderBridge)
		r.Use(authMiddleware)
		r.Get("/", h.Home)
		r.Get("/ledger", h.LedgerSearch)
		r.Get("/ledger/decisions/{sequenceNo}", h.DecisionTraceDetail)
		r.Get("/security", h.SecurityEvents)
		r.Post("/security/verify", h.VerifyRun)
		r.Get("/policy", h.PolicyView)
	})
}
