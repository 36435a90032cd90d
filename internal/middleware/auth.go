package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"fairgate/internal/domain"
)

// Authenticator verifies the Bearer credential on every request and stores
// the reconstructed principal in the context. A credential that fails
// signature, issuer, or expiry verification is a fatal 401 before any
// policy lookup. A verified credential whose role claims do not reduce to
// exactly one valid role still passes through, with an empty role, so the
// gateway can deny it and record the configuration anomaly in the ledger.
func Authenticator(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return AuthenticatorWithUnauthorized(validator, logger, func(w http.ResponseWriter, _ *http.Request) {
		writeUnauthorized(w)
	})
}

// AuthenticatorWithUnauthorized is Authenticator with a caller-chosen
// unauthorized responder. Browser surfaces redirect to their sign-in page
// where the JSON API answers 401.
func AuthenticatorWithUnauthorized(validator JWTValidator, logger *slog.Logger, unauthorized http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, r)
				return
			}

			claims, err := validator.Validate(r.Context(), strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				logger.Warn("credential rejected", "path", r.URL.Path, "error", err)
				unauthorized(w, r)
				return
			}
			if claims.Subject == "" {
				logger.Warn("credential carries no subject", "path", r.URL.Path)
				unauthorized(w, r)
				return
			}

			p := domain.Principal{
				ID:              claims.Subject,
				ScopeAttributes: claims.ScopeAttributes,
				TokenExpiry:     claims.ExpiresAt,
			}
			if role, derr := domain.DeriveRole(claims.Roles); derr == nil {
				p.Role = role
			} else {
				logger.Warn("credential role claims are ambiguous",
					"principal_id", claims.Subject,
					"roles", claims.Roles,
					"error", derr)
			}

			next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), p)))
		})
	}
}

// writeUnauthorized sends the generic refusal. The response never explains
// which verification step failed.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusUnauthorized,
		"message": "unauthorized: provide a valid bearer credential",
	})
}
