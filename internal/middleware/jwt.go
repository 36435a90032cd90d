// Package middleware provides the HTTP request plumbing in front of the
// gateway: credential verification, request correlation ids, and per-caller
// rate limiting.
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the verified content of a credential. Principals are
// reconstructed from these claims on every request and never persisted.
type JWTClaims struct {
	Subject         string
	Issuer          string
	Roles           []string
	ScopeAttributes map[string]string
	ExpiresAt       time.Time
}

// JWTValidator validates a credential string and returns its claims. A
// returned error means the credential failed signature, issuer, or expiry
// verification and the request must stop before any policy lookup.
type JWTValidator interface {
	Validate(ctx context.Context, tokenString string) (*JWTClaims, error)
}

// OIDCValidator validates credentials against an OIDC provider's JWKS.
type OIDCValidator struct {
	verifier       *oidc.IDTokenVerifier
	allowedIssuers map[string]bool
}

// HS256Validator validates credentials signed with a shared HS256 secret,
// used for local development and the CLI's minted tokens.
type HS256Validator struct {
	secret []byte
}

// NewOIDCValidator creates a validator from an OIDC issuer URL.
func NewOIDCValidator(ctx context.Context, issuerURL, audience string, allowedIssuers []string) (*OIDCValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: audience})
	issuers := make(map[string]bool, len(allowedIssuers))
	for _, iss := range allowedIssuers {
		issuers[iss] = true
	}
	if len(issuers) == 0 {
		issuers[issuerURL] = true
	}
	return &OIDCValidator{verifier: verifier, allowedIssuers: issuers}, nil
}

// NewOIDCValidatorFromJWKS creates a validator from a JWKS URL directly,
// for providers without .well-known discovery.
func NewOIDCValidatorFromJWKS(ctx context.Context, jwksURL, issuerURL, audience string, allowedIssuers []string) (*OIDCValidator, error) {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	verifier := oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: audience})
	issuers := make(map[string]bool, len(allowedIssuers))
	for _, iss := range allowedIssuers {
		issuers[iss] = true
	}
	if len(issuers) == 0 && issuerURL != "" {
		issuers[issuerURL] = true
	}
	return &OIDCValidator{verifier: verifier, allowedIssuers: issuers}, nil
}

// NewHS256Validator creates a validator over a shared secret.
func NewHS256Validator(secret string) (*HS256Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &HS256Validator{secret: []byte(secret)}, nil
}

// ChainValidator tries each validator in order and accepts the first
// success, so an identity provider and a local secret can coexist. A chain
// with no validators refuses every credential: a server with no validator
// configured fails closed, never open.
type ChainValidator struct {
	validators []JWTValidator
}

// NewChainValidator builds a chain over the given validators.
func NewChainValidator(validators ...JWTValidator) *ChainValidator {
	return &ChainValidator{validators: validators}
}

// Validate returns the first successful verification, or the last failure.
func (v *ChainValidator) Validate(ctx context.Context, tokenString string) (*JWTClaims, error) {
	var lastErr error
	for _, val := range v.validators {
		claims, err := val.Validate(ctx, tokenString)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no credential validator configured")
	}
	return nil, lastErr
}

// Validate verifies the credential using the OIDC provider's JWKS.
func (v *OIDCValidator) Validate(ctx context.Context, tokenString string) (*JWTClaims, error) {
	idToken, err := v.verifier.Verify(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if len(v.allowedIssuers) > 0 && !v.allowedIssuers[idToken.Issuer] {
		return nil, fmt.Errorf("issuer %q not in allowed list", idToken.Issuer)
	}

	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}

	return &JWTClaims{
		Subject:         idToken.Subject,
		Issuer:          idToken.Issuer,
		Roles:           rolesFromClaim(raw["roles"]),
		ScopeAttributes: scopeAttributesFromClaim(raw["scope_attributes"]),
		ExpiresAt:       idToken.Expiry,
	}, nil
}

// Validate verifies an HS256-signed credential and extracts claims. The
// library rejects expired tokens during parsing.
func (v *HS256Validator) Validate(_ context.Context, tokenString string) (*JWTClaims, error) {
	tok, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("parse claims: unsupported claim type %T", tok.Claims)
	}

	claims := &JWTClaims{
		Roles:           rolesFromClaim(raw["roles"]),
		ScopeAttributes: scopeAttributesFromClaim(raw["scope_attributes"]),
	}
	if sub, ok := raw["sub"].(string); ok {
		claims.Subject = sub
	}
	if iss, ok := raw["iss"].(string); ok {
		claims.Issuer = iss
	}
	if exp, err := raw.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// rolesFromClaim accepts either a list of role names or a single string.
func rolesFromClaim(v interface{}) []string {
	switch roles := v.(type) {
	case string:
		return []string{roles}
	case []interface{}:
		out := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return roles
	}
	return nil
}

func scopeAttributesFromClaim(v interface{}) map[string]string {
	raw, ok := v.(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
