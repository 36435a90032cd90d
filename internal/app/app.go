// Package app wires repositories, the policy store, and the platform
// services from configuration. Transports (HTTP, agent tools, CLI) receive
// the wired App and never construct services themselves.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"fairgate/internal/config"
	"fairgate/internal/db/crypto"
	"fairgate/internal/db/repository"
	"fairgate/internal/gateway"
	"fairgate/internal/isolation"
	"fairgate/internal/ledger"
	"fairgate/internal/middleware"
	"fairgate/internal/policy"
	"fairgate/internal/service/alert"
	"fairgate/internal/service/verify"
)

// Deps holds the external dependencies that main() must provide. These are
// things the app package cannot (or should not) open itself: the database
// pools, config, and the logger. The isolated partition is the exception;
// it is opened here so its handle never exists outside the wiring.
type Deps struct {
	Cfg *config.Config

	// General-path pools: applications and export destinations.
	WriteDB *sql.DB
	ReadDB  *sql.DB

	// Ledger pools holding the restricted credential. The connections
	// refuse UPDATE and DELETE on ledger tables at the storage layer.
	LedgerAppendDB *sql.DB
	LedgerReadDB   *sql.DB

	Logger *slog.Logger
}

// Services groups the service pointers the transports share.
type Services struct {
	Policies     *policy.Store
	Ledger       *ledger.Service
	Gateway      *gateway.Service
	Isolation    *isolation.Router
	Alerts       *alert.Dispatcher
	Verify       *verify.Runner
	Applications *repository.ApplicationRepo
	Destinations *repository.DestinationRepo
}

// App holds the fully wired platform plus the pieces main() runs or mounts
// itself: the credential validator for the auth middleware and the policy
// file watcher.
type App struct {
	Services Services

	// Validator verifies bearer credentials. Never nil; with no validator
	// configured it refuses every credential.
	Validator middleware.JWTValidator

	// Reloader watches the policy file for hot reload. Nil when
	// PolicyWatch is off. The caller runs it; Run blocks until its
	// context is cancelled.
	Reloader *policy.Reloader
}

// New wires all repositories and services from the provided deps. The
// policy snapshot is loaded before anything else is constructed: a server
// that cannot read its policy does not start, and until the first
// successful load every authorization denies.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg

	policies := policy.NewStore(cfg.PolicyPath, deps.Logger.With("component", "policy"), policy.StoreOptions{
		Attempts: cfg.PolicyRetryAttempts,
		Backoff:  cfg.PolicyRetryBackoff,
	})
	if _, err := policies.Load(ctx); err != nil {
		return nil, fmt.Errorf("load policy %s: %w", cfg.PolicyPath, err)
	}

	applicationRepo := repository.NewApplicationRepo(deps.WriteDB)
	ledgerRepo := repository.NewLedgerEventRepo(deps.LedgerAppendDB, deps.LedgerReadDB)

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	destinationRepo := repository.NewDestinationRepo(deps.WriteDB, encryptor)

	ledgerSvc := ledger.NewService(ledgerRepo, policies, deps.Logger.With("component", "ledger"))
	gw := gateway.NewService(policies, ledgerSvc, deps.Logger.With("component", "gateway"))

	isolationRouter, err := isolation.NewRouter(
		cfg.IsolatedDBPath, applicationRepo, ledgerSvc,
		deps.Logger.With("component", "isolation"),
		isolation.Options{
			MinSampleSize: cfg.MinSampleSize,
			QueryTimeout:  cfg.AggregateTimeout,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("open isolated partition: %w", err)
	}

	// Repeated denials and isolation breaches escalate through the same
	// ledger the individual events already landed on.
	alerts := alert.NewDispatcher(ledgerSvc, deps.Logger.With("component", "alert"), alert.Options{
		Threshold: cfg.DenialAlertThreshold,
		Window:    cfg.DenialAlertWindow,
	})
	gw.SetDenialSink(alerts)
	isolationRouter.SetViolationSink(alerts)

	verifyRunner := verify.NewRunner(ledgerSvc, deps.Logger.With("component", "verify"), cfg.VerifySchedule)
	verifyRunner.SetAlertSink(alerts)

	validator, err := buildValidator(ctx, cfg, deps.Logger)
	if err != nil {
		_ = isolationRouter.Close()
		return nil, err
	}

	var reloader *policy.Reloader
	if cfg.PolicyWatch {
		reloader, err = policy.NewReloader(policies, deps.Logger.With("component", "policy"))
		if err != nil {
			_ = isolationRouter.Close()
			return nil, fmt.Errorf("policy watcher: %w", err)
		}
	}

	if !cfg.IsProduction() {
		if err := seedDemo(ctx, applicationRepo, isolationRouter, deps.Logger); err != nil {
			deps.Logger.Warn("demo seed failed", "error", err)
		}
	}

	return &App{
		Services: Services{
			Policies:     policies,
			Ledger:       ledgerSvc,
			Gateway:      gw,
			Isolation:    isolationRouter,
			Alerts:       alerts,
			Verify:       verifyRunner,
			Applications: applicationRepo,
			Destinations: destinationRepo,
		},
		Validator: validator,
		Reloader:  reloader,
	}, nil
}

// Close releases resources the wiring opened itself, currently the
// isolated partition handle. The database pools belong to the caller.
func (a *App) Close() error {
	return a.Services.Isolation.Close()
}

// buildValidator assembles the credential verifier from the auth config.
// With both an identity provider and a local secret configured either may
// verify a credential; with nothing configured every credential is
// refused. Fail closed, never open.
func buildValidator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (middleware.JWTValidator, error) {
	var validators []middleware.JWTValidator

	if cfg.Auth.OIDCEnabled() {
		var (
			v   middleware.JWTValidator
			err error
		)
		if cfg.Auth.JWKSURL != "" {
			v, err = middleware.NewOIDCValidatorFromJWKS(ctx, cfg.Auth.JWKSURL, cfg.Auth.IssuerURL, cfg.Auth.Audience, cfg.Auth.AllowedIssuers)
		} else {
			v, err = middleware.NewOIDCValidator(ctx, cfg.Auth.IssuerURL, cfg.Auth.Audience, cfg.Auth.AllowedIssuers)
		}
		if err != nil {
			return nil, fmt.Errorf("oidc validator: %w", err)
		}
		validators = append(validators, v)
		logger.Info("oidc credential validator enabled",
			"issuer", cfg.Auth.IssuerURL, "jwks_override", cfg.Auth.JWKSURL != "")
	}

	if cfg.Auth.JWTSecret != "" {
		v, err := middleware.NewHS256Validator(cfg.Auth.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("hs256 validator: %w", err)
		}
		validators = append(validators, v)
		logger.Info("hs256 credential validator enabled")
	}

	switch len(validators) {
	case 0:
		logger.Error("no credential validator configured, refusing all credentials")
		return middleware.NewChainValidator(), nil
	case 1:
		return validators[0], nil
	default:
		return middleware.NewChainValidator(validators...), nil
	}
}
