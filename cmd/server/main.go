// Command server runs the fairgate HTTP surface: the versioned JSON API,
// the operator console, the policy file watcher, and the scheduled chain
// verifier, all over one wired service graph.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"fairgate/internal/api"
	"fairgate/internal/app"
	"fairgate/internal/config"
	internaldb "fairgate/internal/db"
	"fairgate/internal/middleware"
	"fairgate/internal/ui"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fairgate-server:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.DBPath, 4)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer writeDB.Close()
	defer readDB.Close()

	if err := internaldb.RunMigrations(writeDB); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// The ledger pools are opened after migrations so the restricted
	// credential never has to perform DDL.
	ledgerAppendDB, ledgerReadDB, err := internaldb.OpenLedgerPair(cfg.DBPath, 4)
	if err != nil {
		return fmt.Errorf("open ledger pools: %w", err)
	}
	defer ledgerAppendDB.Close()
	defer ledgerReadDB.Close()

	a, err := app.New(ctx, app.Deps{
		Cfg:            cfg,
		WriteDB:        writeDB,
		ReadDB:         readDB,
		LedgerAppendDB: ledgerAppendDB,
		LedgerReadDB:   ledgerReadDB,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           buildRouter(cfg, a, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := a.Services.Verify.Start(); err != nil {
		return err
	}
	defer a.Services.Verify.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheme := "http"
		if cfg.TLSCertFile != "" {
			scheme = "https"
		}
		logger.Info("listening", "addr", cfg.ListenAddr, "scheme", scheme, "env", cfg.Env)
		if !cfg.IsProduction() {
			logger.Info("console available",
				"url", fmt.Sprintf("%s://%s/ui", scheme, curlHostForListenAddr(cfg.ListenAddr)),
				"hint", "mint a credential with: fairgate auth token --role compliance_officer")
		}

		var serveErr error
		if cfg.TLSCertFile != "" {
			serveErr = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.Reloader != nil {
		g.Go(func() error {
			return a.Reloader.Run(gctx)
		})
	}

	return g.Wait()
}

// newLogger builds the process logger: JSON in production, text otherwise.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// buildRouter assembles the full HTTP tree: CORS at the root, the operator
// console under /ui with its redirect-to-login authenticator, and the JSON
// API at the root with the 401 authenticator and per-caller rate limiting.
func buildRouter(cfg *config.Config, a *app.App, logger *slog.Logger) http.Handler {
	apiHandler := api.NewHandler(
		a.Services.Gateway,
		a.Services.Applications,
		a.Services.Ledger,
		a.Services.Isolation,
		a.Services.Policies,
		a.Services.Destinations,
		logger,
	)
	authn := middleware.Authenticator(a.Validator, logger)
	rate := middleware.RateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})

	uiHandler := ui.NewHandler(a.Services.Gateway, a.Services.Ledger, a.Services.Policies, cfg.IsProduction())
	uiAuthn := middleware.AuthenticatorWithUnauthorized(a.Validator, logger, ui.RedirectToLogin)

	wildcard := len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*"

	root := chi.NewRouter()
	if !cfg.IsProduction() {
		root.Use(chimw.Logger)
	}
	root.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}))

	root.Route("/ui", func(r chi.Router) {
		ui.MountRoutes(r, uiHandler, uiAuthn)
	})
	root.Mount("/", apiHandler.Routes(authn, rate))
	return root
}

// curlHostForListenAddr turns a listen address into something a local
// client can dial: wildcard and empty hosts become localhost.
func curlHostForListenAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return "localhost:8080"
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
