// Command agent exposes the platform to an embedding agent harness as a set
// of tools over stdio. Every tool call is authorized and recorded exactly
// like an API request, as the principal named by the credential the harness
// supplies in AGENT_TOKEN.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fairgate/internal/app"
	"fairgate/internal/config"
	internaldb "fairgate/internal/db"
	"fairgate/internal/mcptool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fairgate-agent:", err)
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

	credential := os.Getenv("AGENT_TOKEN")
	if credential == "" {
		return fmt.Errorf("AGENT_TOKEN is required: mint one with 'fairgate auth token'")
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

	srv := mcptool.NewServer(
		credential,
		a.Validator,
		a.Services.Gateway,
		a.Services.Applications,
		a.Services.Ledger,
		a.Services.Isolation,
		logger,
	)

	if a.Reloader != nil {
		go func() {
			if err := a.Reloader.Run(ctx); err != nil {
				logger.Error("policy reloader stopped", "error", err)
			}
		}()
	}

	logger.Info("agent tool server on stdio", "env", cfg.Env)
	return srv.Run(ctx)
}

// newLogger builds the process logger on stderr. Stdout carries the
// protocol stream and must stay clean.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
