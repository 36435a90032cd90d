// Package verify re-walks the ledger hash chain on a schedule and puts the
// outcome back on the chain: a system event when the walk is clean, a
// high-severity security_event naming the first broken link when it is not.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"fairgate/internal/domain"
	"fairgate/internal/ledger"
)

const runTimeout = 5 * time.Minute

// systemPrincipal identifies scheduler-originated events on the ledger.
const systemPrincipal = "system"

// AlertSink receives chain-break notifications for operator alerting.
type AlertSink interface {
	RecordViolation(principalID, detail string)
}

// Runner drives periodic chain verification.
type Runner struct {
	ledger   *ledger.Service
	logger   *slog.Logger
	schedule string
	cron     *cron.Cron
	alerts   AlertSink
}

// NewRunner creates a runner for the given cron schedule.
func NewRunner(ledgerSvc *ledger.Service, logger *slog.Logger, schedule string) *Runner {
	return &Runner{
		ledger:   ledgerSvc,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// SetAlertSink registers the operator alert hook. Optional.
func (r *Runner) SetAlertSink(a AlertSink) { r.alerts = a }

// Start registers the schedule and starts the cron loop.
func (r *Runner) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Warn("scheduled chain verification failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid verify schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.logger.Info("chain verification scheduled", "schedule", r.schedule)
	return nil
}

// Stop stops the cron loop. Runs already in flight finish on their own.
func (r *Runner) Stop() {
	r.cron.Stop()
	r.logger.Info("chain verification stopped")
}

// RunOnce verifies the full chain and records the outcome. A broken chain
// is escalated before the recording append, so the signal survives even if
// the ledger refuses the new event.
func (r *Runner) RunOnce(ctx context.Context) (ledger.VerifyResult, error) {
	res, err := r.ledger.VerifyChain(ctx, 0, 0)
	if err != nil {
		return ledger.VerifyResult{}, err
	}

	if res.Valid {
		_, err := r.ledger.Append(ctx, domain.EventInput{
			EventType:   domain.EventSystem,
			PrincipalID: systemPrincipal,
			RoleAtTime:  systemPrincipal,
			Payload: map[string]any{
				"action":  "chain_verification",
				"outcome": "valid",
				"checked": res.Checked,
			},
		})
		if err != nil {
			return res, err
		}
		r.logger.Info("chain verification passed", "checked", res.Checked)
		return res, nil
	}

	broken := *res.FirstBrokenAt
	r.logger.Error("ledger chain verification failed",
		"first_broken_at", broken,
		"checked", res.Checked)
	if r.alerts != nil {
		r.alerts.RecordViolation(systemPrincipal, fmt.Sprintf("hash chain broken at sequence %d", broken))
	}

	_, err = r.ledger.Append(ctx, domain.EventInput{
		EventType:   domain.EventSecurityEvent,
		PrincipalID: systemPrincipal,
		RoleAtTime:  systemPrincipal,
		Payload: map[string]any{
			"action":          "chain_verification",
			"outcome":         "broken",
			"severity":        domain.SeverityHigh,
			"first_broken_at": broken,
			"checked":         res.Checked,
		},
	})
	if err != nil {
		return res, err
	}
	return res, nil
}
