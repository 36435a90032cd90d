// Package alert turns repeated denials and isolation violations into
// operator-visible alerts. Individual denials are already on the ledger;
// the dispatcher adds the pattern.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fairgate/internal/domain"
	"fairgate/internal/gateway"
)

var _ gateway.DenialSink = (*Dispatcher)(nil)

const (
	defaultThreshold = 5
	defaultWindow    = 10 * time.Minute
	recentKept       = 8
	maxBuckets       = 1024
	appendTimeout    = 5 * time.Second
)

// Options tune the dispatcher. Zero values select the defaults.
type Options struct {
	// Threshold is how many denials a principal gets inside the window
	// before the next one raises an alert.
	Threshold int
	// Window is the sliding window backing the threshold.
	Window time.Duration
}

// bucket is the per-principal window state. The limiter's bucket drains one
// token per recorded event and refills at threshold-per-window, so running
// dry means the principal exceeded the threshold inside the window.
type bucket struct {
	lim       *rate.Limiter
	recent    []string
	lastAlert time.Time
	lastSeen  time.Time
}

// Dispatcher watches per-principal denial and violation counts and
// escalates patterns as security events. It is called synchronously from
// the gateway and the isolation router, so nothing here blocks on the
// triggering request's context.
type Dispatcher struct {
	ledger domain.LedgerAppender
	logger *slog.Logger

	threshold int
	window    time.Duration
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewDispatcher creates the dispatcher over the ledger.
func NewDispatcher(ledger domain.LedgerAppender, logger *slog.Logger, opts Options) *Dispatcher {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	window := opts.Window
	if window <= 0 {
		window = defaultWindow
	}
	return &Dispatcher{
		ledger:    ledger,
		logger:    logger,
		threshold: threshold,
		window:    window,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
	}
}

// RecordDenial counts one authorization denial against the principal's
// window.
func (d *Dispatcher) RecordDenial(principalID, operation string) {
	d.note(principalID, "denial: "+operation)
}

// RecordViolation handles an isolation breach: an immediate operator alert
// (the breach itself is already on the ledger), plus a count against the
// window so a principal mixing denials and breaches still trips the
// pattern alert.
func (d *Dispatcher) RecordViolation(principalID, detail string) {
	d.logger.Error("operator alert: isolation violation",
		"principal_id", principalID,
		"detail", detail)
	d.note(principalID, "violation: "+detail)
}

func (d *Dispatcher) note(principalID, entry string) {
	now := d.now()

	d.mu.Lock()
	b := d.buckets[principalID]
	if b == nil {
		if len(d.buckets) >= maxBuckets {
			d.prune(now)
		}
		b = &bucket{lim: rate.NewLimiter(rate.Every(d.window/time.Duration(d.threshold)), d.threshold)}
		d.buckets[principalID] = b
	}
	b.lastSeen = now
	b.recent = append(b.recent, entry)
	if len(b.recent) > recentKept {
		b.recent = b.recent[len(b.recent)-recentKept:]
	}

	if b.lim.AllowN(now, 1) {
		d.mu.Unlock()
		return
	}
	// One alert per window per principal; the pattern is already reported.
	if !b.lastAlert.IsZero() && now.Sub(b.lastAlert) < d.window {
		d.mu.Unlock()
		return
	}
	b.lastAlert = now
	recent := append([]string(nil), b.recent...)
	d.mu.Unlock()

	d.fire(principalID, recent)
}

// prune drops buckets idle for a full window. Caller holds the lock.
func (d *Dispatcher) prune(now time.Time) {
	for id, b := range d.buckets {
		if now.Sub(b.lastSeen) > d.window {
			delete(d.buckets, id)
		}
	}
}

func (d *Dispatcher) fire(principalID string, recent []string) {
	d.logger.Error("operator alert: denial threshold exceeded",
		"principal_id", principalID,
		"threshold", d.threshold,
		"window", d.window.String(),
		"recent", recent)

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	_, err := d.ledger.Append(ctx, domain.EventInput{
		EventType:   domain.EventSecurityEvent,
		PrincipalID: principalID,
		Payload: map[string]any{
			"action":    "alert_threshold_exceeded",
			"severity":  domain.SeverityElevated,
			"threshold": d.threshold,
			"window":    d.window.String(),
			"recent":    recent,
		},
	})
	if err != nil {
		d.logger.Error("operator alert could not be recorded",
			"principal_id", principalID,
			"error", err)
	}
}
