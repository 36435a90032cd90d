package alert

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairgate/internal/domain"
)

type mockAppender struct {
	appendFn func(ctx context.Context, in domain.EventInput) (int64, error)
	events   []domain.EventInput
}

func (m *mockAppender) Append(ctx context.Context, in domain.EventInput) (int64, error) {
	if m.appendFn != nil {
		return m.appendFn(ctx, in)
	}
	m.events = append(m.events, in)
	return int64(len(m.events)), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestDispatcher(opts Options) (*Dispatcher, *mockAppender, *time.Time) {
	appender := &mockAppender{}
	d := NewDispatcher(appender, discardLogger(), opts)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }
	return d, appender, &clock
}

func TestDispatcher_ThresholdFiresOnce(t *testing.T) {
	d, appender, _ := newTestDispatcher(Options{Threshold: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		d.RecordDenial("agent_1", "applications.read")
	}
	assert.Empty(t, appender.events)

	d.RecordDenial("agent_1", "applications.read")
	require.Len(t, appender.events, 1)

	ev := appender.events[0]
	assert.Equal(t, domain.EventSecurityEvent, ev.EventType)
	assert.Equal(t, "agent_1", ev.PrincipalID)
	assert.Equal(t, "alert_threshold_exceeded", ev.Payload["action"])
	assert.Equal(t, domain.SeverityElevated, ev.Payload["severity"])
	assert.Equal(t, 3, ev.Payload["threshold"])
	recent, ok := ev.Payload["recent"].([]string)
	require.True(t, ok)
	assert.Contains(t, recent, "denial: applications.read")

	// Still over the limit, but inside the cooldown.
	d.RecordDenial("agent_1", "applications.read")
	d.RecordDenial("agent_1", "applications.list")
	assert.Len(t, appender.events, 1)
}

func TestDispatcher_AlertsAgainAfterWindow(t *testing.T) {
	d, appender, clock := newTestDispatcher(Options{Threshold: 2, Window: time.Minute})

	for i := 0; i < 3; i++ {
		d.RecordDenial("agent_1", "ledger.export")
	}
	require.Len(t, appender.events, 1)

	*clock = clock.Add(2 * time.Minute)
	for i := 0; i < 3; i++ {
		d.RecordDenial("agent_1", "ledger.export")
	}
	assert.Len(t, appender.events, 2)
}

func TestDispatcher_WindowsArePerPrincipal(t *testing.T) {
	d, appender, _ := newTestDispatcher(Options{Threshold: 2, Window: time.Minute})

	d.RecordDenial("agent_1", "applications.read")
	d.RecordDenial("agent_2", "applications.read")
	d.RecordDenial("agent_1", "applications.read")
	d.RecordDenial("agent_2", "applications.read")
	assert.Empty(t, appender.events)

	d.RecordDenial("agent_2", "applications.read")
	require.Len(t, appender.events, 1)
	assert.Equal(t, "agent_2", appender.events[0].PrincipalID)
}

func TestDispatcher_ViolationsCountTowardWindow(t *testing.T) {
	d, appender, _ := newTestDispatcher(Options{Threshold: 3, Window: time.Minute})

	d.RecordDenial("agent_1", "applications.read")
	d.RecordDenial("agent_1", "applications.read")
	d.RecordViolation("agent_1", "output_scan")
	assert.Empty(t, appender.events)

	d.RecordViolation("agent_1", "output_scan")
	require.Len(t, appender.events, 1)
	recent, ok := appender.events[0].Payload["recent"].([]string)
	require.True(t, ok)
	assert.Contains(t, recent, "violation: output_scan")
	assert.Contains(t, recent, "denial: applications.read")
}

func TestDispatcher_AppendFailureDoesNotPanic(t *testing.T) {
	appender := &mockAppender{
		appendFn: func(ctx context.Context, in domain.EventInput) (int64, error) {
			return 0, domain.ErrLedgerUnavailable(context.DeadlineExceeded)
		},
	}
	d := NewDispatcher(appender, discardLogger(), Options{Threshold: 1, Window: time.Minute})

	d.RecordDenial("agent_1", "applications.read")
	d.RecordDenial("agent_1", "applications.read")
}

func TestDispatcher_PrunesIdleBuckets(t *testing.T) {
	d, _, clock := newTestDispatcher(Options{Threshold: 5, Window: time.Minute})

	d.RecordDenial("agent_old", "applications.read")
	*clock = clock.Add(5 * time.Minute)
	d.RecordDenial("agent_new", "applications.read")

	d.mu.Lock()
	d.prune(d.now())
	_, oldKept := d.buckets["agent_old"]
	_, newKept := d.buckets["agent_new"]
	d.mu.Unlock()

	assert.False(t, oldKept)
	assert.True(t, newKept)
}
