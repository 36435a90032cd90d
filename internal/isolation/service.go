package isolation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"fairgate/internal/domain"
)

const (
	// DefaultMinSampleSize is the smallest group an aggregate may reveal.
	DefaultMinSampleSize = 30
	// DefaultQueryTimeout bounds isolated-path storage I/O so a slow
	// aggregation returns an error instead of hanging its caller.
	DefaultQueryTimeout = 10 * time.Second
)

// SubjectStatusReader supplies general-path application ids for the
// aggregation join. The isolated path reads these identifiers and never
// exposes anything back through the interface.
type SubjectStatusReader interface {
	SubjectIDsWithStatus(ctx context.Context, statuses []string) ([]string, error)
}

// ViolationSink receives isolation breaches for operator alerting, distinct
// from the error returned to the principal that tripped the net.
type ViolationSink interface {
	RecordViolation(principalID, detail string)
}

// Options tune the router. Zero values select the defaults.
type Options struct {
	MinSampleSize int
	QueryTimeout  time.Duration
}

// Router is the only component holding the isolated-partition credential.
// Demographic records go in through WriteIsolated, come out only as
// aggregate statistics, and two secondary nets (content exclusion, output
// scanning) catch material that never went through WriteIsolated at all.
type Router struct {
	part      *partition
	statuses  SubjectStatusReader
	ledger    domain.LedgerAppender
	logger    *slog.Logger
	alerts    ViolationSink
	minSample int
	timeout   time.Duration
}

// NewRouter opens the isolated partition at path and wires the router over
// it. An empty path opens an in-memory partition.
func NewRouter(path string, statuses SubjectStatusReader, ledger domain.LedgerAppender, logger *slog.Logger, opts Options) (*Router, error) {
	if opts.MinSampleSize <= 0 {
		opts.MinSampleSize = DefaultMinSampleSize
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	part, err := openPartition(path)
	if err != nil {
		return nil, err
	}
	return &Router{
		part:      part,
		statuses:  statuses,
		ledger:    ledger,
		logger:    logger,
		minSample: opts.MinSampleSize,
		timeout:   opts.QueryTimeout,
	}, nil
}

// Close releases the isolated partition.
func (r *Router) Close() error { return r.part.close() }

// SetViolationSink registers the operator alert hook. Optional.
func (r *Router) SetViolationSink(v ViolationSink) { r.alerts = v }

// WriteIsolated stores one demographic record in the isolated partition.
// The write and its data_access ledger event succeed or fail together: if
// the ledger cannot record the access, the record is rolled back.
func (r *Router) WriteIsolated(ctx context.Context, caller *domain.Principal, rec *domain.IsolatedRecord) (string, error) {
	if rec == nil {
		return "", domain.ErrValidation("record is required")
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = domain.NewID()
	}
	rec.CreatedAt = time.Now().UTC()

	tx, err := r.part.insert(ctx, rec)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(rec.Attributes))
	for name := range rec.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	_, err = r.ledger.Append(ctx, domain.EventInput{
		EventType:   domain.EventDataAccess,
		PrincipalID: caller.ID,
		RoleAtTime:  string(caller.Role),
		SubjectID:   rec.SubjectID,
		Payload: map[string]any{
			"action":          "demographic_write",
			"record_id":       rec.ID,
			"attribute_names": names,
			"collected_via":   rec.CollectedVia,
		},
	})
	if err != nil {
		tx.Rollback()
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	r.logger.Debug("isolated record written", "record_id", rec.ID, "subject_id", rec.SubjectID)
	return rec.ID, nil
}

// Aggregate computes threshold-gated statistics over the isolated
// partition. Any resulting group smaller than the minimum sample size
// refuses the whole query; partial data is never returned. Each statistic
// carries the distinct-subject count and its share of the aggregated
// population. The computation is bounded by the configured timeout.
func (r *Router) Aggregate(ctx context.Context, caller *domain.Principal, spec domain.AggregateSpec) ([]domain.AggregateStatistic, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var subjectIDs []string
	if len(spec.Statuses) > 0 {
		ids, err := r.statuses.SubjectIDsWithStatus(ctx, spec.Statuses)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []string{}
		}
		subjectIDs = ids
	}

	groups, err := r.part.aggregate(ctx, spec.GroupBy, subjectIDs)
	if err != nil {
		return nil, err
	}

	smallest := -1
	for _, g := range groups {
		if smallest == -1 || g.n < smallest {
			smallest = g.n
		}
	}
	if len(groups) == 0 {
		smallest = 0
	}
	if smallest < r.minSample {
		if err := r.logAggregate(ctx, caller, spec, "insufficient_sample", 0, 0); err != nil {
			return nil, err
		}
		return nil, domain.ErrInsufficientSample(r.minSample, smallest)
	}

	total := 0
	for _, g := range groups {
		total += g.n
	}
	stats := make([]domain.AggregateStatistic, 0, len(groups))
	for _, g := range groups {
		stats = append(stats, domain.AggregateStatistic{
			GroupLabels: g.labels,
			Values: map[string]float64{
				"count": float64(g.n),
				"share": float64(g.n) / float64(total),
			},
			SampleSize: g.n,
		})
	}

	if err := r.logAggregate(ctx, caller, spec, "ok", len(groups), total); err != nil {
		return nil, err
	}
	return stats, nil
}

// logAggregate records the aggregation as a data_access event. The payload
// names the query shape, never a group label from a refused cell.
func (r *Router) logAggregate(ctx context.Context, caller *domain.Principal, spec domain.AggregateSpec, outcome string, groups, sampleTotal int) error {
	payload := map[string]any{
		"action":   "demographic_aggregate",
		"outcome":  outcome,
		"group_by": append([]string(nil), spec.GroupBy...),
		"minimum":  r.minSample,
	}
	if len(spec.Statuses) > 0 {
		payload["statuses"] = append([]string(nil), spec.Statuses...)
	}
	if outcome == "ok" {
		payload["groups"] = groups
		payload["sample_total"] = sampleTotal
	}
	_, err := r.ledger.Append(ctx, domain.EventInput{
		EventType:   domain.EventDataAccess,
		PrincipalID: caller.ID,
		RoleAtTime:  string(caller.Role),
		Payload:     payload,
	})
	return err
}

// ExcludeIfDetected screens extracted content before it may enter the
// general path. Fields tripping a detection pattern are stripped from the
// returned payload and the exclusion is recorded with field names and
// categories only; the excluded values appear nowhere outside the isolation
// boundary.
func (r *Router) ExcludeIfDetected(ctx context.Context, caller *domain.Principal, content *domain.ExtractedContent) (map[string]string, []string, error) {
	if content == nil {
		return nil, nil, domain.ErrValidation("content is required")
	}
	if err := content.Validate(); err != nil {
		return nil, nil, err
	}

	cleaned := make(map[string]string, len(content.Payload))
	categories := make(map[string]any)
	var excluded []string
	for name, value := range content.Payload {
		cats := detectField(name, value)
		if len(cats) == 0 {
			cleaned[name] = value
			continue
		}
		excluded = append(excluded, name)
		categories[name] = cats
	}
	if len(excluded) == 0 {
		return cleaned, nil, nil
	}
	sort.Strings(excluded)

	_, err := r.ledger.Append(ctx, domain.EventInput{
		EventType:   domain.EventDataAccess,
		PrincipalID: caller.ID,
		RoleAtTime:  string(caller.Role),
		Payload: map[string]any{
			"action":          "isolated_content_excluded",
			"source_ref":      content.SourceRef,
			"excluded_fields": excluded,
			"categories":      categories,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	r.logger.Info("isolated-category content excluded from extracted payload",
		"source_ref", content.SourceRef,
		"excluded_fields", excluded)
	return cleaned, excluded, nil
}

// ScanOutput is the secondary net over generated natural-language output.
// A match means isolated-category content crossed the boundary despite the
// primary nets, so it is escalated as an elevated security_event and an
// IsolationError, never silently cleaned.
func (r *Router) ScanOutput(ctx context.Context, caller *domain.Principal, subjectID, text string) error {
	cats := detectText(text)
	if len(cats) == 0 {
		return nil
	}
	if err := r.recordBreach(ctx, caller, subjectID, "output_scan", domain.SeverityElevated, cats); err != nil {
		return err
	}
	return domain.ErrIsolation("isolated-category content detected in generated output")
}

// RecordStorageViolation escalates a general-path attempt to reach the
// isolated partition. Fatal at the storage layer; recorded at high severity.
func (r *Router) RecordStorageViolation(ctx context.Context, caller *domain.Principal, detail string) error {
	if err := r.recordBreach(ctx, caller, "", "storage", domain.SeverityHigh, []string{detail}); err != nil {
		return err
	}
	return domain.ErrIsolation("isolated partition is not reachable from the general path")
}

func (r *Router) recordBreach(ctx context.Context, caller *domain.Principal, subjectID, net, severity string, details []string) error {
	r.logger.Error("isolation breach detected",
		"principal_id", caller.ID,
		"net", net,
		"severity", severity,
		"details", details)
	if r.alerts != nil {
		r.alerts.RecordViolation(caller.ID, net)
	}
	_, err := r.ledger.Append(ctx, domain.EventInput{
		EventType:   domain.EventSecurityEvent,
		PrincipalID: caller.ID,
		RoleAtTime:  string(caller.Role),
		SubjectID:   subjectID,
		Payload: map[string]any{
			"action":   "isolation_breach",
			"net":      net,
			"severity": severity,
			"details":  details,
		},
	})
	return err
}
