package mcptool

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "fairgate/internal/db"
	"fairgate/internal/db/repository"
	"fairgate/internal/domain"
	"fairgate/internal/gateway"
	"fairgate/internal/isolation"
	"fairgate/internal/ledger"
	"fairgate/internal/middleware"
	"fairgate/internal/policy"
)

const testSecret = "mcp-test-secret-32-bytes-xxxxxxx"

type toolEnv struct {
	t          *testing.T
	apps       *repository.ApplicationRepo
	ledgerSvc  *ledger.Service
	ledgerRepo *repository.LedgerEventRepo
	gw         *gateway.Service
	iso        *isolation.Router
	validator  middleware.JWTValidator
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newToolEnv(t *testing.T) *toolEnv {
	t.Helper()
	logger := discardLogger()

	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(policy.DefaultYAML), 0o600))
	policies := policy.NewStore(policyPath, logger, policy.StoreOptions{})
	_, err := policies.Load(context.Background())
	require.NoError(t, err)

	appsDB, _ := internaldb.OpenTestSQLite(t)
	apps := repository.NewApplicationRepo(appsDB)

	appendDB, readDB := internaldb.OpenTestLedger(t)
	ledgerRepo := repository.NewLedgerEventRepo(appendDB, readDB)
	ledgerSvc := ledger.NewService(ledgerRepo, policies, logger)

	iso, err := isolation.NewRouter("", apps, ledgerSvc, logger, isolation.Options{MinSampleSize: 3})
	require.NoError(t, err)
	t.Cleanup(func() { iso.Close() })

	validator, err := middleware.NewHS256Validator(testSecret)
	require.NoError(t, err)

	return &toolEnv{
		t:          t,
		apps:       apps,
		ledgerSvc:  ledgerSvc,
		ledgerRepo: ledgerRepo,
		gw:         gateway.NewService(policies, ledgerSvc, logger),
		iso:        iso,
		validator:  validator,
	}
}

// mint signs an HS256 credential the way the identity provider would.
func (e *toolEnv) mint(sub string, roles []string, expiry time.Time) string {
	e.t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"roles": roles,
		"exp":   expiry.Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(e.t, err)
	return signed
}

func (e *toolEnv) server(credential string) *Server {
	return NewServer(credential, e.validator, e.gw, e.apps, e.ledgerSvc, e.iso, discardLogger())
}

func (e *toolEnv) serverAs(sub, role string) *Server {
	return e.server(e.mint(sub, []string{role}, time.Now().Add(time.Hour)))
}

// seedApplication inserts an application directly, below the gateway.
func (e *toolEnv) seedApplication(assignedTo string) *domain.Application {
	e.t.Helper()
	app, err := e.apps.Create(context.Background(), &domain.Application{
		ApplicantName: "Dana Whitfield",
		SSNLast4:      "6789",
		IncomeCents:   8200000,
		AmountCents:   30000000,
		AssignedTo:    assignedTo,
	})
	require.NoError(e.t, err)
	return app
}

// seedDemographics writes n isolated records sharing the given race label.
func (e *toolEnv) seedDemographics(n int, race string) {
	e.t.Helper()
	writer := &domain.Principal{ID: "intake_bot", Role: domain.RoleIntakeAgent}
	for i := 0; i < n; i++ {
		_, err := e.iso.WriteIsolated(context.Background(), writer, &domain.IsolatedRecord{
			SubjectID:    domain.NewID(),
			Attributes:   map[string]string{"race": race},
			CollectedVia: "voluntary_survey",
		})
		require.NoError(e.t, err)
	}
}

// lastEvent returns the chain head event.
func (e *toolEnv) lastEvent() *domain.LedgerEvent {
	e.t.Helper()
	ctx := context.Background()
	seq, _, err := e.ledgerRepo.Head(ctx)
	require.NoError(e.t, err)
	require.Positive(e.t, seq, "expected at least one ledger event")
	ev, err := e.ledgerRepo.GetBySequence(ctx, seq)
	require.NoError(e.t, err)
	return ev
}

func TestToolRegistration(t *testing.T) {
	e := newToolEnv(t)
	s := e.serverAs("officer_7", "loan_officer")
	require.NotNil(t, s.mcpServer)
}

func TestListApplications_ScopedAndMasked(t *testing.T) {
	e := newToolEnv(t)
	e.seedApplication("officer_7")
	e.seedApplication("officer_7")
	e.seedApplication("officer_9")

	s := e.serverAs("officer_7", "loan_officer")
	result, out, err := s.handleListApplications(context.Background(), &mcpsdk.CallToolRequest{}, ListApplicationsInput{})
	require.NoError(t, err)
	require.Nil(t, result)

	assert.EqualValues(t, 2, out.TotalCount)
	require.Len(t, out.Applications, 2)
	for _, app := range out.Applications {
		assert.Equal(t, "officer_7", app.AssignedTo)
		assert.Equal(t, domain.MaskedValue, app.SSNLast4)
		assert.Equal(t, "8200000", app.IncomeCents)
	}
	assert.Empty(t, out.Error)

	// Tool traffic is recorded under its own event type.
	ev := e.lastEvent()
	assert.Equal(t, domain.EventToolCall, ev.EventType)
	assert.Equal(t, "officer_7", ev.PrincipalID)
	assert.Equal(t, "applications.list", ev.Payload["operation"])
	assert.Equal(t, "ALLOW", ev.Payload["outcome"])
}

func TestListApplications_DeniedRoleRecorded(t *testing.T) {
	e := newToolEnv(t)

	s := e.serverAs("analyst_1", "fairness_analyst")
	result, out, err := s.handleListApplications(context.Background(), &mcpsdk.CallToolRequest{}, ListApplicationsInput{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, "operation not permitted", out.Error)
	assert.Empty(t, out.Applications)

	ev := e.lastEvent()
	assert.Equal(t, domain.EventToolCall, ev.EventType)
	assert.Equal(t, "DENY", ev.Payload["outcome"])
}

func TestGetApplication(t *testing.T) {
	e := newToolEnv(t)
	app := e.seedApplication("officer_7")

	s := e.serverAs("officer_7", "loan_officer")
	result, out, err := s.handleGetApplication(context.Background(), &mcpsdk.CallToolRequest{}, GetApplicationInput{
		ApplicationID: app.ID,
	})
	require.NoError(t, err)
	require.Nil(t, result)
	require.NotNil(t, out.Application)

	assert.Equal(t, app.ID, out.Application.ID)
	assert.Equal(t, "Dana Whitfield", out.Application.ApplicantName)
	assert.Equal(t, domain.MaskedValue, out.Application.SSNLast4)
	assert.Equal(t, string(domain.ApplicationStatusReceived), out.Application.Status)
}

func TestGetApplication_OutOfScopeLooksMissing(t *testing.T) {
	e := newToolEnv(t)
	other := e.seedApplication("officer_9")

	s := e.serverAs("officer_7", "loan_officer")

	result, out, err := s.handleGetApplication(context.Background(), &mcpsdk.CallToolRequest{}, GetApplicationInput{
		ApplicationID: other.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)

	result, missing, err := s.handleGetApplication(context.Background(), &mcpsdk.CallToolRequest{}, GetApplicationInput{
		ApplicationID: "app_never_created",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)

	// A case the caller must not see answers exactly like one that does
	// not exist.
	assert.Equal(t, "resource not found", out.Error)
	assert.Equal(t, missing.Error, out.Error)
}

func TestGetApplication_RequiresID(t *testing.T) {
	e := newToolEnv(t)

	s := e.serverAs("officer_7", "loan_officer")
	result, out, err := s.handleGetApplication(context.Background(), &mcpsdk.CallToolRequest{}, GetApplicationInput{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, "application_id is required", out.Error)
}

func TestRecordDecision(t *testing.T) {
	e := newToolEnv(t)
	app := e.seedApplication("officer_7")

	s := e.serverAs("officer_7", "loan_officer")
	result, out, err := s.handleRecordDecision(context.Background(), &mcpsdk.CallToolRequest{}, RecordDecisionInput{
		ApplicationID: app.ID,
		Outcome:       "APPROVE",
		Rationale:     "income supports the requested amount",
	})
	require.NoError(t, err)
	require.Nil(t, result)

	assert.Positive(t, out.SequenceNo)
	assert.Equal(t, "decision", out.EventType)
	assert.Equal(t, app.ID, out.SubjectID)
	assert.Equal(t, string(domain.ApplicationStatusDecided), out.Status)

	stored, err := e.apps.GetByID(context.Background(), app.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationStatusDecided, stored.Status)

	ev := e.lastEvent()
	assert.Equal(t, domain.EventDecision, ev.EventType)
	assert.Equal(t, app.ID, ev.SubjectID)
	assert.Equal(t, "APPROVE", ev.Payload["outcome"])
}

func TestRecordDecision_ConflictThenOverride(t *testing.T) {
	e := newToolEnv(t)
	app := e.seedApplication("officer_7")

	s := e.serverAs("officer_7", "loan_officer")
	ctx := context.Background()

	_, _, err := s.handleRecordDecision(ctx, &mcpsdk.CallToolRequest{}, RecordDecisionInput{
		ApplicationID: app.ID,
		Outcome:       "DENY",
		Rationale:     "debt ratio exceeds program limits",
	})
	require.NoError(t, err)

	// A second decision without the override flag is refused.
	result, out, err := s.handleRecordDecision(ctx, &mcpsdk.CallToolRequest{}, RecordDecisionInput{
		ApplicationID: app.ID,
		Outcome:       "APPROVE",
		Rationale:     "second look",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, out.Error, "already decided")

	result, out, err = s.handleRecordDecision(ctx, &mcpsdk.CallToolRequest{}, RecordDecisionInput{
		ApplicationID: app.ID,
		Outcome:       "APPROVE",
		Rationale:     "updated income documentation changes the ratio",
		HumanOutput:   "approved on appeal",
		Override:      true,
	})
	require.NoError(t, err)
	require.Nil(t, result)
	assert.Equal(t, "override", out.EventType)

	ev := e.lastEvent()
	assert.Equal(t, domain.EventOverride, ev.EventType)
	assert.Equal(t, true, ev.Payload["override"])
}

func TestRecordDecision_IsolatedTermRefused(t *testing.T) {
	e := newToolEnv(t)
	app := e.seedApplication("officer_7")

	s := e.serverAs("officer_7", "loan_officer")
	result, out, err := s.handleRecordDecision(context.Background(), &mcpsdk.CallToolRequest{}, RecordDecisionInput{
		ApplicationID: app.ID,
		Outcome:       "DENY",
		Rationale:     "applicant mentioned she is Hispanic during the interview",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, out.Error, "isolated-category content")
	assert.Zero(t, out.SequenceNo)

	// No decision was recorded; the breach itself is the chain head.
	ev := e.lastEvent()
	assert.Equal(t, domain.EventSecurityEvent, ev.EventType)
	assert.Equal(t, "isolation_breach", ev.Payload["action"])
	assert.Equal(t, "output_scan", ev.Payload["net"])

	stored, err := e.apps.GetByID(context.Background(), app.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationStatusReceived, stored.Status)
}

func TestAggregateDemographics(t *testing.T) {
	e := newToolEnv(t)
	e.seedDemographics(3, "asian")

	s := e.serverAs("analyst_1", "fairness_analyst")
	result, out, err := s.handleAggregateDemographics(context.Background(), &mcpsdk.CallToolRequest{}, AggregateDemographicsInput{
		GroupBy: []string{"race"},
	})
	require.NoError(t, err)
	require.Nil(t, result)

	require.Len(t, out.Groups, 1)
	g := out.Groups[0]
	assert.Equal(t, map[string]string{"race": "asian"}, g.GroupLabels)
	assert.Equal(t, 3, g.SampleSize)
	assert.InDelta(t, 3, g.Values["count"], 0.001)
	assert.InDelta(t, 1.0, g.Values["share"], 0.001)

	ev := e.lastEvent()
	assert.Equal(t, domain.EventDataAccess, ev.EventType)
	assert.Equal(t, "demographic_aggregate", ev.Payload["action"])
	assert.Equal(t, "ok", ev.Payload["outcome"])
}

func TestAggregateDemographics_SmallGroupRefused(t *testing.T) {
	e := newToolEnv(t)
	e.seedDemographics(2, "white")

	s := e.serverAs("analyst_1", "fairness_analyst")
	result, out, err := s.handleAggregateDemographics(context.Background(), &mcpsdk.CallToolRequest{}, AggregateDemographicsInput{
		GroupBy: []string{"race"},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, out.Error, "minimum sample size")
	assert.Empty(t, out.Groups)

	ev := e.lastEvent()
	assert.Equal(t, "insufficient_sample", ev.Payload["outcome"])
}

func TestCheckAccess_DryRun(t *testing.T) {
	e := newToolEnv(t)
	s := e.serverAs("officer_7", "loan_officer")
	ctx := context.Background()

	result, out, err := s.handleCheckAccess(ctx, &mcpsdk.CallToolRequest{}, CheckAccessInput{
		Operation: "applications.read",
		SubjectID: "app_42",
	})
	require.NoError(t, err)
	require.Nil(t, result)
	assert.Equal(t, "ALLOW", out.Outcome)
	assert.Equal(t, "assigned_to = officer_7", out.ScopeFilter)
	assert.Equal(t, "ssn_last4", out.MaskedFields)

	// The dry run leaves the same trail a real attempt would.
	ev := e.lastEvent()
	assert.Equal(t, domain.EventToolCall, ev.EventType)
	assert.Equal(t, "applications.read", ev.Payload["operation"])
	assert.Equal(t, "app_42", ev.SubjectID)

	_, denied, err := s.handleCheckAccess(ctx, &mcpsdk.CallToolRequest{}, CheckAccessInput{
		Operation: "ledger.export",
	})
	require.NoError(t, err)
	assert.Equal(t, "DENY", denied.Outcome)
	assert.Equal(t, "operation not permitted", denied.Message)

	_, unknown, err := s.handleCheckAccess(ctx, &mcpsdk.CallToolRequest{}, CheckAccessInput{
		Operation: "ledger.rewrite",
	})
	require.NoError(t, err)
	assert.Equal(t, "DENY", unknown.Outcome)
}

func TestCheckAccess_RequiresOperation(t *testing.T) {
	e := newToolEnv(t)
	s := e.serverAs("officer_7", "loan_officer")

	result, out, err := s.handleCheckAccess(context.Background(), &mcpsdk.CallToolRequest{}, CheckAccessInput{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, "operation is required", out.Error)
}

func TestCredentialFailures(t *testing.T) {
	e := newToolEnv(t)
	ctx := context.Background()

	t.Run("expired token fails closed", func(t *testing.T) {
		s := e.server(e.mint("officer_7", []string{"loan_officer"}, time.Now().Add(-time.Hour)))
		result, out, err := s.handleListApplications(ctx, &mcpsdk.CallToolRequest{}, ListApplicationsInput{})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.IsError)
		assert.Equal(t, "unauthorized: provide a valid bearer credential", out.Error)
	})

	t.Run("forged signature refused", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   "officer_7",
			"roles": []string{"loan_officer"},
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		forged, err := tok.SignedString([]byte("some-other-secret-entirely-xxxxx"))
		require.NoError(t, err)

		s := e.server(forged)
		result, out, herr := s.handleListApplications(ctx, &mcpsdk.CallToolRequest{}, ListApplicationsInput{})
		require.NoError(t, herr)
		require.NotNil(t, result)
		assert.True(t, result.IsError)
		assert.Equal(t, "unauthorized: provide a valid bearer credential", out.Error)
	})

	t.Run("ambiguous roles denied and recorded", func(t *testing.T) {
		s := e.server(e.mint("agent_overreach", []string{"loan_officer", "admin"}, time.Now().Add(time.Hour)))
		result, out, err := s.handleListApplications(ctx, &mcpsdk.CallToolRequest{}, ListApplicationsInput{})
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.IsError)
		assert.Equal(t, "operation not permitted", out.Error)

		ev := e.lastEvent()
		assert.Equal(t, domain.EventToolCall, ev.EventType)
		assert.Equal(t, "agent_overreach", ev.PrincipalID)
		assert.Equal(t, "", ev.RoleAtTime)
		assert.Equal(t, "DENY", ev.Payload["outcome"])
	})
}
