package mcptool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"fairgate/internal/domain"
	"fairgate/internal/gateway"
)

// --- Input/Output types ---

// ApplicationResult is the tool-facing form of one application. Every field
// is rendered as a string so a redacted value and a real one share a type;
// masked fields carry the redaction marker, never the stored value.
type ApplicationResult struct {
	ID            string `json:"id"`
	ApplicantName string `json:"applicant_name"`
	SSNLast4      string `json:"ssn_last4"`
	IncomeCents   string `json:"income_cents"`
	AmountCents   string `json:"amount_cents"`
	Status        string `json:"status"`
	AssignedTo    string `json:"assigned_to"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// ListApplicationsInput defines parameters for the list_applications tool.
type ListApplicationsInput struct {
	MaxResults int    `json:"max_results,omitempty" jsonschema:"page size, up to 1000"`
	PageToken  string `json:"page_token,omitempty" jsonschema:"opaque token from a previous page"`
}

// ListApplicationsOutput contains one page of applications or the refusal.
type ListApplicationsOutput struct {
	Applications  []ApplicationResult `json:"applications,omitempty"`
	TotalCount    int64               `json:"total_count"`
	NextPageToken string              `json:"next_page_token,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// GetApplicationInput defines parameters for the get_application tool.
type GetApplicationInput struct {
	ApplicationID string `json:"application_id" jsonschema:"application id"`
}

// GetApplicationOutput contains the application or the refusal.
type GetApplicationOutput struct {
	Application *ApplicationResult `json:"application,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// RecordDecisionInput defines parameters for the record_decision tool.
type RecordDecisionInput struct {
	ApplicationID     string `json:"application_id" jsonschema:"application id"`
	Outcome           string `json:"outcome" jsonschema:"APPROVE or DENY"`
	Rationale         string `json:"rationale" jsonschema:"free-text rationale for the decision"`
	RecommenderOutput string `json:"recommender_output,omitempty" jsonschema:"raw recommender output, when a model was consulted"`
	HumanOutput       string `json:"human_output,omitempty" jsonschema:"reviewing human's notes"`
	Override          bool   `json:"override,omitempty" jsonschema:"set to re-decide an already decided application"`
}

// RecordDecisionOutput reports the ledger position of the recorded decision.
type RecordDecisionOutput struct {
	SequenceNo int64  `json:"sequence_no,omitempty"`
	EventType  string `json:"event_type,omitempty"`
	SubjectID  string `json:"subject_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// AggregateDemographicsInput defines parameters for the
// aggregate_demographics tool.
type AggregateDemographicsInput struct {
	GroupBy  []string `json:"group_by" jsonschema:"demographic attributes to group by, at most two"`
	Statuses []string `json:"statuses,omitempty" jsonschema:"restrict to applications in these statuses"`
}

// AggregateGroup is one aggregate row at or above the minimum sample size.
type AggregateGroup struct {
	GroupLabels map[string]string  `json:"group_labels"`
	Values      map[string]float64 `json:"values"`
	SampleSize  int                `json:"sample_size"`
}

// AggregateDemographicsOutput contains the aggregate rows or the refusal.
type AggregateDemographicsOutput struct {
	Groups []AggregateGroup `json:"groups,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// CheckAccessInput defines parameters for the check_access tool.
type CheckAccessInput struct {
	Operation string `json:"operation" jsonschema:"operation identifier, e.g. applications.read"`
	SubjectID string `json:"subject_id,omitempty" jsonschema:"case the operation would touch, if any"`
}

// CheckAccessOutput contains the dry-run decision and its constraints.
type CheckAccessOutput struct {
	Operation    string `json:"operation,omitempty"`
	Outcome      string `json:"outcome,omitempty"`
	Message      string `json:"message,omitempty"`
	ScopeFilter  string `json:"scope_filter,omitempty"`
	MaskedFields string `json:"masked_fields,omitempty"`
	Error        string `json:"error,omitempty"`
}

// --- Handlers ---

func (s *Server) handleListApplications(ctx context.Context, req *mcpsdk.CallToolRequest, input ListApplicationsInput) (*mcpsdk.CallToolResult, ListApplicationsOutput, error) {
	_, d, err := s.authorize(ctx, domain.OpApplicationsList, "")
	if err != nil {
		if msg, ok := refusalText(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, ListApplicationsOutput{Error: msg}, nil
		}
		return nil, ListApplicationsOutput{}, err
	}

	if input.MaxResults < 0 {
		return &mcpsdk.CallToolResult{IsError: true}, ListApplicationsOutput{Error: "max_results must be a non-negative integer"}, nil
	}
	page := domain.PageRequest{MaxResults: input.MaxResults, PageToken: input.PageToken}

	apps, total, err := s.applications.List(ctx, d.ScopeFilter, page)
	if err != nil {
		if msg, ok := refusalText(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, ListApplicationsOutput{Error: msg}, nil
		}
		return nil, ListApplicationsOutput{}, err
	}

	out := ListApplicationsOutput{
		Applications:  make([]ApplicationResult, len(apps)),
		TotalCount:    total,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	}
	for i := range apps {
		out.Applications[i] = toApplicationResult(&apps[i], d.FieldMask)
	}
	return nil, out, nil
}

func (s *Server) handleGetApplication(ctx context.Context, req *mcpsdk.CallToolRequest, input GetApplicationInput) (*mcpsdk.CallToolResult, GetApplicationOutput, error) {
	if input.ApplicationID == "" {
		return &mcpsdk.CallToolResult{IsError: true}, GetApplicationOutput{Error: "application_id is required"}, nil
	}
	_, d, err := s.authorize(ctx, domain.OpApplicationsRead, input.ApplicationID)
	if err != nil {
		if msg, ok := refusalText(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, GetApplicationOutput{Error: msg}, nil
		}
		return nil, GetApplicationOutput{}, err
	}

	app, err := s.applications.GetByID(ctx, input.ApplicationID, d.ScopeFilter)
	if err != nil {
		if msg, ok := refusalText(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, GetApplicationOutput{Error: msg}, nil
		}
		return nil, GetApplicationOutput{}, err
	}

	result := toApplicationResult(app, d.FieldMask)
	return nil, GetApplicationOutput{Application: &result}, nil
}

func (s *Server) handleRecordDecision(ctx context.Context, req *mcpsdk.CallToolRequest, input RecordDecisionInput) (*mcpsdk.CallToolResult, RecordDecisionOutput, error) {
	if input.ApplicationID == "" {
		return &mcpsdk.CallToolResult{IsError: true}, RecordDecisionOutput{Error: "application_id is required"}, nil
	}
	caller, d, err := s.authorize(ctx, domain.OpApplicationsDecide, input.ApplicationID)
	if err != nil {
		if msg, ok := refusalText(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, RecordDecisionOutput{Error: msg}, nil
		}
		return nil, RecordDecisionOutput{}, err
	}

	app, err := s.applications.GetByID(ctx, input.ApplicationID, d.ScopeFilter)
	if err != nil {
		if msg, ok := refusalText(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, RecordDecisionOutput{Error: msg}, nil
		}
		return nil, RecordDecisionOutput{}, err
	}
	if app.Status == domain.ApplicationStatusDecided && !input.Override {
		msg := fmt.Sprintf("application %s is already decided; submit an override", input.ApplicationID)
		return &mcpsdk.CallToolResult{IsError: true}, RecordDecisionOutput{Error: msg}, nil
	}

	// Free text headed for the general-path ledger goes through the output
	// net first. A detection refuses the decision rather than cleaning it.
	freeText := strings.Join([]string{input.Rationale, input.RecommenderOutput, input.HumanOutput}, "\n")
	if err := s.isolation.ScanOutput(ctx, caller, input.ApplicationID, freeText); err != nil {
		if msg, ok := refusalText(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, RecordDecisionOutput{Error: msg}, nil
		}
		return nil, RecordDecisionOutput{}, err
	}

	rec := domain.DecisionRecord{
		SubjectID:         input.ApplicationID,
		Outcome:           input.Outcome,
		Rationale:         input.Rationale,
		RecommenderOutput: input.RecommenderOutput,
		HumanOutput:       input.HumanOutput,
		Override:          input.Override,
	}
	seq, err := s.ledger.RecordDecision(ctx, caller, rec)
	if err != nil {
		if msg, ok := refusalText(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, RecordDecisionOutput{Error: msg}, nil
		}
		return nil, RecordDecisionOutput{}, err
	}

	// The ledger event is authoritative; the status column is a projection.
	if err := s.applications.SetStatus(ctx, input.ApplicationID, domain.ApplicationStatusDecided); err != nil {
		return nil, RecordDecisionOutput{}, err
	}

	kind := domain.EventDecision
	if input.Override {
		kind = domain.EventOverride
	}
	return nil, RecordDecisionOutput{
		SequenceNo: seq,
		EventType:  string(kind),
		SubjectID:  input.ApplicationID,
		Status:     string(domain.ApplicationStatusDecided),
	}, nil
}

func (s *Server) handleAggregateDemographics(ctx context.Context, req *mcpsdk.CallToolRequest, input AggregateDemographicsInput) (*mcpsdk.CallToolResult, AggregateDemographicsOutput, error) {
	caller, _, err := s.authorize(ctx, domain.OpDemographicsAgg, "")
	if err != nil {
		if msg, ok := refusalText(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, AggregateDemographicsOutput{Error: msg}, nil
		}
		return nil, AggregateDemographicsOutput{}, err
	}

	stats, err := s.isolation.Aggregate(ctx, caller, domain.AggregateSpec{
		GroupBy:  input.GroupBy,
		Statuses: input.Statuses,
	})
	if err != nil {
		if msg, ok := refusalText(err); ok {
			return &mcpsdk.CallToolResult{IsError: true}, AggregateDemographicsOutput{Error: msg}, nil
		}
		return nil, AggregateDemographicsOutput{}, err
	}

	out := AggregateDemographicsOutput{Groups: make([]AggregateGroup, len(stats))}
	for i, st := range stats {
		out.Groups[i] = AggregateGroup{
			GroupLabels: st.GroupLabels,
			Values:      st.Values,
			SampleSize:  st.SampleSize,
		}
	}
	return nil, out, nil
}

// handleCheckAccess evaluates without executing. The gateway records the
// evaluation like any other, so a dry run leaves the same ledger trail a
// real attempt would.
func (s *Server) handleCheckAccess(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckAccessInput) (*mcpsdk.CallToolResult, CheckAccessOutput, error) {
	if input.Operation == "" {
		return &mcpsdk.CallToolResult{IsError: true}, CheckAccessOutput{Error: "operation is required"}, nil
	}
	p, err := s.principal(ctx)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, CheckAccessOutput{Error: err.Error()}, nil
	}

	d, err := s.gateway.Authorize(ctx, gateway.Request{
		Principal: p,
		Operation: input.Operation,
		SubjectID: input.SubjectID,
		Kind:      domain.EventToolCall,
	})
	if err != nil {
		// A refused evaluation is still an answer for a dry run; only
		// infrastructure failures fail the call.
		var denied *domain.AccessDeniedError
		var authn *domain.AuthenticationError
		if errors.As(err, &denied) || errors.As(err, &authn) {
			return nil, CheckAccessOutput{
				Operation: input.Operation,
				Outcome:   string(domain.OutcomeDeny),
				Message:   err.Error(),
			}, nil
		}
		return nil, CheckAccessOutput{}, err
	}

	out := CheckAccessOutput{
		Operation: input.Operation,
		Outcome:   string(d.Outcome),
	}
	if d.ScopeFilter != nil {
		out.ScopeFilter = d.ScopeFilter.String()
	}
	if !d.FieldMask.Empty() {
		out.MaskedFields = d.FieldMask.String()
	}
	return nil, out, nil
}

// --- Helpers ---

// refusalText maps a domain error to the in-band refusal the agent sees.
// ok is false for errors outside the taxonomy, which surface as protocol
// failures instead of tool results.
func refusalText(err error) (string, bool) {
	var scope *domain.ScopeError
	if errors.As(err, &scope) {
		// An out-of-scope resource must look exactly like a missing one.
		return "resource not found", true
	}

	var authn *domain.AuthenticationError
	var denied *domain.AccessDeniedError
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var sample *domain.InsufficientSampleError
	var isolated *domain.IsolationError
	switch {
	case errors.As(err, &authn),
		errors.As(err, &denied),
		errors.As(err, &notFound),
		errors.As(err, &validation),
		errors.As(err, &conflict),
		errors.As(err, &sample),
		errors.As(err, &isolated):
		return err.Error(), true
	}
	return "", false
}

// toApplicationResult renders an application with the caller's field mask
// applied. Values route through the same payload map the policy mask rules
// name, so a masked field comes back as the redaction marker regardless of
// its storage type.
func toApplicationResult(a *domain.Application, mask domain.FieldMask) ApplicationResult {
	p := mask.Apply(a.Payload())
	return ApplicationResult{
		ID:            fmt.Sprint(p["id"]),
		ApplicantName: fmt.Sprint(p["applicant_name"]),
		SSNLast4:      fmt.Sprint(p["ssn_last4"]),
		IncomeCents:   fmt.Sprint(p["income_cents"]),
		AmountCents:   fmt.Sprint(p["amount_cents"]),
		Status:        fmt.Sprint(p["status"]),
		AssignedTo:    fmt.Sprint(p["assigned_to"]),
		CreatedAt:     fmt.Sprint(p["created_at"]),
		UpdatedAt:     fmt.Sprint(p["updated_at"]),
	}
}
