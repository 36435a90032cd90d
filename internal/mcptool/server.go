// Package mcptool exposes the platform to agent hosts over the Model
// Context Protocol. Every tool invocation re-verifies the session
// credential, rebuilds the principal, and asks the gateway for a decision
// before touching a service, so a conversation that outlives its token
// starts failing closed mid-session. Evaluations are recorded under the
// tool_call event type.
package mcptool

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"fairgate/internal/domain"
	"fairgate/internal/gateway"
	"fairgate/internal/isolation"
	"fairgate/internal/ledger"
	"fairgate/internal/middleware"
)

// serverVersion is reported to MCP clients during initialization.
const serverVersion = "0.1.0"

// Server wraps the MCP SDK server with the platform's authorization funnel.
// The credential is fixed when the host launches the process; its claims
// are re-verified on every call, never cached, so expiry and revocation
// take effect mid-conversation.
type Server struct {
	mcpServer    *mcpsdk.Server
	credential   string
	validator    middleware.JWTValidator
	gateway      *gateway.Service
	applications domain.ApplicationRepository
	ledger       *ledger.Service
	isolation    *isolation.Router
	logger       *slog.Logger
}

// NewServer creates the tool server over the platform services. credential
// is the bearer token issued to the agent host for this session.
func NewServer(
	credential string,
	validator middleware.JWTValidator,
	gw *gateway.Service,
	applications domain.ApplicationRepository,
	ledgerSvc *ledger.Service,
	isolationRouter *isolation.Router,
	logger *slog.Logger,
) *Server {
	s := &Server{
		credential:   credential,
		validator:    validator,
		gateway:      gw,
		applications: applications,
		ledger:       ledgerSvc,
		isolation:    isolationRouter,
		logger:       logger,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "fairgate",
			Version: serverVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves the tools on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// principal re-verifies the session credential and rebuilds the caller.
// The same rules as the HTTP authenticator apply: a failed signature or
// expiry is fatal, while ambiguous role claims pass through with an empty
// role so the gateway denies and records the configuration anomaly.
func (s *Server) principal(ctx context.Context) (*domain.Principal, error) {
	claims, err := s.validator.Validate(ctx, s.credential)
	if err != nil {
		s.logger.Warn("tool credential rejected", "error", err)
		return nil, domain.ErrAuthentication("unauthorized: provide a valid bearer credential")
	}
	if claims.Subject == "" {
		s.logger.Warn("tool credential carries no subject")
		return nil, domain.ErrAuthentication("unauthorized: provide a valid bearer credential")
	}

	p := &domain.Principal{
		ID:              claims.Subject,
		ScopeAttributes: claims.ScopeAttributes,
		TokenExpiry:     claims.ExpiresAt,
	}
	if role, derr := domain.DeriveRole(claims.Roles); derr == nil {
		p.Role = role
	} else {
		s.logger.Warn("tool credential role claims are ambiguous",
			"principal_id", claims.Subject,
			"roles", claims.Roles,
			"error", derr)
	}
	return p, nil
}

// authorize re-derives the principal and asks the gateway for a decision on
// the operation.
func (s *Server) authorize(ctx context.Context, operation, subjectID string) (*domain.Principal, domain.Decision, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, domain.Decision{}, err
	}
	d, err := s.gateway.Authorize(ctx, gateway.Request{
		Principal: p,
		Operation: operation,
		SubjectID: subjectID,
		Kind:      domain.EventToolCall,
	})
	if err != nil {
		return nil, domain.Decision{}, err
	}
	return p, d, nil
}

// registerTools adds the platform tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_applications",
		Description: "List loan applications visible to this session's role. Fields outside the role's grants come back redacted.",
	}, s.handleListApplications)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_application",
		Description: "Fetch one loan application by id. Out-of-scope applications are indistinguishable from missing ones.",
	}, s.handleGetApplication)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "record_decision",
		Description: "Record an APPROVE or DENY decision on an application. Re-deciding a decided application requires override=true.",
	}, s.handleRecordDecision)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aggregate_demographics",
		Description: "Compute demographic aggregate statistics. Groups below the minimum sample size are refused, never returned.",
	}, s.handleAggregateDemographics)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "check_access",
		Description: "Evaluate whether an operation would be permitted for this session without executing it. The evaluation itself is recorded.",
	}, s.handleCheckAccess)
}
