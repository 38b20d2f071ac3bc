// Package mcpadapter exposes the retrieval and answer pipeline as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/core/ports"
)

type PersonaDirectory interface {
	ports.PersonaCatalog
	Detect(query string) domain.PersonaDetection
}

type DocumentValidator interface {
	ValidateJSON(raw []byte) domain.ValidationResult
}

type Dependencies struct {
	Retrieval ports.RetrievalService
	Answers   ports.AnswerService
	Validator DocumentValidator
	Personas  PersonaDirectory
}

type Handlers struct {
	deps Dependencies
}

func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{deps: deps}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(name, version string, deps Dependencies) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(logToolCalls),
		server.WithInstructions("Answers questions about a historical document archive. Every answer is grounded in cited archive evidence."),
	)

	h := NewHandlers(deps)
	s.AddTool(listPersonasTool(), h.ListPersonas)
	s.AddTool(detectPersonaTool(), h.DetectPersona)
	s.AddTool(retrieveTool(), h.Retrieve)
	s.AddTool(answerTool(), h.Answer)
	s.AddTool(validateContractTool(), h.ValidateContract)
	return s
}

func logToolCalls(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		started := time.Now()
		res, err := next(ctx, req)
		attrs := []any{
			"tool", req.Params.Name,
			"duration_ms", float64(time.Since(started).Microseconds()) / 1000.0,
		}
		switch {
		case err != nil:
			slog.Error("mcp_tool_call", append(attrs, "error", err.Error())...)
		case res != nil && res.IsError:
			slog.Warn("mcp_tool_call", append(attrs, "tool_error", true)...)
		default:
			slog.Info("mcp_tool_call", attrs...)
		}
		return res, err
	}
}

func queryOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question about the archive.")),
		mcp.WithString("persona", mcp.Description("Persona key; detected from the query when omitted."),
			mcp.Enum(string(domain.PersonaEducator), string(domain.PersonaResearcher), string(domain.PersonaCreator), string(domain.PersonaBuilder))),
		mcp.WithString("session_id", mcp.Description("Session whose persona selection applies when persona is omitted.")),
		mcp.WithArray("namespaces", mcp.Description("Namespaces to search instead of the persona defaults."), mcp.WithStringItems()),
		mcp.WithNumber("threshold", mcp.Description("Similarity threshold override."), mcp.Min(0), mcp.Max(1)),
		mcp.WithNumber("limit", mcp.Description("Maximum results override."), mcp.Min(1)),
		mcp.WithBoolean("rerank", mcp.Description("Force reranking on or off.")),
	}
}

func listPersonasTool() mcp.Tool {
	return mcp.NewTool("list_personas",
		mcp.WithDescription("List the persona templates that tune retrieval and answer style."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func detectPersonaTool() mcp.Tool {
	return mcp.NewTool("detect_persona",
		mcp.WithDescription("Guess the persona that best fits a query."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query to classify.")),
	)
}

func retrieveTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Retrieve ranked archive evidence with the formatted context and retrieval statistics."),
		mcp.WithReadOnlyHintAnnotation(true),
	}, queryOptions()...)
	return mcp.NewTool("retrieve", opts...)
}

func answerTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Answer a question with a validated, citation-checked answer contract."),
	}, queryOptions()...)
	return mcp.NewTool("answer", opts...)
}

func validateContractTool() mcp.Tool {
	return mcp.NewTool("validate_contract",
		mcp.WithDescription("Validate an answer contract JSON document and list every violation."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("contract", mcp.Required(), mcp.Description("Answer contract as a JSON string.")),
	)
}

type queryArgs struct {
	Query      string   `json:"query"`
	Persona    string   `json:"persona"`
	SessionID  string   `json:"session_id"`
	Namespaces []string `json:"namespaces"`
	Threshold  *float64 `json:"threshold"`
	Limit      *float64 `json:"limit"`
	Rerank     *bool    `json:"rerank"`
}

func (a queryArgs) request() domain.RetrievalRequest {
	req := domain.RetrievalRequest{
		Query:     a.Query,
		Persona:   a.Persona,
		SessionID: a.SessionID,
		Overrides: domain.RetrievalOverrides{
			Namespaces: a.Namespaces,
			Threshold:  a.Threshold,
			Rerank:     a.Rerank,
		},
	}
	if a.Limit != nil {
		limit := int(*a.Limit)
		req.Overrides.Limit = &limit
	}
	return req
}

func (h *Handlers) ListPersonas(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(map[string]any{"personas": h.deps.Personas.List()})
}

func (h *Handlers) DetectPersona(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	return mcp.NewToolResultJSON(h.deps.Personas.Detect(query))
}

func (h *Handlers) Retrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args queryArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	envelope, err := h.deps.Retrieval.Retrieve(ctx, args.request())
	if err != nil {
		return toolError("retrieve failed", err), nil
	}
	return mcp.NewToolResultJSON(envelope)
}

func (h *Handlers) Answer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args queryArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	contract, err := h.deps.Answers.Answer(ctx, args.request())
	if err != nil {
		return toolError("answer failed", err), nil
	}
	return mcp.NewToolResultJSON(contract)
}

func (h *Handlers) ValidateContract(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("contract")
	if err != nil {
		return mcp.NewToolResultError("contract is required"), nil
	}
	result := h.deps.Validator.ValidateJSON([]byte(raw))
	if result.Violations == nil {
		result.Violations = []domain.Violation{}
	}
	return mcp.NewToolResultJSON(result)
}

// toolError reports pipeline failures as tool results so the client model can read them.
// Contract rejections carry the violation list.
func toolError(text string, err error) *mcp.CallToolResult {
	var violation *domain.ContractViolationError
	if errors.As(err, &violation) {
		payload, marshalErr := json.Marshal(map[string]any{
			"error":      err.Error(),
			"violations": violation.Violations,
		})
		if marshalErr == nil {
			return mcp.NewToolResultError(string(payload))
		}
	}
	return mcp.NewToolResultErrorFromErr(text, err)
}
