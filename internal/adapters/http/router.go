package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/grounded-archive/internal/config"
	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/core/ports"
	"github.com/kirillkom/grounded-archive/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

// PersonaDirectory is the catalog plus pattern-based detection.
type PersonaDirectory interface {
	ports.PersonaCatalog
	Detect(query string) domain.PersonaDetection
}

// DocumentValidator checks a submitted contract document without building it in process.
type DocumentValidator interface {
	ValidateJSON(raw []byte) domain.ValidationResult
}

type Dependencies struct {
	Retrieval ports.RetrievalService
	Answers   ports.AnswerService
	Validator DocumentValidator
	Personas  PersonaDirectory
	Sessions  ports.PersonaSessionStore
	// Contracts is optional; the audit lookup route is only mounted when set.
	Contracts ports.ContractRepository
	Metrics   *metrics.HTTPServerMetrics
}

type Router struct {
	cfg  config.Config
	deps Dependencies
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	return &Router{cfg: cfg, deps: deps}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}
	mux.HandleFunc("GET /v1/personas", rt.listPersonas)
	mux.HandleFunc("POST /v1/personas/detect", rt.detectPersona)
	mux.HandleFunc("POST /v1/retrieve", rt.retrieve)
	mux.HandleFunc("POST /v1/answer", rt.answer)
	mux.HandleFunc("POST /v1/contracts/validate", rt.validateContract)
	if rt.deps.Contracts != nil {
		mux.HandleFunc("GET /v1/contracts/{message_id}", rt.getContract)
	}
	mux.HandleFunc("PUT /v1/sessions/{session_id}/persona", rt.selectSessionPersona)
	mux.HandleFunc("GET /v1/sessions/{session_id}/persona", rt.getSessionPersona)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.deps.Metrics)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listPersonas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"personas": rt.deps.Personas.List()})
}

func (rt *Router) detectPersona(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "detect persona", errors.New("query is required")))
		return
	}
	writeJSON(w, http.StatusOK, rt.deps.Personas.Detect(req.Query))
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	var req domain.RetrievalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	envelope, err := rt.deps.Retrieval.Retrieve(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	annotateRequest(r.Context(),
		"persona", string(envelope.Params.Persona),
		"run_id", envelope.RunID,
		"chunks", len(envelope.Chunks),
	)
	writeJSON(w, http.StatusOK, envelope)
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	var req domain.RetrievalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	contract, err := rt.deps.Answers.Answer(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	annotateRequest(r.Context(),
		"persona", string(contract.Provenance.Persona),
		"message_id", contract.Provenance.MessageID,
		"fallback", string(contract.Integrity.FallbackBehavior),
	)
	writeJSON(w, http.StatusOK, contract)
}

func (rt *Router) validateContract(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read contract", err))
		return
	}
	result := rt.deps.Validator.ValidateJSON(raw)
	if result.Violations == nil {
		result.Violations = []domain.Violation{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getContract(w http.ResponseWriter, r *http.Request) {
	messageID := strings.TrimSpace(r.PathValue("message_id"))
	if messageID == "" {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "get contract", errors.New("message id is required")))
		return
	}
	contract, err := rt.deps.Contracts.GetByMessageID(r.Context(), messageID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

type sessionPersona struct {
	SessionID string            `json:"session_id"`
	Persona   domain.PersonaKey `json:"persona"`
}

func (rt *Router) selectSessionPersona(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("session_id"))
	var req struct {
		Persona string `json:"persona"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	key := domain.PersonaKey(strings.ToLower(strings.TrimSpace(req.Persona)))
	if _, ok := rt.deps.Personas.Lookup(key); !ok {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "select persona", fmt.Errorf("unknown persona %q", req.Persona)))
		return
	}
	if sessionID == "" {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "select persona", errors.New("session id is required")))
		return
	}
	rt.deps.Sessions.Select(sessionID, key)
	writeJSON(w, http.StatusOK, sessionPersona{SessionID: sessionID, Persona: key})
}

func (rt *Router) getSessionPersona(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("session_id"))
	key, ok := rt.deps.Sessions.Lookup(sessionID)
	if !ok {
		rt.writeError(w, r, domain.WrapError(domain.ErrNotFound, "get session persona", fmt.Errorf("session_id=%s", sessionID)))
		return
	}
	writeJSON(w, http.StatusOK, sessionPersona{SessionID: sessionID, Persona: key})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

type errorResponse struct {
	Error      string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	resp := errorResponse{Error: err.Error()}

	var violation *domain.ContractViolationError
	if errors.As(err, &violation) {
		resp.Violations = violation.Violations
	}
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
