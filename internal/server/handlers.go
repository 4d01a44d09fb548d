// Package server provides the HTTP API and the gRPC health server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/auth"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/repository"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/service"
)

const (
	maxBodyBytes       = 64 << 10
	defaultHistorySize = 20
	maxHistorySize     = 100
)

// Answerer answers one query.
type Answerer interface {
	Answer(ctx context.Context, req service.Request) (*knowledge.ResponseResult, error)
}

// RouterConfig holds the collaborators of the HTTP API. Only Answerer is
// required.
type RouterConfig struct {
	Answerer Answerer
	// Sessions issues session tokens; nil disables POST /api/v1/sessions.
	Sessions *auth.JWTManager
	// Interactions stores the audit log; nil disables history.
	Interactions repository.InteractionRepository
	// Auth guards /api/v1 when set.
	Auth    *auth.Authenticator
	Metrics http.Handler
	// Ready backs /readyz.
	Ready          func(context.Context) error
	Logger         *slog.Logger
	AllowedOrigins []string
	// Now is used for response timestamps; defaults to time.Now.
	Now func() time.Time
}

type api struct {
	answerer     Answerer
	sessions     *auth.JWTManager
	interactions repository.InteractionRepository
	logger       *slog.Logger
	now          func() time.Time
}

// NewRouter builds the chi router for the chat API.
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	a := &api{
		answerer:     cfg.Answerer,
		sessions:     cfg.Sessions,
		interactions: cfg.Interactions,
		logger:       logger,
		now:          now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	r.Get("/healthz", healthCheckHandler())
	r.Get("/readyz", readinessCheckHandler(cfg.Ready, logger))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Middleware)
		}
		r.Post("/chat", a.chat)
		r.Get("/chat/history", a.history)
		r.Post("/sessions", a.createSession)
	})

	return r
}

type chatRequest struct {
	Query     string      `json:"query"`
	SessionID string      `json:"session_id,omitempty"`
	Context   chatContext `json:"context"`
}

type chatContext struct {
	AMCFilter string `json:"amc_filter,omitempty"`
}

type chatResponse struct {
	Query                string                        `json:"query"`
	Answer               string                        `json:"answer"`
	Sources              []knowledge.Citation          `json:"sources"`
	ConfidenceScore      float64                       `json:"confidence_score"`
	HasSufficientInfo    bool                          `json:"has_sufficient_info"`
	FallbackMessage      string                        `json:"fallback_message,omitempty"`
	FallbackTier         knowledge.FallbackTier        `json:"fallback_tier"`
	Category             knowledge.InformationCategory `json:"category"`
	BlockedByGuardrail   bool                          `json:"blocked_by_guardrail"`
	RetrievedChunksCount int                           `json:"retrieved_chunks_count"`
	ResponseTimeMs       int64                         `json:"response_time_ms"`
	SessionID            string                        `json:"session_id,omitempty"`
	Timestamp            time.Time                     `json:"timestamp"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (a *api) chat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "invalid_request", fmt.Sprintf("decode body: %v", err))
		return
	}

	sessionID, ok := scopedSession(r.Context(), body.SessionID)
	if !ok {
		a.writeError(w, r, http.StatusForbidden, "forbidden", "session tokens may only write to their own session")
		return
	}
	req := service.Request{Query: body.Query, SessionID: sessionID}
	if amc := strings.TrimSpace(body.Context.AMCFilter); amc != "" {
		req.Filters = map[string]string{"amc_name": amc}
	}

	res, err := a.answerer.Answer(r.Context(), req)
	if err != nil {
		a.answerError(w, r, err)
		return
	}

	a.record(r.Context(), res)
	writeJSON(w, http.StatusOK, a.toChatResponse(res))
}

// scopedSession resolves the session a request acts on. A caller holding a
// session token is bound to that session: an empty request id defaults to
// it and any other id is refused.
func scopedSession(ctx context.Context, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	own, bound := auth.SessionIDFromContext(ctx)
	switch {
	case !bound:
		return requested, true
	case requested == "" || requested == own:
		return own, true
	default:
		return "", false
	}
}

func (a *api) toChatResponse(res *knowledge.ResponseResult) chatResponse {
	sufficient := !res.BlockedByGuardrail && res.FallbackTier != knowledge.TierGeneric
	out := chatResponse{
		Query:                res.Query,
		Answer:               res.AnswerText,
		Sources:              res.Citations,
		ConfidenceScore:      res.ConfidenceScore,
		HasSufficientInfo:    sufficient,
		FallbackTier:         res.FallbackTier,
		Category:             res.Category,
		BlockedByGuardrail:   res.BlockedByGuardrail,
		RetrievedChunksCount: res.ChunksRetrieved,
		ResponseTimeMs:       res.TotalTimeMs,
		SessionID:            res.SessionID,
		Timestamp:            a.now().UTC(),
	}
	if out.Sources == nil {
		out.Sources = []knowledge.Citation{}
	}
	if !sufficient {
		out.FallbackMessage = res.AnswerText
	}
	return out
}

// record writes the audit entry. Failures never fail the request.
func (a *api) record(ctx context.Context, res *knowledge.ResponseResult) {
	if a.interactions == nil {
		return
	}
	if err := a.interactions.Create(ctx, repository.NewInteraction(res, a.now())); err != nil {
		a.logger.Warn("failed to record interaction", "session_id", res.SessionID, "error", err)
	}
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	if a.interactions == nil {
		a.writeError(w, r, http.StatusNotImplemented, "not_implemented", "interaction history is not configured")
		return
	}

	sessionID, ok := scopedSession(r.Context(), r.URL.Query().Get("session_id"))
	if !ok {
		a.writeError(w, r, http.StatusForbidden, "forbidden", "session tokens may only read their own history")
		return
	}
	if sessionID == "" {
		a.writeError(w, r, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	limit := defaultHistorySize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistorySize)
	}

	items, err := a.interactions.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		a.logger.Error("failed to list interactions", "session_id", sessionID, "error", err)
		a.writeError(w, r, http.StatusInternalServerError, "internal", "failed to load history")
		return
	}
	if items == nil {
		items = []*repository.Interaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   sessionID,
		"interactions": items,
	})
}

func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	if a.sessions == nil {
		a.writeError(w, r, http.StatusNotImplemented, "not_implemented", "sessions are not configured")
		return
	}
	s, err := a.sessions.NewSession()
	if err != nil {
		a.logger.Error("failed to create session", "error", err)
		a.writeError(w, r, http.StatusInternalServerError, "internal", "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (a *api) answerError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := knowledge.ErrorKind(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("answer failed",
			"kind", kind,
			"status", status,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal error"
	}
	a.writeError(w, r, status, kind, detail)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, knowledge.ErrQueryValidation):
		return http.StatusBadRequest
	case errors.Is(err, knowledge.ErrLLMRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, knowledge.ErrLLMTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, knowledge.ErrIndexUnavailable),
		errors.Is(err, knowledge.ErrEmbedding),
		errors.Is(err, knowledge.ErrLLMAuth),
		errors.Is(err, knowledge.ErrLLMService):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	writeJSON(w, status, errorResponse{
		Error:     code,
		Detail:    detail,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
