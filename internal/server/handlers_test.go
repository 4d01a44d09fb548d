package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/auth"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/repository"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/service"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeAnswerer struct {
	res     *knowledge.ResponseResult
	err     error
	lastReq service.Request
	calls   int
}

func (f *fakeAnswerer) Answer(_ context.Context, req service.Request) (*knowledge.ResponseResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	res.Query = req.Query
	res.SessionID = req.SessionID
	return &res, nil
}

type fakeInteractions struct {
	mu        sync.Mutex
	created   []*repository.Interaction
	createErr error
	listErr   error
	lastLimit int
}

func (f *fakeInteractions) Create(_ context.Context, in *repository.Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, in)
	return nil
}

func (f *fakeInteractions) ListBySession(_ context.Context, sessionID string, limit int) ([]*repository.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*repository.Interaction
	for _, in := range f.created {
		if in.SessionID == sessionID {
			out = append(out, in)
		}
	}
	return out, nil
}

func firstPartyResult() *knowledge.ResponseResult {
	return &knowledge.ResponseResult{
		AnswerText: "The expense ratio of HDFC Top 100 Fund is 1.2%.",
		Citations: []knowledge.Citation{{
			URL:        "https://groww.in/mutual-funds/hdfc-top-100-fund-direct-growth",
			Title:      "HDFC Top 100 Fund",
			SourceType: knowledge.SourceFirstParty,
		}},
		ConfidenceScore: 0.95,
		FallbackTier:    knowledge.TierFirstParty,
		ChunksRetrieved: 3,
		Category:        knowledge.CategoryFundDetails,
		TotalTimeMs:     42,
	}
}

func newTestRouter(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	return NewRouter(cfg)
}

func postJSON(t *testing.T, h http.Handler, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestChat_Answered(t *testing.T) {
	answerer := &fakeAnswerer{res: firstPartyResult()}
	repo := &fakeInteractions{}
	h := newTestRouter(t, RouterConfig{Answerer: answerer, Interactions: repo})

	rec := postJSON(t, h, "/api/v1/chat", map[string]any{
		"query":      "What is the expense ratio of HDFC Top 100?",
		"session_id": "s-1",
		"context":    map[string]string{"amc_filter": "HDFC Mutual Fund"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	assert.Equal(t, map[string]string{"amc_name": "HDFC Mutual Fund"}, answerer.lastReq.Filters)
	assert.Equal(t, "s-1", answerer.lastReq.SessionID)

	got := decode[map[string]any](t, rec)
	assert.Equal(t, "What is the expense ratio of HDFC Top 100?", got["query"])
	assert.Equal(t, "FIRST_PARTY", got["fallback_tier"])
	assert.Equal(t, "fund_details", got["category"])
	assert.Equal(t, true, got["has_sufficient_info"])
	assert.Equal(t, 0.95, got["confidence_score"])
	assert.Equal(t, float64(3), got["retrieved_chunks_count"])
	assert.Equal(t, float64(42), got["response_time_ms"])
	assert.Equal(t, "2026-03-14T09:30:00Z", got["timestamp"])
	assert.NotContains(t, got, "fallback_message")

	sources, ok := got["sources"].([]any)
	require.True(t, ok)
	require.Len(t, sources, 1)
	assert.Equal(t, "FIRST_PARTY", sources[0].(map[string]any)["source_type"])

	require.Len(t, repo.created, 1)
	assert.Equal(t, "s-1", repo.created[0].SessionID)
	assert.Equal(t, "FIRST_PARTY", repo.created[0].FallbackTier)
}

func TestChat_GenericFallbackIsSuccess(t *testing.T) {
	answerer := &fakeAnswerer{res: &knowledge.ResponseResult{
		AnswerText:   service.GenericFallbackText,
		FallbackTier: knowledge.TierGeneric,
		Category:     knowledge.CategoryGeneralInfo,
	}}
	h := newTestRouter(t, RouterConfig{Answerer: answerer})

	rec := postJSON(t, h, "/api/v1/chat", map[string]string{"query": "Tell me about space travel"})
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[map[string]any](t, rec)
	assert.Equal(t, false, got["has_sufficient_info"])
	assert.Equal(t, service.GenericFallbackText, got["fallback_message"])
	assert.Equal(t, []any{}, got["sources"])
	assert.Nil(t, answerer.lastReq.Filters)
}

func TestChat_BlockedIsSuccess(t *testing.T) {
	answerer := &fakeAnswerer{res: &knowledge.ResponseResult{
		AnswerText:         "I can only provide factual information.",
		FallbackTier:       knowledge.TierGeneric,
		BlockedByGuardrail: true,
	}}
	h := newTestRouter(t, RouterConfig{Answerer: answerer})

	rec := postJSON(t, h, "/api/v1/chat", map[string]string{"query": "Should I invest in HDFC?"})
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[map[string]any](t, rec)
	assert.Equal(t, true, got["blocked_by_guardrail"])
	assert.Equal(t, false, got["has_sufficient_info"])
	assert.Equal(t, 0.0, got["confidence_score"])
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", knowledge.ErrEmptyQuery, http.StatusBadRequest, "query_validation"},
		{"rate limited", fmt.Errorf("generate: %w", knowledge.ErrLLMRateLimited), http.StatusTooManyRequests, "llm_rate_limited"},
		{"llm timeout", fmt.Errorf("generate: %w", knowledge.ErrLLMTimeout), http.StatusGatewayTimeout, "llm_timeout"},
		{"index", fmt.Errorf("retrieve: %w", knowledge.ErrIndexUnavailable), http.StatusServiceUnavailable, "index_unavailable"},
		{"embedding", knowledge.ErrEmbedding, http.StatusServiceUnavailable, "embedding"},
		{"llm auth", knowledge.ErrLLMAuth, http.StatusServiceUnavailable, "llm_auth"},
		{"llm service", knowledge.ErrLLMService, http.StatusServiceUnavailable, "llm_service"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeInteractions{}
			h := newTestRouter(t, RouterConfig{Answerer: &fakeAnswerer{err: tt.err}, Interactions: repo})

			rec := postJSON(t, h, "/api/v1/chat", map[string]string{"query": "What is NAV?"})
			assert.Equal(t, tt.status, rec.Code)

			got := decode[errorResponse](t, rec)
			assert.Equal(t, tt.kind, got.Error)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", got.Detail)
			}
			assert.Empty(t, repo.created)
		})
	}
}

func TestChat_MalformedBody(t *testing.T) {
	answerer := &fakeAnswerer{res: firstPartyResult()}
	h := newTestRouter(t, RouterConfig{Answerer: answerer})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, answerer.calls)
}

func TestChat_AuditFailureDoesNotFailRequest(t *testing.T) {
	repo := &fakeInteractions{createErr: errors.New("db down")}
	h := newTestRouter(t, RouterConfig{Answerer: &fakeAnswerer{res: firstPartyResult()}, Interactions: repo})

	rec := postJSON(t, h, "/api/v1/chat", map[string]string{"query": "What is NAV?"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_RequiredWhenEnabled(t *testing.T) {
	jwtManager := auth.NewJWTManager(auth.DefaultJWTConfig("test-secret"))
	authn := auth.NewAuthenticator([]string{"key-1"}, jwtManager, nil)
	answerer := &fakeAnswerer{res: firstPartyResult()}
	h := newTestRouter(t, RouterConfig{Answerer: answerer, Sessions: jwtManager, Auth: authn})

	rec := postJSON(t, h, "/api/v1/chat", map[string]string{"query": "What is NAV?"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h, "/api/v1/sessions", nil, auth.APIKeyHeader, "key-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decode[auth.Session](t, rec)
	require.NotEmpty(t, session.Token)

	rec = postJSON(t, h, "/api/v1/chat", map[string]string{"query": "What is NAV?"},
		"Authorization", "Bearer "+session.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, session.ID, answerer.lastReq.SessionID)

	// Health endpoints stay open.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessions_NotConfigured(t *testing.T) {
	h := newTestRouter(t, RouterConfig{Answerer: &fakeAnswerer{res: firstPartyResult()}})

	rec := postJSON(t, h, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHistory(t *testing.T) {
	repo := &fakeInteractions{}
	h := newTestRouter(t, RouterConfig{Answerer: &fakeAnswerer{res: firstPartyResult()}, Interactions: repo})

	for _, sid := range []string{"s-1", "s-1", "s-2"} {
		rec := postJSON(t, h, "/api/v1/chat", map[string]string{"query": "What is NAV?", "session_id": sid})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chat/history?session_id=s-1&limit=500", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		SessionID    string                    `json:"session_id"`
		Interactions []*repository.Interaction `json:"interactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "s-1", got.SessionID)
	assert.Len(t, got.Interactions, 2)
	assert.Equal(t, maxHistorySize, repo.lastLimit)
}

func TestHistory_Errors(t *testing.T) {
	tests := []struct {
		name   string
		repo   repository.InteractionRepository
		url    string
		status int
	}{
		{"not configured", nil, "/api/v1/chat/history?session_id=s-1", http.StatusNotImplemented},
		{"missing session", &fakeInteractions{}, "/api/v1/chat/history", http.StatusBadRequest},
		{"bad limit", &fakeInteractions{}, "/api/v1/chat/history?session_id=s-1&limit=-3", http.StatusBadRequest},
		{"store failure", &fakeInteractions{listErr: errors.New("db down")}, "/api/v1/chat/history?session_id=s-1", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := RouterConfig{Answerer: &fakeAnswerer{res: firstPartyResult()}}
			if tt.repo != nil {
				cfg.Interactions = tt.repo
			}
			h := newTestRouter(t, cfg)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHistory_SessionTokenScopedToOwnSession(t *testing.T) {
	repo := &fakeInteractions{}
	h := newTestRouter(t, RouterConfig{Answerer: &fakeAnswerer{res: firstPartyResult()}, Interactions: repo})

	ctx := auth.WithPrincipal(context.Background(), &auth.Principal{Method: "session", SessionID: "mine"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/history?session_id=theirs", nil).WithContext(ctx)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/chat/history", nil).WithContext(ctx)
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mine", decode[map[string]any](t, rec)["session_id"])
}

func TestChat_SessionTokenScopedToOwnSession(t *testing.T) {
	answerer := &fakeAnswerer{res: firstPartyResult()}
	repo := &fakeInteractions{}
	h := newTestRouter(t, RouterConfig{Answerer: answerer, Interactions: repo})

	ctx := auth.WithPrincipal(context.Background(), &auth.Principal{Method: "session", SessionID: "mine"})
	send := func(body chatRequest) *httptest.ResponseRecorder {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(data)).WithContext(ctx)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send(chatRequest{Query: "What is the exit load?", SessionID: "theirs"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, answerer.calls)
	assert.Empty(t, repo.created)

	rec = send(chatRequest{Query: "What is the exit load?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mine", answerer.lastReq.SessionID)

	rec = send(chatRequest{Query: "What is the exit load?", SessionID: "mine"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.created, 2)
	assert.Equal(t, "mine", repo.created[1].SessionID)
}

func TestReadiness(t *testing.T) {
	ready := errors.New("collection mutual_funds_faq not found")
	h := newTestRouter(t, RouterConfig{
		Answerer: &fakeAnswerer{res: firstPartyResult()},
		Ready:    func(context.Context) error { return ready },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = nil
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fundqa_responses_total 1\n"))
	})
	h := newTestRouter(t, RouterConfig{Answerer: &fakeAnswerer{res: firstPartyResult()}, Metrics: metrics})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fundqa_responses_total")
}

func TestCORS(t *testing.T) {
	h := newTestRouter(t, RouterConfig{
		Answerer:       &fakeAnswerer{res: firstPartyResult()},
		AllowedOrigins: []string{"https://app.example.com"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewHTTPServer_RequiresAnswerer(t *testing.T) {
	_, err := NewHTTPServer(HTTPServerConfig{Port: 8080})
	require.Error(t, err)

	s, err := NewHTTPServer(HTTPServerConfig{Port: 8080, Router: RouterConfig{Answerer: &fakeAnswerer{res: firstPartyResult()}}})
	require.NoError(t, err)
	assert.NotNil(t, s.Handler())
}
