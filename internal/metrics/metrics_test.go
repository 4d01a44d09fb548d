package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/service"
)

func TestObserveStage(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveStage(service.StageRetrieve, 20*time.Millisecond, nil)
	m.ObserveStage(service.StageGenerate, time.Second, fmt.Errorf("generate: %w", knowledge.ErrLLMTimeout))
	m.ObserveStage(service.StageGenerate, time.Second, fmt.Errorf("generate: %w", knowledge.ErrLLMTimeout))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.failures.WithLabelValues("generate", "llm_timeout")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.failures.WithLabelValues("retrieve", "index_unavailable")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.stageDuration))
}

func TestObserveResponse(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveResponse(&knowledge.ResponseResult{FallbackTier: knowledge.TierFirstParty})
	m.ObserveResponse(&knowledge.ResponseResult{FallbackTier: knowledge.TierExternal, Sanitized: true})
	m.ObserveResponse(&knowledge.ResponseResult{FallbackTier: knowledge.TierGeneric, BlockedByGuardrail: true})
	m.ObserveResponse(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.responses.WithLabelValues("FIRST_PARTY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.responses.WithLabelValues("GENERIC")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.guardrailBlock))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sanitized))
}

func TestMustNewMetricsReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.ObserveResponse(&knowledge.ResponseResult{FallbackTier: knowledge.TierExternal})
	assert.Equal(t, 1.0, testutil.ToFloat64(second.responses.WithLabelValues("EXTERNAL")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage(service.StageResolve, time.Millisecond, nil)
		m.ObserveResponse(&knowledge.ResponseResult{})
	})
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := MustNewMetrics(reg)
	m.ObserveResponse(&knowledge.ResponseResult{FallbackTier: knowledge.TierFirstParty})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fundqa_responses_total{tier="FIRST_PARTY"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
