// Package metrics exports answer pipeline activity to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/knowledge"
	"github.com/harikrshm/RAG-LLM-based-FAQ-Assistant-v2-sub000/internal/service"
)

const namespace = "fundqa"

// Metrics records stage latency, fallback tiers and guardrail outcomes. It
// implements service.Observer.
type Metrics struct {
	stageDuration  *prometheus.HistogramVec
	failures       *prometheus.CounterVec
	responses      *prometheus.CounterVec
	guardrailBlock prometheus.Counter
	sanitized      prometheus.Counter
}

// MustNewMetrics registers the collectors with reg and panics on a
// registration conflict. Collectors already registered with the same
// description are reused, so constructing twice against one registry is safe.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Time spent in each answer pipeline stage.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_failures_total",
				Help:      "Pipeline stages that failed, by error kind.",
			},
			[]string{"stage", "kind"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Answers returned, by fallback tier.",
			},
			[]string{"tier"},
		),
		guardrailBlock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_blocks_total",
			Help:      "Queries refused because they asked for investment advice.",
		}),
		sanitized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_sanitized_total",
			Help:      "Generated answers rewritten to remove advisory language.",
		}),
	}

	m.stageDuration = register(reg, m.stageDuration)
	m.failures = register(reg, m.failures)
	m.responses = register(reg, m.responses)
	m.guardrailBlock = register(reg, m.guardrailBlock)
	m.sanitized = register(reg, m.sanitized)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveStage implements service.Observer.
func (m *Metrics) ObserveStage(stage service.Stage, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.failures.WithLabelValues(string(stage), knowledge.ErrorKind(err)).Inc()
	}
	m.stageDuration.WithLabelValues(string(stage), status).Observe(elapsed.Seconds())
}

// ObserveResponse implements service.Observer.
func (m *Metrics) ObserveResponse(res *knowledge.ResponseResult) {
	if m == nil || res == nil {
		return
	}
	m.responses.WithLabelValues(res.FallbackTier.String()).Inc()
	if res.BlockedByGuardrail {
		m.guardrailBlock.Inc()
	}
	if res.Sanitized {
		m.sanitized.Inc()
	}
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

var _ service.Observer = (*Metrics)(nil)
