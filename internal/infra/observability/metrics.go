package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

// Components that substitute a fallback when the AI gateway fails.
const (
	ComponentImporter = "importer"
	ComponentOutreach = "outreach"
	ComponentTriage   = "triage"
	ComponentAdvisor  = "advisor"
	ComponentAnalyzer = "analyzer"
)

var fallbackComponents = []string{
	ComponentImporter,
	ComponentOutreach,
	ComponentTriage,
	ComponentAdvisor,
	ComponentAnalyzer,
}

var aiTasks = []string{
	domain.TaskMapLeadRows,
	domain.TaskOutreach,
	domain.TaskTriage,
	domain.TaskStage,
	domain.TaskAnalyzeLead,
}

// Metrics holds all Prometheus metrics for the CRM service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	aiCallDuration  *prometheus.HistogramVec
	aiCalls         *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	importRows      *prometheus.CounterVec
	importChunks    *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. A private registry keeps repeated construction
// in tests from panicking on duplicate collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		aiCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_ai_call_duration_seconds",
				Help:    "Duration of model calls by task.",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"task"},
		),
		aiCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_ai_calls_total",
				Help: "Model calls by task and outcome.",
			},
			[]string{"task", "status"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_ai_fallbacks_total",
				Help: "Deterministic fallbacks substituted per component.",
			},
			[]string{"component"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
		importRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_import_rows_total",
				Help: "Imported rows by outcome.",
			},
			[]string{"outcome"},
		),
		importChunks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_import_chunks_total",
				Help: "Import chunks by outcome.",
			},
			[]string{"outcome"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordAICall records one gateway call and its outcome.
func (m *Metrics) RecordAICall(task string, d time.Duration, err error) {
	m.aiCallDuration.WithLabelValues(task).Observe(d.Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	m.aiCalls.WithLabelValues(task, status).Inc()
}

// IncrFallback counts a fallback substituted by component.
func (m *Metrics) IncrFallback(component string) {
	m.fallbacks.WithLabelValues(component).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// RecordImportRows adds imported and dropped row counts.
func (m *Metrics) RecordImportRows(imported, dropped int) {
	m.importRows.WithLabelValues("imported").Add(float64(imported))
	m.importRows.WithLabelValues("dropped").Add(float64(dropped))
}

// IncrImportChunk counts a processed chunk; failed chunks contribute no rows.
func (m *Metrics) IncrImportChunk(failed bool) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.importChunks.WithLabelValues(outcome).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// GetAISnapshot returns cumulative AI usage for GET /v1/metrics/ai.
func (m *Metrics) GetAISnapshot(provider string) *domain.AIMetrics {
	var total, failed float64
	for _, task := range aiTasks {
		ok := getCounterValue(m.aiCalls, task, "success")
		bad := getCounterValue(m.aiCalls, task, "error")
		total += ok + bad
		failed += bad
	}

	fallbacks := make(map[string]int64, len(fallbackComponents))
	for _, c := range fallbackComponents {
		fallbacks[c] = int64(getCounterValue(m.fallbacks, c))
	}

	tokens := getCounterValue(m.tokensUsed, "prompt") + getCounterValue(m.tokensUsed, "completion")

	snap := &domain.AIMetrics{
		TotalCalls:   int64(total),
		FailedCalls:  int64(failed),
		Fallbacks:    fallbacks,
		RowsImported: int64(getCounterValue(m.importRows, "imported")),
		RowsDropped:  int64(getCounterValue(m.importRows, "dropped")),
		Provider:     provider,
	}
	if total > 0 {
		snap.ErrorRate = failed / total
		snap.AvgTokensPerRequest = tokens / total
	}
	return snap
}

// getCounterValue extracts the current value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
