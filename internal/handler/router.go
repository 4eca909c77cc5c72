package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Check is a named readiness probe, e.g. the event journal ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Deps groups everything the router serves.
type Deps struct {
	Leads      *service.LeadService
	Imports    *service.ImportJobs
	Triage     *service.TriageAgent
	Advisor    *service.StageAdvisor
	Analyzer   *service.LeadAnalyzer
	Automation *service.AutomationService
	Dashboard  *service.DashboardService
	Sessions   *service.Sessions
	Metrics    *observability.Metrics

	Checks          []Check
	Provider        string
	AdvisorDebounce time.Duration
	ImportMaxBytes  int64
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(d.Checks))
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(d.Sessions, logger))

		r.Get("/metrics/ai", aiMetricsHandler(d.Metrics, d.Provider))

		// =============================================
		// Contacts & manual lead entry
		// =============================================
		r.Get("/contacts", listContactsHandler(d.Leads, logger))
		r.Post("/contacts", quickAddContactHandler(d.Leads, logger))
		r.Post("/contacts/{contactId}/analysis", analyzeContactHandler(d.Analyzer, logger))
		r.Get("/contacts/{contactId}/drafts", listDraftsHandler(d.Leads, logger))
		r.Post("/leads", createLeadHandler(d.Leads, logger))

		// =============================================
		// Bulk import
		// =============================================
		r.Post("/imports", startImportHandler(d.Imports, d.ImportMaxBytes, logger))
		r.Get("/imports/{jobId}", getImportHandler(d.Imports, logger))

		// =============================================
		// Pipeline
		// =============================================
		r.Get("/opportunities", listOpportunitiesHandler(d.Leads, logger))
		r.Put("/opportunities/{opportunityId}/stage", moveOpportunityHandler(d.Leads, logger))
		r.Post("/advisor/stage", suggestStageHandler(d.Advisor))
		r.Get("/advisor/live", liveAdvisorHandler(d.Advisor, d.AdvisorDebounce, logger))

		// =============================================
		// Conversations (triage)
		// =============================================
		r.Get("/conversations", listConversationsHandler(d.Triage, logger))
		r.Get("/conversations/{contactId}", getConversationHandler(d.Triage, logger))
		r.Post("/conversations/{contactId}/messages", leadMessageHandler(d.Triage, logger))
		r.Post("/conversations/{contactId}/replies", operatorReplyHandler(d.Triage, logger))
		r.Put("/conversations/{contactId}/status", setConversationStatusHandler(d.Triage, logger))

		// =============================================
		// Automation & dashboard
		// =============================================
		r.Get("/automation/triggers", listTriggersHandler(d.Automation, logger))
		r.Post("/automation/triggers/{triggerId}/toggle", toggleTriggerHandler(d.Automation, logger))
		r.Get("/dashboard", dashboardHandler(d.Dashboard, logger))
	})

	return r
}

// ============================================================
// Probes
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func readyzHandler(checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		now := time.Now().Format(time.RFC3339)
		status := domain.HealthStatus{Status: "healthy", Services: []domain.ServiceHealth{}}
		code := http.StatusOK
		for _, c := range checks {
			sh := domain.ServiceHealth{Name: c.Name, Status: "healthy", LastChecked: now}
			if err := c.Ping(ctx); err != nil {
				sh.Status = "unhealthy"
				sh.Detail = err.Error()
				status.Status = "unhealthy"
				code = http.StatusServiceUnavailable
			}
			status.Services = append(status.Services, sh)
		}
		writeJSON(w, code, status)
	}
}

func aiMetricsHandler(metrics *observability.Metrics, provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetAISnapshot(provider))
	}
}
