package handler

import (
	"net/http"

	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func listTriggersHandler(svc *service.AutomationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/automation/triggers")
		defer span.End()

		triggers, err := svc.Triggers(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, listOf(triggers))
	}
}

func toggleTriggerHandler(svc *service.AutomationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/automation/triggers/{triggerId}/toggle")
		defer span.End()

		tr, err := svc.Toggle(ctx, SessionFromContext(ctx), chi.URLParam(r, "triggerId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tr)
	}
}

func dashboardHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard")
		defer span.End()

		sum, err := svc.Summary(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
