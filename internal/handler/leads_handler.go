package handler

import (
	"net/http"

	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Contacts
// ============================================================

func listContactsHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/contacts")
		defer span.End()

		contacts, err := svc.Contacts(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, listOf(contacts))
	}
}

func quickAddContactHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/contacts")
		defer span.End()

		var in service.ContactInput
		if !decodeJSON(w, r, &in) {
			return
		}

		c, err := svc.QuickAddContact(ctx, SessionFromContext(ctx), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func analyzeContactHandler(svc *service.LeadAnalyzer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/contacts/{contactId}/analysis")
		defer span.End()

		contactID := chi.URLParam(r, "contactId")
		span.SetAttributes(attribute.String("contact.id", contactID))

		a, err := svc.AnalyzeContact(ctx, SessionFromContext(ctx), contactID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func listDraftsHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/contacts/{contactId}/drafts")
		defer span.End()

		drafts, err := svc.Drafts(ctx, SessionFromContext(ctx), chi.URLParam(r, "contactId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, listOf(drafts))
	}
}

func createLeadHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leads")
		defer span.End()

		var in service.LeadInput
		if !decodeJSON(w, r, &in) {
			return
		}

		res, err := svc.CreateLead(ctx, SessionFromContext(ctx), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("contact.id", res.Contact.ID),
			attribute.String("opportunity.stage", string(res.Opportunity.Stage)),
		)
		writeJSON(w, http.StatusCreated, res)
	}
}

// ============================================================
// Opportunities
// ============================================================

func listOpportunitiesHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/opportunities")
		defer span.End()

		opps, err := svc.Opportunities(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, listOf(opps))
	}
}

type moveStageRequest struct {
	Stage string `json:"stage"`
}

func moveOpportunityHandler(svc *service.LeadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/opportunities/{opportunityId}/stage")
		defer span.End()

		var req moveStageRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		o, err := svc.MoveOpportunity(ctx, SessionFromContext(ctx), chi.URLParam(r, "opportunityId"), req.Stage)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}
