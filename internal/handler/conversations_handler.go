package handler

import (
	"net/http"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Conversations
// ============================================================

type messageRequest struct {
	Content string `json:"content"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func listConversationsHandler(svc *service.TriageAgent, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/conversations")
		defer span.End()

		convs, err := svc.Conversations(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, listOf(convs))
	}
}

func getConversationHandler(svc *service.TriageAgent, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/conversations/{contactId}")
		defer span.End()

		conv, err := svc.Conversation(ctx, SessionFromContext(ctx), chi.URLParam(r, "contactId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// leadMessageHandler records an inbound lead message. While the
// conversation is AI handled the reply comes back in the same response.
func leadMessageHandler(svc *service.TriageAgent, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/conversations/{contactId}/messages")
		defer span.End()

		var req messageRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		contactID := chi.URLParam(r, "contactId")
		conv, err := svc.HandleLeadMessage(ctx, SessionFromContext(ctx), contactID, req.Content)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("contact.id", contactID),
			attribute.String("conversation.status", string(conv.Status)),
		)
		writeJSON(w, http.StatusOK, conv)
	}
}

func operatorReplyHandler(svc *service.TriageAgent, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/conversations/{contactId}/replies")
		defer span.End()

		var req messageRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		conv, err := svc.OperatorReply(ctx, SessionFromContext(ctx), chi.URLParam(r, "contactId"), req.Content)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func setConversationStatusHandler(svc *service.TriageAgent, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/conversations/{contactId}/status")
		defer span.End()

		var req statusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		status, ok := domain.ParseConversationStatus(req.Status)
		if !ok {
			handleServiceError(w, &domain.ErrValidation{Field: "status", Message: "unknown status " + req.Status}, logger)
			return
		}

		conv, err := svc.SetStatus(ctx, SessionFromContext(ctx), chi.URLParam(r, "contactId"), status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}
