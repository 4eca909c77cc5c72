package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var triageTracer = otel.Tracer("service/triage")

// FallbackTriageReply is sent when the agent cannot answer; the
// conversation is escalated at the same time.
const FallbackTriageReply = "Thank you for your message. I'm connecting you with our team, who will get back to you shortly."

// TriageAgent answers inbound lead messages while a conversation is in
// ai_handling and hands over to a human when the agent asks for it or
// cannot answer.
type TriageAgent struct {
	gateway port.AIGateway
	store   port.CRMStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewTriageAgent creates the agent.
func NewTriageAgent(gw port.AIGateway, store port.CRMStore, metrics *observability.Metrics, logger *zap.Logger) *TriageAgent {
	return &TriageAgent{gateway: gw, store: store, metrics: metrics, logger: logger}
}

// HandleLeadMessage appends the lead's message and, when the AI is handling
// the conversation, appends the agent's reply.
func (a *TriageAgent) HandleLeadMessage(ctx context.Context, sess domain.Session, contactID, content string) (*domain.Conversation, error) {
	ctx, span := triageTracer.Start(ctx, "TriageAgent.HandleLeadMessage")
	defer span.End()
	span.SetAttributes(attribute.String("contact.id", contactID))

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "is required"}
	}

	contact, err := a.store.GetContact(ctx, sess.TenantID, contactID)
	if err != nil {
		return nil, err
	}
	before, err := a.store.GetConversation(ctx, sess.TenantID, contactID)
	if err != nil {
		return nil, err
	}

	conv, err := a.store.AppendMessage(ctx, sess.TenantID, contactID, domain.Message{
		ID:        uuid.NewString(),
		Sender:    domain.SenderLead,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if conv.Status != domain.StatusAIHandling {
		span.SetAttributes(attribute.Bool("triage.invoked", false))
		return conv, nil
	}

	start := time.Now()
	decision, err := a.gateway.TriageChat(ctx, &domain.TriageRequest{
		TenantName:  sess.TenantName,
		ContactName: contact.FullName(),
		History:     before.Messages,
		Message:     content,
	})
	a.metrics.RecordRequestDuration("triage", time.Since(start))
	if err != nil {
		a.metrics.IncrFallback(observability.ComponentTriage)
		a.logger.Warn("triage failed, escalating to a human",
			zap.String("contact_id", contactID),
			zap.Error(err),
		)
		decision = &domain.TriageDecision{Reply: FallbackTriageReply, HumanNeeded: true}
	}
	span.SetAttributes(
		attribute.Bool("triage.invoked", true),
		attribute.Bool("triage.human_needed", decision.HumanNeeded),
	)

	conv, err = a.store.AppendMessage(ctx, sess.TenantID, contactID, domain.Message{
		ID:            uuid.NewString(),
		Sender:        domain.SenderUser,
		Content:       decision.Reply,
		Timestamp:     time.Now().UTC(),
		IsAIGenerated: true,
	})
	if err != nil {
		return nil, err
	}

	if decision.HumanNeeded {
		return a.store.SetConversationStatus(ctx, sess.TenantID, contactID, domain.StatusHumanNeeded)
	}
	return conv, nil
}

// OperatorReply appends a message typed by a human operator.
func (a *TriageAgent) OperatorReply(ctx context.Context, sess domain.Session, contactID, content string) (*domain.Conversation, error) {
	ctx, span := triageTracer.Start(ctx, "TriageAgent.OperatorReply")
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "is required"}
	}
	if _, err := a.store.GetContact(ctx, sess.TenantID, contactID); err != nil {
		return nil, err
	}
	return a.store.AppendMessage(ctx, sess.TenantID, contactID, domain.Message{
		ID:        uuid.NewString(),
		Sender:    domain.SenderUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// SetStatus is the operator override: take over or hand back to the AI.
func (a *TriageAgent) SetStatus(ctx context.Context, sess domain.Session, contactID string, status domain.ConversationStatus) (*domain.Conversation, error) {
	ctx, span := triageTracer.Start(ctx, "TriageAgent.SetStatus")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.status", string(status)))

	if _, err := a.store.GetContact(ctx, sess.TenantID, contactID); err != nil {
		return nil, err
	}
	return a.store.SetConversationStatus(ctx, sess.TenantID, contactID, status)
}

// Conversation returns one thread, opening an empty one if needed.
func (a *TriageAgent) Conversation(ctx context.Context, sess domain.Session, contactID string) (*domain.Conversation, error) {
	if _, err := a.store.GetContact(ctx, sess.TenantID, contactID); err != nil {
		return nil, err
	}
	return a.store.GetConversation(ctx, sess.TenantID, contactID)
}

// Conversations lists the tenant's threads.
func (a *TriageAgent) Conversations(ctx context.Context, sess domain.Session) ([]domain.Conversation, error) {
	return a.store.ListConversations(ctx, sess.TenantID)
}
