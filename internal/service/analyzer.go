package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var analyzerTracer = otel.Tracer("service/analyzer")

// FallbackAnalysis is attached when the model cannot score a lead.
func FallbackAnalysis(now time.Time) *domain.AIAnalysis {
	return &domain.AIAnalysis{
		Score:         50,
		Sentiment:     domain.SentimentNeutral,
		Summary:       "Analysis unavailable",
		Strategy:      "Manual review",
		IntentMarkers: []string{},
		LastAnalyzed:  now,
	}
}

// LeadAnalyzer scores a contact from its profile and conversation and
// attaches the result, replacing any earlier analysis. A model-backed
// result is also copied onto the contact's open deals; the neutral
// fallback only lands on the contact.
type LeadAnalyzer struct {
	gateway port.AIGateway
	store   port.CRMStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewLeadAnalyzer creates the analyzer.
func NewLeadAnalyzer(gw port.AIGateway, store port.CRMStore, metrics *observability.Metrics, logger *zap.Logger) *LeadAnalyzer {
	return &LeadAnalyzer{gateway: gw, store: store, metrics: metrics, logger: logger}
}

// AnalyzeContact runs the analysis and stores it on the contact.
func (a *LeadAnalyzer) AnalyzeContact(ctx context.Context, sess domain.Session, contactID string) (*domain.AIAnalysis, error) {
	ctx, span := analyzerTracer.Start(ctx, "LeadAnalyzer.AnalyzeContact")
	defer span.End()
	span.SetAttributes(attribute.String("contact.id", contactID))

	contact, err := a.store.GetContact(ctx, sess.TenantID, contactID)
	if err != nil {
		return nil, err
	}
	conv, err := a.store.GetConversation(ctx, sess.TenantID, contactID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	analysis, err := a.gateway.AnalyzeLead(ctx, &domain.LeadAnalysisRequest{
		Contact:    *contact,
		Transcript: conv.Messages,
		TenantName: sess.TenantName,
	})
	a.metrics.RecordRequestDuration("analyze", time.Since(start))
	now := time.Now().UTC()
	fallback := err != nil
	if err != nil {
		a.metrics.IncrFallback(observability.ComponentAnalyzer)
		a.logger.Warn("lead analysis failed, attaching neutral analysis",
			zap.String("contact_id", contactID),
			zap.Error(err),
		)
		analysis = FallbackAnalysis(now)
	}
	analysis.Sanitize()
	analysis.LastAnalyzed = now

	if err := a.store.UpdateContactAnalysis(ctx, sess.TenantID, contactID, analysis); err != nil {
		return nil, err
	}

	deals := 0
	if !fallback {
		deals, err = a.attachToDeals(ctx, sess.TenantID, contactID, analysis)
		if err != nil {
			return nil, err
		}
	}
	span.SetAttributes(
		attribute.Int("analysis.score", analysis.Score),
		attribute.String("analysis.sentiment", string(analysis.Sentiment)),
		attribute.Int("analysis.opportunities", deals),
	)
	return analysis, nil
}

func (a *LeadAnalyzer) attachToDeals(ctx context.Context, tenantID, contactID string, analysis *domain.AIAnalysis) (int, error) {
	opps, err := a.store.ListOpportunities(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range opps {
		if o.ContactID != contactID || o.Stage == domain.StageClosed {
			continue
		}
		if err := a.store.UpdateOpportunityAnalysis(ctx, tenantID, o.ID, analysis); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
