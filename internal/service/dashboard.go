package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var dashboardTracer = otel.Tracer("service/dashboard")

const recentOpportunities = 5

// DashboardService aggregates the tenant's pipeline into headline numbers.
type DashboardService struct {
	store port.CRMStore
}

// NewDashboardService creates the service.
func NewDashboardService(store port.CRMStore) *DashboardService {
	return &DashboardService{store: store}
}

// Summary computes the dashboard from the store.
func (s *DashboardService) Summary(ctx context.Context, sess domain.Session) (*domain.DashboardSummary, error) {
	ctx, span := dashboardTracer.Start(ctx, "DashboardService.Summary")
	defer span.End()

	var (
		contacts []domain.Contact
		opps     []domain.Opportunity
		convs    []domain.Conversation
		triggers []domain.AutomationTrigger
		drafts   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { contacts, err = s.store.ListContacts(gctx, sess.TenantID); return })
	g.Go(func() (err error) { opps, err = s.store.ListOpportunities(gctx, sess.TenantID); return })
	g.Go(func() (err error) { convs, err = s.store.ListConversations(gctx, sess.TenantID); return })
	g.Go(func() (err error) { triggers, err = s.store.ListTriggers(gctx, sess.TenantID); return })
	g.Go(func() (err error) { drafts, err = s.store.CountDraftEmails(gctx, sess.TenantID); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &domain.DashboardSummary{
		Currency:             sess.Currency,
		Contacts:             len(contacts),
		OpportunitiesByStage: make(map[domain.Stage]int, len(domain.Stages)),
		SentimentBreakdown:   map[domain.Sentiment]int{},
		Drafts:               drafts,
	}
	for _, st := range domain.Stages {
		sum.OpportunitiesByStage[st] = 0
	}

	for _, o := range opps {
		sum.OpportunitiesByStage[o.Stage]++
		sum.PipelineValue += o.Value
		if o.Stage == domain.StageClosed {
			sum.ClosedRevenue += o.Value
		}
	}
	for _, c := range contacts {
		if c.AIAnalysis != nil {
			sum.SentimentBreakdown[c.AIAnalysis.Sentiment]++
		}
	}
	for _, c := range convs {
		if c.Status == domain.StatusHumanNeeded {
			sum.EscalatedConversations++
		}
	}
	for _, t := range triggers {
		if t.Active {
			sum.ActiveTriggers++
		}
	}

	// opportunities come back newest first
	n := min(len(opps), recentOpportunities)
	sum.RecentOpportunities = append([]domain.Opportunity{}, opps[:n]...)
	return sum, nil
}
