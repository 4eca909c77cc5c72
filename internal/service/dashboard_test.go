package service_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"
)

func TestDashboardSummary(t *testing.T) {
	st := newStore()
	ctx := context.Background()
	c := seedContact(t, st)
	tenant := testSession.TenantID

	o1, _ := st.AddOpportunity(ctx, domain.Opportunity{TenantID: tenant, ContactID: c.ID, Value: 1000})
	_, _ = st.AddOpportunity(ctx, domain.Opportunity{TenantID: tenant, ContactID: c.ID, Value: 500, Stage: domain.StageQualified})
	_, _ = st.UpdateOpportunityStage(ctx, tenant, o1.ID, domain.StageClosed)
	_ = st.AddDraftEmail(ctx, tenant, domain.DraftEmail{ContactID: c.ID, Subject: "s", Body: "b"})
	_ = st.UpdateContactAnalysis(ctx, tenant, c.ID, &domain.AIAnalysis{Score: 70, Sentiment: domain.SentimentPositive})
	_, _ = st.SetConversationStatus(ctx, tenant, c.ID, domain.StatusHumanNeeded)

	sum, err := service.NewDashboardService(st).Summary(ctx, testSession)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sum.PipelineValue != 1500 || sum.ClosedRevenue != 1000 {
		t.Errorf("unexpected values %d/%d", sum.PipelineValue, sum.ClosedRevenue)
	}
	if sum.OpportunitiesByStage[domain.StageClosed] != 1 || sum.OpportunitiesByStage[domain.StageQualified] != 1 || sum.OpportunitiesByStage[domain.StageLead] != 0 {
		t.Errorf("unexpected stage counts %v", sum.OpportunitiesByStage)
	}
	if sum.Contacts != 1 || sum.Drafts != 1 || sum.EscalatedConversations != 1 {
		t.Errorf("unexpected counts %+v", sum)
	}
	if sum.SentimentBreakdown[domain.SentimentPositive] != 1 {
		t.Errorf("unexpected sentiment %v", sum.SentimentBreakdown)
	}
	if sum.ActiveTriggers != 2 {
		t.Errorf("expected the two seeded active triggers, got %d", sum.ActiveTriggers)
	}
	if len(sum.RecentOpportunities) != 2 || sum.RecentOpportunities[0].ID != o1.ID {
		t.Errorf("expected most recently moved deal first, got %+v", sum.RecentOpportunities)
	}
	if sum.Currency != "PKR" {
		t.Errorf("unexpected currency %q", sum.Currency)
	}
}

func TestAutomationToggle(t *testing.T) {
	svc := service.NewAutomationService(newStore(), zap.NewNop())
	ctx := context.Background()

	tr, err := svc.Toggle(ctx, testSession, domain.TriggerReengagement)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.Active {
		t.Error("expected re-engagement timer to become active")
	}
	list, _ := svc.Triggers(ctx, testSession)
	for _, x := range list {
		if x.ID == domain.TriggerReengagement && !x.Active {
			t.Error("toggle not persisted")
		}
	}
}
