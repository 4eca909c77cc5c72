package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/store"
)

// --- Mocks ---

var errModelDown = &domain.ErrAIGateway{Task: "test", Err: errors.New("model unavailable")}

type mockGateway struct {
	mu    sync.Mutex
	calls map[string]int

	mapRows  func(ctx context.Context, rows []map[string]string) ([]domain.MappedLead, error)
	outreach func(req *domain.OutreachRequest) (*domain.OutreachPackage, error)
	triage   func(req *domain.TriageRequest) (*domain.TriageDecision, error)
	stage    func(req *domain.StageRequest) (*domain.StageSuggestion, error)
	analyze  func(req *domain.LeadAnalysisRequest) (*domain.AIAnalysis, error)
}

func newMockGateway() *mockGateway {
	return &mockGateway{calls: map[string]int{}}
}

// failingGateway fails every task.
func failingGateway() *mockGateway {
	m := newMockGateway()
	m.mapRows = func(context.Context, []map[string]string) ([]domain.MappedLead, error) { return nil, errModelDown }
	m.outreach = func(*domain.OutreachRequest) (*domain.OutreachPackage, error) { return nil, errModelDown }
	m.triage = func(*domain.TriageRequest) (*domain.TriageDecision, error) { return nil, errModelDown }
	m.stage = func(*domain.StageRequest) (*domain.StageSuggestion, error) { return nil, errModelDown }
	m.analyze = func(*domain.LeadAnalysisRequest) (*domain.AIAnalysis, error) { return nil, errModelDown }
	return m
}

func (m *mockGateway) count(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[task]++
}

func (m *mockGateway) Calls(task string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[task]
}

func (m *mockGateway) MapLeadRows(ctx context.Context, _ string, rows []map[string]string) ([]domain.MappedLead, error) {
	m.count(domain.TaskMapLeadRows)
	if m.mapRows == nil {
		return echoMapper(ctx, rows)
	}
	return m.mapRows(ctx, rows)
}

func (m *mockGateway) GenerateOutreach(_ context.Context, req *domain.OutreachRequest) (*domain.OutreachPackage, error) {
	m.count(domain.TaskOutreach)
	if m.outreach == nil {
		return nil, errModelDown
	}
	return m.outreach(req)
}

func (m *mockGateway) TriageChat(_ context.Context, req *domain.TriageRequest) (*domain.TriageDecision, error) {
	m.count(domain.TaskTriage)
	if m.triage == nil {
		return nil, errModelDown
	}
	return m.triage(req)
}

func (m *mockGateway) SuggestStage(_ context.Context, req *domain.StageRequest) (*domain.StageSuggestion, error) {
	m.count(domain.TaskStage)
	if m.stage == nil {
		return nil, errModelDown
	}
	return m.stage(req)
}

func (m *mockGateway) AnalyzeLead(_ context.Context, req *domain.LeadAnalysisRequest) (*domain.AIAnalysis, error) {
	m.count(domain.TaskAnalyzeLead)
	if m.analyze == nil {
		return nil, errModelDown
	}
	return m.analyze(req)
}

// echoMapper behaves like a well-mannered model: it maps the obvious
// columns and leaves casing alone.
func echoMapper(_ context.Context, rows []map[string]string) ([]domain.MappedLead, error) {
	out := make([]domain.MappedLead, 0, len(rows))
	for _, r := range rows {
		first, last, _ := strings.Cut(r["name"], " ")
		out = append(out, domain.MappedLead{
			FirstName:    first,
			LastName:     last,
			Phone:        r["phone"],
			Email:        r["email"],
			City:         r["city"],
			LeadCategory: r["type"],
			Description:  r["notes"],
		})
	}
	return out, nil
}

// --- Helpers ---

var testSession = domain.Session{
	TenantID:   "tenant-123",
	TenantName: "Neural Workspace",
	Currency:   "PKR",
	Timezone:   "Asia/Karachi",
	UserID:     "user-456",
	UserName:   "Hamza",
}

func newStore() *store.State {
	return store.New(zap.NewNop())
}

func newMetrics() *observability.Metrics {
	return observability.NewMetrics()
}

type progressRecorder struct {
	mu     sync.Mutex
	values []int
}

func (p *progressRecorder) Report(pct int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, pct)
}

func (p *progressRecorder) Values() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}
