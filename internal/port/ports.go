// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the orchestration
// services from the model backends, the state store and the caches.
package port

import (
	"context"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

// ModelClient is the raw boundary to a generative model service.
type ModelClient interface {
	Generate(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error)
	Provider() string
}

// AIGateway exposes one typed method per AI task. Every method returns a
// *domain.ErrAIGateway on failure; callers own the fallback.
type AIGateway interface {
	MapLeadRows(ctx context.Context, tenantName string, rows []map[string]string) ([]domain.MappedLead, error)
	GenerateOutreach(ctx context.Context, req *domain.OutreachRequest) (*domain.OutreachPackage, error)
	TriageChat(ctx context.Context, req *domain.TriageRequest) (*domain.TriageDecision, error)
	SuggestStage(ctx context.Context, req *domain.StageRequest) (*domain.StageSuggestion, error)
	AnalyzeLead(ctx context.Context, req *domain.LeadAnalysisRequest) (*domain.AIAnalysis, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// ProgressReporter receives import progress in percent. Values never
// decrease and 100 is reported once, at completion.
type ProgressReporter interface {
	Report(percent int)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(percent int)

// Report calls f.
func (f ProgressFunc) Report(percent int) { f(percent) }

// EventSink receives committed store events in order.
type EventSink interface {
	Handle(ctx context.Context, ev domain.Event) error
}

// CRMStore is the application state: named commands plus read queries, all
// scoped to a tenant.
type CRMStore interface {
	// Contacts
	AddContact(ctx context.Context, c domain.Contact) (*domain.Contact, error)
	ImportContacts(ctx context.Context, tenantID string, cs []domain.Contact) ([]domain.Contact, error)
	GetContact(ctx context.Context, tenantID, contactID string) (*domain.Contact, error)
	ListContacts(ctx context.Context, tenantID string) ([]domain.Contact, error)
	PhoneKeys(ctx context.Context, tenantID string) (map[string]bool, error)
	UpdateContactAnalysis(ctx context.Context, tenantID, contactID string, a *domain.AIAnalysis) error

	// Opportunities
	AddOpportunity(ctx context.Context, o domain.Opportunity) (*domain.Opportunity, error)
	ListOpportunities(ctx context.Context, tenantID string) ([]domain.Opportunity, error)
	UpdateOpportunityStage(ctx context.Context, tenantID, opportunityID string, stage domain.Stage) (*domain.Opportunity, error)
	UpdateOpportunityAnalysis(ctx context.Context, tenantID, opportunityID string, a *domain.AIAnalysis) error

	// Drafts
	AddDraftEmail(ctx context.Context, tenantID string, d domain.DraftEmail) error
	ListDraftEmails(ctx context.Context, tenantID, contactID string) ([]domain.DraftEmail, error)
	CountDraftEmails(ctx context.Context, tenantID string) (int, error)

	// Conversations
	GetConversation(ctx context.Context, tenantID, contactID string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, tenantID string) ([]domain.Conversation, error)
	AppendMessage(ctx context.Context, tenantID, contactID string, m domain.Message) (*domain.Conversation, error)
	SetConversationStatus(ctx context.Context, tenantID, contactID string, status domain.ConversationStatus) (*domain.Conversation, error)

	// Automation
	ListTriggers(ctx context.Context, tenantID string) ([]domain.AutomationTrigger, error)
	ToggleTrigger(ctx context.Context, tenantID, triggerID string) (*domain.AutomationTrigger, error)
}
