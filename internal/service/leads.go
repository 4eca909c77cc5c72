package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var leadsTracer = otel.Tracer("service/leads")

// LeadInput is the manual lead form.
type LeadInput struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	City        string `json:"city"`
	Description string `json:"description"`
	Category    string `json:"lead_category"`
	Tone        string `json:"tone,omitempty"`
	Value       int64  `json:"value"`
}

// ContactInput is the quick-add form of the contacts page.
type ContactInput struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	City        string `json:"city"`
	Description string `json:"description"`
	Category    string `json:"lead_category"`
}

// LeadResult is everything CreateLead committed.
type LeadResult struct {
	Contact     domain.Contact         `json:"contact"`
	Opportunity domain.Opportunity     `json:"opportunity"`
	Draft       domain.DraftEmail      `json:"draft"`
	Outreach    domain.OutreachPackage `json:"outreach"`
	Stage       domain.StageSuggestion `json:"stage_suggestion"`
}

// LeadService handles manual lead entry and contact management.
type LeadService struct {
	store    port.CRMStore
	outreach *OutreachGenerator
	advisor  *StageAdvisor
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewLeadService creates the service.
func NewLeadService(store port.CRMStore, outreach *OutreachGenerator, advisor *StageAdvisor, metrics *observability.Metrics, logger *zap.Logger) *LeadService {
	return &LeadService{store: store, outreach: outreach, advisor: advisor, metrics: metrics, logger: logger}
}

// CreateLead validates the form, drafts outreach and asks the advisor in
// parallel, then commits the contact, its opportunity and the draft email.
func (s *LeadService) CreateLead(ctx context.Context, sess domain.Session, in LeadInput) (*LeadResult, error) {
	ctx, span := leadsTracer.Start(ctx, "LeadService.CreateLead")
	defer span.End()

	first := domain.TitleCase(in.FirstName)
	phone := domain.NormalizePhone(in.Phone)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case first == "":
		return nil, &domain.ErrValidation{Field: "first_name", Message: "is required"}
	case phone == "":
		return nil, &domain.ErrValidation{Field: "phone", Message: "a valid phone number is required"}
	case !domain.ValidEmail(email):
		return nil, &domain.ErrValidation{Field: "email", Message: "a valid email is required"}
	case in.Value < 0:
		return nil, &domain.ErrValidation{Field: "value", Message: "must be non-negative"}
	}

	existing, err := s.store.PhoneKeys(ctx, sess.TenantID)
	if err != nil {
		return nil, err
	}
	if existing[domain.PhoneKey(phone)] {
		return nil, &domain.ErrConflict{Message: "contact with phone " + phone + " already exists"}
	}

	category := domain.ParseCategory(in.Category)
	contact := domain.Contact{
		ID:           uuid.NewString(),
		TenantID:     sess.TenantID,
		FirstName:    first,
		LastName:     domain.TitleCase(in.LastName),
		Phone:        phone,
		Email:        email,
		City:         domain.TitleCase(in.City),
		Description:  strings.TrimSpace(in.Description),
		LeadCategory: category,
		Tags:         []string{domain.TagAIDrafted},
		AssignedTo:   sess.UserID,
		CreatedAt:    time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("tenant.id", sess.TenantID), attribute.String("lead.category", string(category)))

	// both components substitute their own fallback, so neither goroutine errors
	var (
		pkg   *domain.OutreachPackage
		stage *domain.StageSuggestion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pkg = s.outreach.Generate(gctx, &domain.OutreachRequest{
			FirstName:   contact.FirstName,
			LastName:    contact.LastName,
			City:        contact.City,
			Description: domain.StripMarkup(contact.Description),
			Category:    category,
			Tone:        in.Tone,
			Value:       in.Value,
			Currency:    sess.Currency,
			TenantName:  sess.TenantName,
		})
		return nil
	})
	g.Go(func() error {
		stage = s.advisor.Suggest(gctx, sess.TenantName, contact.Description, in.Value)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	closing := pkg.Probability
	postReply := pkg.PostReplyProbability
	now := time.Now().UTC()
	opp := domain.Opportunity{
		ID:           uuid.NewString(),
		TenantID:     sess.TenantID,
		ContactID:    contact.ID,
		Title:        fmt.Sprintf("%s Lead - %s", strings.ToUpper(string(category)), contact.FirstName),
		Value:        in.Value,
		Stage:        stage.Stage,
		AssignedTo:   sess.UserID,
		LastActivity: now,
		AIAnalysis: &domain.AIAnalysis{
			Score:                closing,
			Sentiment:            domain.SentimentNeutral,
			Summary:              stage.Justification,
			Strategy:             pkg.Strategy,
			IntentMarkers:        []string{},
			LastAnalyzed:         now,
			ClosingProbability:   &closing,
			PostReplyProbability: &postReply,
			EmailSubject:         pkg.Subject,
			EmailBody:            pkg.Body,
			SuggestedStage:       stage.Stage,
		},
	}
	opp.AIAnalysis.Sanitize()
	draft := domain.DraftEmail{ContactID: contact.ID, Subject: pkg.Subject, Body: pkg.Body, GeneratedAt: now}

	stored, err := s.store.AddContact(ctx, contact)
	if err != nil {
		return nil, fmt.Errorf("storing contact: %w", err)
	}
	storedOpp, err := s.store.AddOpportunity(ctx, opp)
	if err != nil {
		return nil, fmt.Errorf("storing opportunity: %w", err)
	}
	if err := s.store.AddDraftEmail(ctx, sess.TenantID, draft); err != nil {
		return nil, fmt.Errorf("storing draft: %w", err)
	}

	s.logger.Info("lead created",
		zap.String("tenant_id", sess.TenantID),
		zap.String("contact_id", stored.ID),
		zap.String("stage", string(storedOpp.Stage)),
		zap.Bool("advisor_fallback", stage.Fallback),
	)
	return &LeadResult{
		Contact:     *stored,
		Opportunity: *storedOpp,
		Draft:       draft,
		Outreach:    *pkg,
		Stage:       *stage,
	}, nil
}

// QuickAddContact stores a contact without any AI work.
func (s *LeadService) QuickAddContact(ctx context.Context, sess domain.Session, in ContactInput) (*domain.Contact, error) {
	ctx, span := leadsTracer.Start(ctx, "LeadService.QuickAddContact")
	defer span.End()

	first := domain.TitleCase(in.FirstName)
	phone := domain.NormalizePhone(in.Phone)
	if first == "" {
		return nil, &domain.ErrValidation{Field: "first_name", Message: "is required"}
	}
	if phone == "" {
		return nil, &domain.ErrValidation{Field: "phone", Message: "a valid phone number is required"}
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email != "" && !domain.ValidEmail(email) {
		return nil, &domain.ErrValidation{Field: "email", Message: "is not a valid email"}
	}

	return s.store.AddContact(ctx, domain.Contact{
		TenantID:     sess.TenantID,
		FirstName:    first,
		LastName:     domain.TitleCase(in.LastName),
		Phone:        phone,
		Email:        email,
		City:         domain.TitleCase(in.City),
		Description:  strings.TrimSpace(in.Description),
		LeadCategory: domain.ParseCategory(in.Category),
		Tags:         []string{domain.TagNewLead},
		AssignedTo:   sess.UserID,
	})
}

// Contacts lists the tenant's contacts, newest first.
func (s *LeadService) Contacts(ctx context.Context, sess domain.Session) ([]domain.Contact, error) {
	return s.store.ListContacts(ctx, sess.TenantID)
}

// Drafts returns a contact's draft history, latest last.
func (s *LeadService) Drafts(ctx context.Context, sess domain.Session, contactID string) ([]domain.DraftEmail, error) {
	return s.store.ListDraftEmails(ctx, sess.TenantID, contactID)
}

// Opportunities lists the pipeline.
func (s *LeadService) Opportunities(ctx context.Context, sess domain.Session) ([]domain.Opportunity, error) {
	return s.store.ListOpportunities(ctx, sess.TenantID)
}

// MoveOpportunity is the board drag and drop. Any stage may follow any other.
func (s *LeadService) MoveOpportunity(ctx context.Context, sess domain.Session, opportunityID, stage string) (*domain.Opportunity, error) {
	ctx, span := leadsTracer.Start(ctx, "LeadService.MoveOpportunity")
	defer span.End()
	span.SetAttributes(attribute.String("opportunity.id", opportunityID), attribute.String("stage", stage))

	st, ok := domain.ParseStage(stage)
	if !ok {
		return nil, &domain.ErrValidation{Field: "stage", Message: "unknown stage " + stage}
	}
	return s.store.UpdateOpportunityStage(ctx, sess.TenantID, opportunityID, st)
}
