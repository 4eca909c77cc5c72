package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/store"
)

const tenant = "tenant-123"

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Handle(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func contact(first, phone string) domain.Contact {
	return domain.Contact{TenantID: tenant, FirstName: first, Phone: phone, AssignedTo: "user-456"}
}

func TestImportContacts_SkipsTakenPhones(t *testing.T) {
	s := store.New(zap.NewNop())
	ctx := context.Background()

	if _, err := s.AddContact(ctx, contact("Ali", "0300 1234567")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := s.ImportContacts(ctx, tenant, []domain.Contact{
		contact("Sara", "0321 7654321"),
		contact("Ali Again", "+92 300 1234567"),
		contact("Sara Twin", "03217654321"),
		contact("Bilal", "0333 1112223"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(stored) != 2 || stored[0].FirstName != "Sara" || stored[1].FirstName != "Bilal" {
		t.Fatalf("expected Sara and Bilal stored, got %+v", stored)
	}
	list, _ := s.ListContacts(ctx, tenant)
	if len(list) != 3 {
		t.Errorf("expected 3 contacts, got %d", len(list))
	}
}

func TestImportContacts_AllTaken(t *testing.T) {
	s := store.New(zap.NewNop())
	ctx := context.Background()
	_, _ = s.AddContact(ctx, contact("Ali", "0300 1234567"))

	stored, err := s.ImportContacts(ctx, tenant, []domain.Contact{contact("Ali Again", "03001234567")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("expected nothing stored, got %d", len(stored))
	}
}

func TestAddContact_DuplicatePhoneConflicts(t *testing.T) {
	s := store.New(zap.NewNop())
	ctx := context.Background()
	_, _ = s.AddContact(ctx, contact("Ali", "0300 1234567"))

	_, err := s.AddContact(ctx, contact("Ali Again", "+92 300 1234567"))

	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAddContact_RejectsUnusablePhone(t *testing.T) {
	s := store.New(zap.NewNop())

	_, err := s.AddContact(context.Background(), contact("Ali", "123"))

	var validation *domain.ErrValidation
	if !errors.As(err, &validation) || validation.Field != "phone" {
		t.Fatalf("expected phone validation error, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := store.New(zap.NewNop())
	ctx := context.Background()

	c, _ := s.AddContact(ctx, contact("Ali", "0300 1234567"))

	if _, err := s.GetContact(ctx, "other-tenant", c.ID); err == nil {
		t.Fatal("contact leaked across tenants")
	}
	other := contact("Ali", "0300 1234567")
	other.TenantID = "other-tenant"
	if _, err := s.AddContact(ctx, other); err != nil {
		t.Errorf("same phone in another tenant should be allowed: %v", err)
	}
}

func TestAddOpportunity_RequiresContact(t *testing.T) {
	s := store.New(zap.NewNop())
	ctx := context.Background()

	_, err := s.AddOpportunity(ctx, domain.Opportunity{TenantID: tenant, ContactID: "missing", Value: 10})
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	c, _ := s.AddContact(ctx, contact("Ali", "0300 1234567"))
	if _, err := s.AddOpportunity(ctx, domain.Opportunity{TenantID: tenant, ContactID: c.ID, Value: -1}); err == nil {
		t.Error("expected error for negative value")
	}
	o, err := s.AddOpportunity(ctx, domain.Opportunity{TenantID: tenant, ContactID: c.ID, Value: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Stage != domain.StageLead {
		t.Errorf("expected default stage lead, got %s", o.Stage)
	}
}

func TestUpdateOpportunityStage_AnyToAny(t *testing.T) {
	s := store.New(zap.NewNop())
	ctx := context.Background()
	c, _ := s.AddContact(ctx, contact("Ali", "0300 1234567"))
	o, _ := s.AddOpportunity(ctx, domain.Opportunity{TenantID: tenant, ContactID: c.ID, Value: 100})

	for _, st := range []domain.Stage{domain.StageClosed, domain.StageLead, domain.StageQualified, domain.StageContacted} {
		got, err := s.UpdateOpportunityStage(ctx, tenant, o.ID, st)
		if err != nil {
			t.Fatalf("move to %s: %v", st, err)
		}
		if got.Stage != st {
			t.Errorf("expected %s, got %s", st, got.Stage)
		}
	}

	if _, err := s.UpdateOpportunityStage(ctx, tenant, o.ID, "won"); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestAnalysisIsReplacedNotMerged(t *testing.T) {
	s := store.New(zap.NewNop())
	ctx := context.Background()
	c, _ := s.AddContact(ctx, contact("Ali", "0300 1234567"))

	_ = s.UpdateContactAnalysis(ctx, tenant, c.ID, &domain.AIAnalysis{Score: 80, Summary: "first", IntentMarkers: []string{"price"}})
	_ = s.UpdateContactAnalysis(ctx, tenant, c.ID, &domain.AIAnalysis{Score: 20, Summary: "second"})

	got, _ := s.GetContact(ctx, tenant, c.ID)
	if got.AIAnalysis.Summary != "second" || len(got.AIAnalysis.IntentMarkers) != 0 {
		t.Errorf("expected wholesale replacement, got %+v", got.AIAnalysis)
	}
}

func TestConversation_StateMachine(t *testing.T) {
	s := store.New(zap.NewNop())
	ctx := context.Background()
	c, _ := s.AddContact(ctx, contact("Ali", "0300 1234567"))

	conv, err := s.GetConversation(ctx, tenant, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.Status != domain.StatusAIHandling {
		t.Errorf("expected ai_handling, got %s", conv.Status)
	}

	if _, err := s.SetConversationStatus(ctx, tenant, c.ID, domain.StatusHumanNeeded); err != nil {
		t.Fatalf("take over: %v", err)
	}
	if _, err := s.SetConversationStatus(ctx, tenant, c.ID, domain.StatusAIHandling); err != nil {
		t.Fatalf("resume: %v", err)
	}

	_, err = s.SetConversationStatus(ctx, tenant, c.ID, domain.StatusClosed)
	var invalid *domain.ErrInvalidTransition
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTriggers_SeededAndToggled(t *testing.T) {
	s := store.New(zap.NewNop())
	ctx := context.Background()

	list, _ := s.ListTriggers(ctx, tenant)
	if len(list) != 4 {
		t.Fatalf("expected 4 seeded triggers, got %d", len(list))
	}

	tr, err := s.ToggleTrigger(ctx, tenant, domain.TriggerPaymentCheck)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.Active {
		t.Error("expected payment verification to become active")
	}

	if _, err := s.ToggleTrigger(ctx, tenant, "nope"); err == nil {
		t.Error("expected not found for unknown trigger")
	}
}

func TestSubscribers_CommitOrderAndReplay(t *testing.T) {
	s := store.New(zap.NewNop())
	rec := &recorder{}
	unsubscribe := s.Subscribe(rec)
	ctx := context.Background()

	c, _ := s.AddContact(ctx, contact("Ali", "0300 1234567"))
	o, _ := s.AddOpportunity(ctx, domain.Opportunity{TenantID: tenant, ContactID: c.ID, Value: 700})
	_, _ = s.UpdateOpportunityStage(ctx, tenant, o.ID, domain.StageQualified)
	_ = s.AddDraftEmail(ctx, tenant, domain.DraftEmail{ContactID: c.ID, Subject: "Hi", Body: "Dear Ali"})
	_, _ = s.AppendMessage(ctx, tenant, c.ID, domain.Message{Sender: domain.SenderLead, Content: "hello"})
	_, _ = s.ToggleTrigger(ctx, tenant, domain.TriggerLeadResponder)

	want := []domain.EventKind{
		domain.EventContactsAdded,
		domain.EventOpportunityAdded,
		domain.EventOpportunityStageChanged,
		domain.EventDraftAdded,
		domain.EventConversationUpdated,
		domain.EventTriggerToggled,
	}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	unsubscribe()
	_, _ = s.AddContact(ctx, contact("Sara", "0321 7654321"))
	if len(rec.kinds()) != len(want) {
		t.Error("unsubscribed sink still receives events")
	}

	replayed := store.New(zap.NewNop())
	if err := replayed.Replay(rec.events); err != nil {
		t.Fatalf("replay: %v", err)
	}
	opps, _ := replayed.ListOpportunities(ctx, tenant)
	if len(opps) != 1 || opps[0].Stage != domain.StageQualified {
		t.Errorf("unexpected replayed opportunities: %+v", opps)
	}
	drafts, _ := replayed.ListDraftEmails(ctx, tenant, c.ID)
	if len(drafts) != 1 {
		t.Errorf("expected 1 replayed draft, got %d", len(drafts))
	}
	triggers, _ := replayed.ListTriggers(ctx, tenant)
	for _, tr := range triggers {
		if tr.ID == domain.TriggerLeadResponder && tr.Active {
			t.Error("expected replayed toggle to deactivate the responder")
		}
	}
}
