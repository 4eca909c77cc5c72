// Package store holds the application state: contacts, opportunities,
// drafts, conversations and automation triggers, partitioned by tenant.
// Every mutation goes through a named command and is announced to
// subscribers after the write lock is released, in commit order.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

type tenantState struct {
	contacts      []domain.Contact
	contactIdx    map[string]int
	phones        map[string]string // phone key -> contact id
	opportunities []domain.Opportunity
	oppIdx        map[string]int
	drafts        map[string][]domain.DraftEmail
	draftCount    int
	conversations map[string]*domain.Conversation
	triggers      []domain.AutomationTrigger
}

func newTenantState() *tenantState {
	return &tenantState{
		contactIdx:    make(map[string]int),
		phones:        make(map[string]string),
		oppIdx:        make(map[string]int),
		drafts:        make(map[string][]domain.DraftEmail),
		conversations: make(map[string]*domain.Conversation),
	}
}

type subscription struct {
	id   int
	sink port.EventSink
}

// State is the in-memory CRM store. It implements port.CRMStore.
type State struct {
	mu      sync.RWMutex
	tenants map[string]*tenantState
	seq     int64
	pending []domain.Event

	dispatchMu sync.Mutex
	subsMu     sync.RWMutex
	subs       []subscription
	nextSub    int

	logger *zap.Logger
}

var _ port.CRMStore = (*State)(nil)

// New creates an empty store.
func New(logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{
		tenants: make(map[string]*tenantState),
		logger:  logger,
	}
}

// Subscribe registers a sink for committed events and returns a function
// that removes it.
func (s *State) Subscribe(sink port.EventSink) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, sink: sink})

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// tenant returns the state for id, creating it. Caller holds the write lock.
func (s *State) tenant(id string) *tenantState {
	t, ok := s.tenants[id]
	if !ok {
		t = newTenantState()
		s.tenants[id] = t
	}
	return t
}

// peek returns the state for id or nil. Caller holds at least the read lock.
func (s *State) peek(id string) *tenantState {
	return s.tenants[id]
}

// emit queues an event. Caller holds the write lock.
func (s *State) emit(kind domain.EventKind, tenantID, entityID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("store: marshal event payload", zap.String("kind", string(kind)), zap.Error(err))
		raw = []byte("null")
	}
	s.seq++
	s.pending = append(s.pending, domain.Event{
		Seq:       s.seq,
		Kind:      kind,
		TenantID:  tenantID,
		EntityID:  entityID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	})
}

// flush delivers queued events. Must be called without holding mu.
func (s *State) flush(ctx context.Context) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	s.subsMu.RLock()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.RUnlock()

	// sinks outlive the request that triggered the commit
	ctx = context.WithoutCancel(ctx)
	for _, ev := range batch {
		for _, sub := range subs {
			if err := sub.sink.Handle(ctx, ev); err != nil {
				s.logger.Warn("store: event sink failed",
					zap.String("kind", string(ev.Kind)),
					zap.Int64("seq", ev.Seq),
					zap.Error(err),
				)
			}
		}
	}
}

// ============================================================
// Contacts
// ============================================================

func prepareContact(c *domain.Contact) error {
	if c.TenantID == "" {
		return &domain.ErrValidation{Field: "tenant_id", Message: "is required"}
	}
	if c.FirstName == "" {
		return &domain.ErrValidation{Field: "first_name", Message: "is required"}
	}
	if domain.NormalizePhone(c.Phone) == "" {
		return &domain.ErrValidation{Field: "phone", Message: "is not a usable phone number"}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return nil
}

// AddContact stores one contact. A phone already present for the tenant is
// a conflict.
func (s *State) AddContact(ctx context.Context, c domain.Contact) (*domain.Contact, error) {
	stored, err := s.addContacts(ctx, c.TenantID, []domain.Contact{c}, false)
	if err != nil {
		return nil, err
	}
	out := cloneContact(stored[0])
	return &out, nil
}

// ImportContacts commits a batch, skipping contacts whose phone is already
// stored for the tenant (or repeated inside the batch). The phone check runs
// under the same lock as the insert, so rows taken by a concurrent writer
// since the caller last looked are skipped rather than failing the batch.
// It returns the contacts actually stored.
func (s *State) ImportContacts(ctx context.Context, tenantID string, cs []domain.Contact) ([]domain.Contact, error) {
	stored, err := s.addContacts(ctx, tenantID, cs, true)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Contact, len(stored))
	for i := range stored {
		out[i] = cloneContact(stored[i])
	}
	return out, nil
}

func (s *State) addContacts(ctx context.Context, tenantID string, cs []domain.Contact, skipTaken bool) ([]domain.Contact, error) {
	if len(cs) == 0 {
		return []domain.Contact{}, nil
	}

	prepared := make([]domain.Contact, len(cs))
	for i := range cs {
		c := cloneContact(cs[i])
		if c.TenantID == "" {
			c.TenantID = tenantID
		}
		if c.TenantID != tenantID {
			return nil, &domain.ErrValidation{Field: "tenant_id", Message: "batch spans tenants"}
		}
		if err := prepareContact(&c); err != nil {
			return nil, err
		}
		prepared[i] = c
	}

	s.mu.Lock()
	t := s.tenant(tenantID)
	seen := make(map[string]bool, len(prepared))
	kept := prepared[:0]
	for _, c := range prepared {
		key := domain.PhoneKey(c.Phone)
		_, taken := t.phones[key]
		_, idTaken := t.contactIdx[c.ID]
		switch {
		case (taken || seen[key]) && skipTaken:
			continue
		case taken || seen[key]:
			s.mu.Unlock()
			return nil, &domain.ErrConflict{Message: "contact with phone " + c.Phone + " already exists"}
		case idTaken:
			s.mu.Unlock()
			return nil, &domain.ErrConflict{Message: "contact id " + c.ID + " already exists"}
		}
		seen[key] = true
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		s.mu.Unlock()
		return []domain.Contact{}, nil
	}
	for _, c := range kept {
		t.insertContact(c)
	}
	s.emit(domain.EventContactsAdded, tenantID, kept[0].ID, kept)
	s.mu.Unlock()

	s.flush(ctx)
	return kept, nil
}

func (t *tenantState) insertContact(c domain.Contact) {
	t.contactIdx[c.ID] = len(t.contacts)
	t.contacts = append(t.contacts, c)
	t.phones[domain.PhoneKey(c.Phone)] = c.ID
}

// GetContact returns one contact.
func (s *State) GetContact(_ context.Context, tenantID, contactID string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(tenantID)
	if t == nil {
		return nil, &domain.ErrNotFound{Resource: "contact", ID: contactID}
	}
	i, ok := t.contactIdx[contactID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "contact", ID: contactID}
	}
	c := cloneContact(t.contacts[i])
	return &c, nil
}

// ListContacts returns contacts newest first.
func (s *State) ListContacts(_ context.Context, tenantID string) ([]domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(tenantID)
	if t == nil {
		return []domain.Contact{}, nil
	}
	out := make([]domain.Contact, 0, len(t.contacts))
	for i := len(t.contacts) - 1; i >= 0; i-- {
		out = append(out, cloneContact(t.contacts[i]))
	}
	return out, nil
}

// PhoneKeys returns the de-dup keys of every stored phone for the tenant.
func (s *State) PhoneKeys(_ context.Context, tenantID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool)
	if t := s.peek(tenantID); t != nil {
		for k := range t.phones {
			out[k] = true
		}
	}
	return out, nil
}

// UpdateContactAnalysis replaces the contact's analysis wholesale.
func (s *State) UpdateContactAnalysis(ctx context.Context, tenantID, contactID string, a *domain.AIAnalysis) error {
	s.mu.Lock()
	t := s.peek(tenantID)
	var i int
	var ok bool
	if t != nil {
		i, ok = t.contactIdx[contactID]
	}
	if !ok {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "contact", ID: contactID}
	}
	t.contacts[i].AIAnalysis = cloneAnalysis(a)
	s.emit(domain.EventAnalysisUpdated, tenantID, contactID, domain.AnalysisPayload{
		Target:   domain.TargetContact,
		Analysis: a,
	})
	s.mu.Unlock()

	s.flush(ctx)
	return nil
}

// ============================================================
// Opportunities
// ============================================================

// AddOpportunity stores a deal for an existing contact.
func (s *State) AddOpportunity(ctx context.Context, o domain.Opportunity) (*domain.Opportunity, error) {
	if o.Value < 0 {
		return nil, &domain.ErrValidation{Field: "value", Message: "must be non-negative"}
	}
	if o.Stage == "" {
		o.Stage = domain.StageLead
	}
	if _, ok := domain.ParseStage(string(o.Stage)); !ok {
		return nil, &domain.ErrValidation{Field: "stage", Message: "unknown stage " + string(o.Stage)}
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.LastActivity.IsZero() {
		o.LastActivity = time.Now().UTC()
	}
	o.AIAnalysis = cloneAnalysis(o.AIAnalysis)

	s.mu.Lock()
	t := s.peek(o.TenantID)
	if t == nil {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "contact", ID: o.ContactID}
	}
	if _, ok := t.contactIdx[o.ContactID]; !ok {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "contact", ID: o.ContactID}
	}
	if _, dup := t.oppIdx[o.ID]; dup {
		s.mu.Unlock()
		return nil, &domain.ErrConflict{Message: "opportunity id " + o.ID + " already exists"}
	}
	t.oppIdx[o.ID] = len(t.opportunities)
	t.opportunities = append(t.opportunities, o)
	s.emit(domain.EventOpportunityAdded, o.TenantID, o.ID, o)
	s.mu.Unlock()

	s.flush(ctx)
	out := cloneOpportunity(o)
	return &out, nil
}

// ListOpportunities returns deals ordered by last activity, newest first.
func (s *State) ListOpportunities(_ context.Context, tenantID string) ([]domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(tenantID)
	if t == nil {
		return []domain.Opportunity{}, nil
	}
	out := make([]domain.Opportunity, 0, len(t.opportunities))
	for _, o := range t.opportunities {
		out = append(out, cloneOpportunity(o))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// UpdateOpportunityStage moves a deal to any stage.
func (s *State) UpdateOpportunityStage(ctx context.Context, tenantID, opportunityID string, stage domain.Stage) (*domain.Opportunity, error) {
	canonical, ok := domain.ParseStage(string(stage))
	if !ok {
		return nil, &domain.ErrValidation{Field: "stage", Message: "unknown stage " + string(stage)}
	}

	s.mu.Lock()
	t := s.peek(tenantID)
	var i int
	if t != nil {
		i, ok = t.oppIdx[opportunityID]
	} else {
		ok = false
	}
	if !ok {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "opportunity", ID: opportunityID}
	}
	o := &t.opportunities[i]
	from := o.Stage
	o.Stage = canonical
	o.LastActivity = time.Now().UTC()
	s.emit(domain.EventOpportunityStageChanged, tenantID, opportunityID, domain.StageChangePayload{
		From: from,
		To:   canonical,
		At:   o.LastActivity,
	})
	out := cloneOpportunity(*o)
	s.mu.Unlock()

	s.flush(ctx)
	return &out, nil
}

// UpdateOpportunityAnalysis replaces the deal's analysis wholesale.
func (s *State) UpdateOpportunityAnalysis(ctx context.Context, tenantID, opportunityID string, a *domain.AIAnalysis) error {
	s.mu.Lock()
	t := s.peek(tenantID)
	var i int
	var ok bool
	if t != nil {
		i, ok = t.oppIdx[opportunityID]
	}
	if !ok {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "opportunity", ID: opportunityID}
	}
	t.opportunities[i].AIAnalysis = cloneAnalysis(a)
	s.emit(domain.EventAnalysisUpdated, tenantID, opportunityID, domain.AnalysisPayload{
		Target:   domain.TargetOpportunity,
		Analysis: a,
	})
	s.mu.Unlock()

	s.flush(ctx)
	return nil
}

// ============================================================
// Drafts
// ============================================================

// AddDraftEmail appends to the contact's draft history.
func (s *State) AddDraftEmail(ctx context.Context, tenantID string, d domain.DraftEmail) error {
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now().UTC()
	}

	s.mu.Lock()
	t := s.peek(tenantID)
	if t == nil {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "contact", ID: d.ContactID}
	}
	if _, ok := t.contactIdx[d.ContactID]; !ok {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "contact", ID: d.ContactID}
	}
	t.drafts[d.ContactID] = append(t.drafts[d.ContactID], d)
	t.draftCount++
	s.emit(domain.EventDraftAdded, tenantID, d.ContactID, d)
	s.mu.Unlock()

	s.flush(ctx)
	return nil
}

// ListDraftEmails returns the history oldest first; the last entry is current.
func (s *State) ListDraftEmails(_ context.Context, tenantID, contactID string) ([]domain.DraftEmail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(tenantID)
	if t == nil {
		return nil, &domain.ErrNotFound{Resource: "contact", ID: contactID}
	}
	if _, ok := t.contactIdx[contactID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "contact", ID: contactID}
	}
	out := make([]domain.DraftEmail, len(t.drafts[contactID]))
	copy(out, t.drafts[contactID])
	return out, nil
}

// CountDraftEmails counts drafts across the tenant.
func (s *State) CountDraftEmails(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t := s.peek(tenantID); t != nil {
		return t.draftCount, nil
	}
	return 0, nil
}
