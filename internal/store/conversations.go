package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

const defaultChannel = "whatsapp"

// conversationFor returns the tenant's conversation with the contact,
// opening one in ai_handling when none exists. Caller holds the write lock.
func (t *tenantState) conversationFor(tenantID, contactID string) (*domain.Conversation, error) {
	if conv, ok := t.conversations[contactID]; ok {
		return conv, nil
	}
	i, ok := t.contactIdx[contactID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "contact", ID: contactID}
	}
	conv := &domain.Conversation{
		ContactID:   contactID,
		TenantID:    tenantID,
		ContactName: t.contacts[i].FullName(),
		Channel:     defaultChannel,
		Status:      domain.StatusAIHandling,
		Messages:    []domain.Message{},
		UpdatedAt:   time.Now().UTC(),
	}
	t.conversations[contactID] = conv
	return conv, nil
}

// GetConversation returns the conversation with a contact. A contact without
// one yet gets a fresh, unsaved ai_handling conversation.
func (s *State) GetConversation(_ context.Context, tenantID, contactID string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(tenantID)
	if t == nil {
		return nil, &domain.ErrNotFound{Resource: "contact", ID: contactID}
	}
	if conv, ok := t.conversations[contactID]; ok {
		out := cloneConversation(*conv)
		return &out, nil
	}
	i, ok := t.contactIdx[contactID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "contact", ID: contactID}
	}
	return &domain.Conversation{
		ContactID:   contactID,
		TenantID:    tenantID,
		ContactName: t.contacts[i].FullName(),
		Channel:     defaultChannel,
		Status:      domain.StatusAIHandling,
		Messages:    []domain.Message{},
	}, nil
}

// ListConversations returns conversations with the most recent activity first.
func (s *State) ListConversations(_ context.Context, tenantID string) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.peek(tenantID)
	if t == nil {
		return []domain.Conversation{}, nil
	}
	out := make([]domain.Conversation, 0, len(t.conversations))
	for _, conv := range t.conversations {
		out = append(out, cloneConversation(*conv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ContactID < out[j].ContactID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// AppendMessage adds a message to the contact's conversation. Messages are
// never edited or removed.
func (s *State) AppendMessage(ctx context.Context, tenantID, contactID string, m domain.Message) (*domain.Conversation, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	t := s.peek(tenantID)
	if t == nil {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "contact", ID: contactID}
	}
	conv, err := t.conversationFor(tenantID, contactID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	conv.Messages = append(conv.Messages, m)
	conv.UpdatedAt = m.Timestamp
	out := cloneConversation(*conv)
	s.emit(domain.EventConversationUpdated, tenantID, contactID, out)
	s.mu.Unlock()

	s.flush(ctx)
	return &out, nil
}

// SetConversationStatus moves the conversation between ai_handling and
// human_needed. Any other change is an ErrInvalidTransition.
func (s *State) SetConversationStatus(ctx context.Context, tenantID, contactID string, status domain.ConversationStatus) (*domain.Conversation, error) {
	s.mu.Lock()
	t := s.peek(tenantID)
	if t == nil {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "contact", ID: contactID}
	}
	conv, err := t.conversationFor(tenantID, contactID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !domain.CanTransition(conv.Status, status) {
		from := conv.Status
		s.mu.Unlock()
		return nil, &domain.ErrInvalidTransition{From: from, To: status}
	}
	conv.Status = status
	conv.UpdatedAt = time.Now().UTC()
	out := cloneConversation(*conv)
	s.emit(domain.EventConversationUpdated, tenantID, contactID, out)
	s.mu.Unlock()

	s.flush(ctx)
	return &out, nil
}

// ============================================================
// Automation
// ============================================================

func (t *tenantState) seedTriggers() {
	if t.triggers == nil {
		t.triggers = domain.DefaultTriggers()
	}
}

// ListTriggers returns the tenant's catalogue, seeding it on first access.
func (s *State) ListTriggers(_ context.Context, tenantID string) ([]domain.AutomationTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(tenantID)
	t.seedTriggers()
	out := make([]domain.AutomationTrigger, len(t.triggers))
	copy(out, t.triggers)
	return out, nil
}

// ToggleTrigger flips one trigger's active flag.
func (s *State) ToggleTrigger(ctx context.Context, tenantID, triggerID string) (*domain.AutomationTrigger, error) {
	s.mu.Lock()
	t := s.tenant(tenantID)
	t.seedTriggers()

	var toggled *domain.AutomationTrigger
	for i := range t.triggers {
		if t.triggers[i].ID == triggerID {
			t.triggers[i].Active = !t.triggers[i].Active
			cp := t.triggers[i]
			toggled = &cp
			break
		}
	}
	if toggled == nil {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "automation trigger", ID: triggerID}
	}
	s.emit(domain.EventTriggerToggled, tenantID, triggerID, toggled)
	s.mu.Unlock()

	s.flush(ctx)
	return toggled, nil
}
