package store

import (
	"encoding/json"
	"fmt"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

// Replay rebuilds state from journaled events without notifying
// subscribers. Events must be in commit order.
func (s *State) Replay(events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		if err := s.apply(ev); err != nil {
			return fmt.Errorf("replay event %d (%s): %w", ev.Seq, ev.Kind, err)
		}
		if ev.Seq > s.seq {
			s.seq = ev.Seq
		}
	}
	return nil
}

// apply mutates state for one event. Caller holds the write lock.
func (s *State) apply(ev domain.Event) error {
	t := s.tenant(ev.TenantID)

	switch ev.Kind {
	case domain.EventContactsAdded:
		var cs []domain.Contact
		if err := json.Unmarshal(ev.Payload, &cs); err != nil {
			return err
		}
		for _, c := range cs {
			if _, dup := t.contactIdx[c.ID]; dup {
				continue
			}
			t.insertContact(c)
		}

	case domain.EventOpportunityAdded:
		var o domain.Opportunity
		if err := json.Unmarshal(ev.Payload, &o); err != nil {
			return err
		}
		if _, dup := t.oppIdx[o.ID]; !dup {
			t.oppIdx[o.ID] = len(t.opportunities)
			t.opportunities = append(t.opportunities, o)
		}

	case domain.EventOpportunityStageChanged:
		var p domain.StageChangePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		if i, ok := t.oppIdx[ev.EntityID]; ok {
			t.opportunities[i].Stage = p.To
			t.opportunities[i].LastActivity = p.At
		}

	case domain.EventAnalysisUpdated:
		var p domain.AnalysisPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		switch p.Target {
		case domain.TargetContact:
			if i, ok := t.contactIdx[ev.EntityID]; ok {
				t.contacts[i].AIAnalysis = p.Analysis
			}
		case domain.TargetOpportunity:
			if i, ok := t.oppIdx[ev.EntityID]; ok {
				t.opportunities[i].AIAnalysis = p.Analysis
			}
		}

	case domain.EventDraftAdded:
		var d domain.DraftEmail
		if err := json.Unmarshal(ev.Payload, &d); err != nil {
			return err
		}
		t.drafts[d.ContactID] = append(t.drafts[d.ContactID], d)
		t.draftCount++

	case domain.EventConversationUpdated:
		var conv domain.Conversation
		if err := json.Unmarshal(ev.Payload, &conv); err != nil {
			return err
		}
		t.conversations[conv.ContactID] = &conv

	case domain.EventTriggerToggled:
		var trig domain.AutomationTrigger
		if err := json.Unmarshal(ev.Payload, &trig); err != nil {
			return err
		}
		t.seedTriggers()
		for i := range t.triggers {
			if t.triggers[i].ID == trig.ID {
				t.triggers[i].Active = trig.Active
			}
		}

	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}
