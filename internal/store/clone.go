package store

import "github.com/boddenberg/crm-leads-bfa-go/internal/domain"

// Records leave the store as deep copies so callers cannot mutate state.

func cloneAnalysis(a *domain.AIAnalysis) *domain.AIAnalysis {
	if a == nil {
		return nil
	}
	cp := *a
	if a.IntentMarkers != nil {
		cp.IntentMarkers = append([]string(nil), a.IntentMarkers...)
	}
	if a.ClosingProbability != nil {
		v := *a.ClosingProbability
		cp.ClosingProbability = &v
	}
	if a.PostReplyProbability != nil {
		v := *a.PostReplyProbability
		cp.PostReplyProbability = &v
	}
	return &cp
}

func cloneContact(c domain.Contact) domain.Contact {
	if c.Tags != nil {
		c.Tags = append([]string(nil), c.Tags...)
	}
	c.AIAnalysis = cloneAnalysis(c.AIAnalysis)
	return c
}

func cloneOpportunity(o domain.Opportunity) domain.Opportunity {
	o.AIAnalysis = cloneAnalysis(o.AIAnalysis)
	return o
}

func cloneConversation(c domain.Conversation) domain.Conversation {
	c.Messages = append([]domain.Message{}, c.Messages...)
	return c
}
