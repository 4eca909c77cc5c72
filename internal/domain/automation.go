package domain

// Trigger ids of the seeded catalogue.
const (
	TriggerLeadResponder      = "ai-lead-responder"
	TriggerIntelligentRouting = "intelligent-routing"
	TriggerPaymentCheck       = "payment-verification"
	TriggerReengagement       = "re-engagement-timer"
)

// DefaultTriggers is the catalogue every tenant starts with.
func DefaultTriggers() []AutomationTrigger {
	return []AutomationTrigger{
		{
			ID:          TriggerLeadResponder,
			Name:        "AI Lead Responder",
			Description: "Parses WhatsApp inquiries and drafts context-aware replies in Urdu or English.",
			Icon:        "fa-brands fa-whatsapp",
			Type:        TriggerSentiment,
			Active:      true,
			Color:       "emerald",
		},
		{
			ID:          TriggerIntelligentRouting,
			Name:        "Intelligent Routing",
			Description: "Assigns leads with an intent score above 85 to senior agents for closing.",
			Icon:        "fa-solid fa-ranking-star",
			Type:        TriggerLogic,
			Active:      true,
			Color:       "blue",
		},
		{
			ID:          TriggerPaymentCheck,
			Name:        "Payment Verification",
			Description: "Reads payment screenshots for transaction id, amount and validity.",
			Icon:        "fa-solid fa-receipt",
			Type:        TriggerVision,
			Active:      false,
			Color:       "amber",
		},
		{
			ID:          TriggerReengagement,
			Name:        "Re-engagement Timer",
			Description: "Nudges leads that have gone quiet for seven days.",
			Icon:        "fa-solid fa-clock-rotate-left",
			Type:        TriggerTime,
			Active:      false,
			Color:       "violet",
		},
	}
}
