package gateway

import (
	"fmt"
	"strings"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

// ============================================================
// System instructions
// ============================================================

func mapRowsInstruction(tenant string) string {
	return fmt.Sprintf(`You are a data engineering assistant for %s.
Map the raw spreadsheet rows you receive to CRM leads.

Fields:
- first_name: given name, or the first token of a full name
- last_name: surname
- phone: mobile number, Pakistani format 03XX XXXXXXX where applicable
- email: a valid email address or empty
- city: city or hub
- lead_category: one of corporate, smb, individual
- description: other useful columns such as inquiry or notes, combined

Rules:
1. Skip any row without a phone number.
2. Use proper casing for names.
3. Answer with JSON only: {"leads": [ ... ]}.`, tenant)
}

func outreachInstruction(tenant string) string {
	return fmt.Sprintf(`You are a senior business development director at %s.
Write a first-contact email for the lead and forecast the deal.

The email body must contain, in order: a salutation using the lead's first
name, an opening line, a value section tied to the lead's needs, a clear call
to action and a signature naming %s. Never leave placeholders such as [Name]
or {{company}} in the text.

probability is the chance (0-100) the deal closes from a cold start.
post_reply_probability is the chance (0-100) once the lead replies.
strategy is one or two sentences on how to work the lead.
Answer with JSON only.`, tenant, tenant)
}

func triageInstruction(tenant string) string {
	return fmt.Sprintf(`You are the first-line chat assistant for %s.
Answer simple, frequently asked questions briefly and politely.
Set human_needed to true, and tell the lead a team member will follow up, when
the message is about pricing or discounts, is a complaint, or is too complex
to answer confidently.
Answer with JSON only: {"reply": string, "human_needed": boolean}.`, tenant)
}

func stageInstruction(tenant string) string {
	return fmt.Sprintf(`You are a sales pipeline analyst at %s.
Read the deal notes and value and pick the funnel stage the deal is in.
Stages:
- lead: no meaningful contact yet
- contacted: first conversation happened, interest unclear
- qualified: need, budget or timeline confirmed
- closed: the deal is signed or paid
Answer with JSON only: {"stage": one of lead|contacted|qualified|closed, "justification": one sentence}.`, tenant)
}

func analyzeInstruction(tenant string) string {
	return fmt.Sprintf(`You are a lead scoring analyst at %s.
Judge the lead from their profile and conversation.
score: 0-100 purchase intent.
sentiment: positive, neutral or negative.
summary: two sentences at most.
strategy: the next best action.
intent_markers: short phrases from the conversation that signal intent.
lead_persona: a short label for the kind of buyer.
Answer with JSON only.`, tenant)
}

// ============================================================
// Declared output schemas
// ============================================================

func str() *domain.Schema  { return &domain.Schema{Type: domain.TypeString} }
func num() *domain.Schema  { return &domain.Schema{Type: domain.TypeNumber} }
func flag() *domain.Schema { return &domain.Schema{Type: domain.TypeBoolean} }

var leadRowsSchema = &domain.Schema{
	Type: domain.TypeObject,
	Properties: map[string]*domain.Schema{
		"leads": {
			Type: domain.TypeArray,
			Items: &domain.Schema{
				Type: domain.TypeObject,
				Properties: map[string]*domain.Schema{
					"first_name":    str(),
					"last_name":     str(),
					"phone":         str(),
					"email":         str(),
					"city":          str(),
					"lead_category": str(),
					"description":   str(),
				},
			},
		},
	},
	Required: []string{"leads"},
}

var outreachSchema = &domain.Schema{
	Type: domain.TypeObject,
	Properties: map[string]*domain.Schema{
		"email_subject":          str(),
		"email_body":             str(),
		"probability":            num(),
		"post_reply_probability": num(),
		"strategy":               str(),
	},
	Required: []string{"email_subject", "email_body", "probability", "post_reply_probability", "strategy"},
}

var triageSchema = &domain.Schema{
	Type: domain.TypeObject,
	Properties: map[string]*domain.Schema{
		"reply":        str(),
		"human_needed": flag(),
	},
	Required: []string{"reply", "human_needed"},
}

var stageSchema = &domain.Schema{
	Type: domain.TypeObject,
	Properties: map[string]*domain.Schema{
		"stage":         {Type: domain.TypeString, Enum: stageNames()},
		"justification": str(),
	},
	Required: []string{"stage", "justification"},
}

var analysisSchema = &domain.Schema{
	Type: domain.TypeObject,
	Properties: map[string]*domain.Schema{
		"score":          num(),
		"sentiment":      str(),
		"summary":        str(),
		"strategy":       str(),
		"intent_markers": {Type: domain.TypeArray, Items: str()},
		"lead_persona":   str(),
	},
	Required: []string{"score", "sentiment", "summary", "strategy"},
}

func stageNames() []string {
	out := make([]string, len(domain.Stages))
	for i, s := range domain.Stages {
		out[i] = string(s)
	}
	return out
}

func transcript(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return "(no messages)"
	}
	var b strings.Builder
	for _, m := range msgs {
		who := string(m.Sender)
		if m.IsAIGenerated {
			who = "assistant"
		}
		fmt.Fprintf(&b, "[%s] %s\n", who, m.Content)
	}
	return b.String()
}
