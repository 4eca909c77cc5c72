package domain

import "time"

// ============================================================
// Model boundary
// ============================================================

// AI task names, used for metrics labels, spans and error tagging.
const (
	TaskMapLeadRows = "map_lead_rows"
	TaskOutreach    = "outreach"
	TaskTriage      = "triage"
	TaskStage       = "stage_advice"
	TaskAnalyzeLead = "analyze_lead"
)

// ModelRequest is what a model backend receives: system instruction, payload
// and the declared output schema.
type ModelRequest struct {
	Task              string
	SystemInstruction string
	Payload           string
	Schema            *Schema
}

// ModelResponse is the raw model answer. Text should contain JSON matching the
// requested schema, possibly wrapped in prose or code fences.
type ModelResponse struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// ============================================================
// Per-task inputs and outputs
// ============================================================

// MappedLead is one spreadsheet row as mapped by the model.
type MappedLead struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	City         string `json:"city"`
	LeadCategory string `json:"lead_category"`
	Description  string `json:"description"`
}

// OutreachRequest carries what the outreach generator knows about a lead.
type OutreachRequest struct {
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	City        string       `json:"city"`
	Description string       `json:"description"`
	Category    LeadCategory `json:"lead_category"`
	Tone        string       `json:"tone"`
	Value       int64        `json:"deal_value"`
	Currency    string       `json:"currency"`
	TenantName  string       `json:"tenant_name"`
}

// OutreachPackage is a personalised first-contact email plus the model's
// closing forecast.
type OutreachPackage struct {
	Subject              string `json:"email_subject"`
	Body                 string `json:"email_body"`
	Probability          int    `json:"probability"`
	PostReplyProbability int    `json:"post_reply_probability"`
	Strategy             string `json:"strategy"`
}

// TriageRequest is one lead message in the context of its conversation.
type TriageRequest struct {
	TenantName  string    `json:"tenant_name"`
	ContactName string    `json:"contact_name"`
	History     []Message `json:"history"`
	Message     string    `json:"message"`
}

// TriageDecision is the agent's reply and whether a human must take over.
type TriageDecision struct {
	Reply       string `json:"reply"`
	HumanNeeded bool   `json:"human_needed"`
}

// StageRequest asks for a funnel stage given a deal description.
type StageRequest struct {
	Description string `json:"description"`
	Value       int64  `json:"value"`
	TenantName  string `json:"tenant_name"`
}

// StageSuggestion is the advisor output. Skipped means the description was
// too short for the model to be asked.
type StageSuggestion struct {
	Stage         Stage  `json:"stage"`
	Justification string `json:"justification"`
	Fallback      bool   `json:"fallback"`
	Skipped       bool   `json:"skipped,omitempty"`
}

// LeadAnalysisRequest bundles a contact and its transcript for scoring.
type LeadAnalysisRequest struct {
	Contact    Contact   `json:"contact"`
	Transcript []Message `json:"transcript"`
	TenantName string    `json:"tenant_name"`
}
