// Package domain holds the CRM records shared by the store, the AI gateway
// and the orchestration services.
package domain

import "time"

// ============================================================
// Enumerations
// ============================================================

// LeadCategory classifies a lead.
type LeadCategory string

const (
	CategoryCorporate  LeadCategory = "corporate"
	CategorySMB        LeadCategory = "smb"
	CategoryIndividual LeadCategory = "individual"
)

// Stage is a pipeline column. Any stage is reachable from any other.
type Stage string

const (
	StageLead      Stage = "lead"
	StageContacted Stage = "contacted"
	StageQualified Stage = "qualified"
	StageClosed    Stage = "closed"
)

// Stages lists the pipeline columns in board order.
var Stages = []Stage{StageLead, StageContacted, StageQualified, StageClosed}

// Sentiment of a lead as judged by the model.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// TriggerType groups automation triggers by what drives them.
type TriggerType string

const (
	TriggerVision    TriggerType = "vision"
	TriggerSentiment TriggerType = "sentiment"
	TriggerTime      TriggerType = "time"
	TriggerLogic     TriggerType = "logic"
)

// Tags stamped on contacts by the flow that created them.
const (
	TagBulkImport = "Bulk Import"
	TagAIDrafted  = "AI Drafted"
	TagNewLead    = "New Lead"
)

// ============================================================
// Records
// ============================================================

// Contact is a lead/person record. Core fields are immutable after creation;
// only AIAnalysis is replaced by re-analysis.
type Contact struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Phone        string       `json:"phone"`
	Email        string       `json:"email"`
	City         string       `json:"city"`
	Description  string       `json:"description,omitempty"`
	LeadCategory LeadCategory `json:"lead_category,omitempty"`
	Tags         []string     `json:"tags"`
	AssignedTo   string       `json:"assigned_to"`
	CreatedAt    time.Time    `json:"created_at"`
	AIAnalysis   *AIAnalysis  `json:"ai_analysis,omitempty"`
}

// FullName joins first and last name.
func (c *Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Opportunity is a pipeline deal tied to a Contact.
type Opportunity struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	ContactID    string      `json:"contact_id"`
	Title        string      `json:"title"`
	Value        int64       `json:"value"`
	Stage        Stage       `json:"stage"`
	AssignedTo   string      `json:"assigned_to"`
	LastActivity time.Time   `json:"last_activity"`
	AIAnalysis   *AIAnalysis `json:"ai_analysis,omitempty"`
}

// DraftEmail is an AI-authored outreach artifact. Immutable once stored.
type DraftEmail struct {
	ContactID   string    `json:"contact_id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AIAnalysis is produced wholesale by one orchestration call and replaces any
// previous analysis. Score and probabilities are always within [0,100].
type AIAnalysis struct {
	Score                int       `json:"score"`
	Sentiment            Sentiment `json:"sentiment"`
	Summary              string    `json:"summary"`
	Strategy             string    `json:"strategy"`
	IntentMarkers        []string  `json:"intent_markers"`
	LastAnalyzed         time.Time `json:"last_analyzed"`
	ClosingProbability   *int      `json:"closing_probability,omitempty"`
	PostReplyProbability *int      `json:"post_reply_probability,omitempty"`
	EmailSubject         string    `json:"email_subject,omitempty"`
	EmailBody            string    `json:"personalized_email_draft,omitempty"`
	LeadPersona          string    `json:"lead_persona,omitempty"`
	SuggestedStage       Stage     `json:"suggested_stage,omitempty"`
}

// Sanitize clamps numeric fields and coerces the sentiment in place.
func (a *AIAnalysis) Sanitize() {
	a.Score = ClampPercent(a.Score)
	a.Sentiment = ParseSentiment(string(a.Sentiment))
	if a.ClosingProbability != nil {
		v := ClampPercent(*a.ClosingProbability)
		a.ClosingProbability = &v
	}
	if a.PostReplyProbability != nil {
		v := ClampPercent(*a.PostReplyProbability)
		a.PostReplyProbability = &v
	}
	if a.IntentMarkers == nil {
		a.IntentMarkers = []string{}
	}
}

// AutomationTrigger is a named rule toggle. Toggling only flips Active.
type AutomationTrigger struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Icon        string      `json:"icon"`
	Type        TriggerType `json:"type"`
	Active      bool        `json:"is_active"`
	Color       string      `json:"color"`
}

// ============================================================
// Session: tenant and user context from the auth layer
// ============================================================

// Session identifies who is acting and on behalf of which tenant.
type Session struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	Currency   string `json:"currency"`
	Timezone   string `json:"timezone"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name,omitempty"`
}
