package domain

import (
	"encoding/json"
	"time"
)

// EventKind names a store mutation.
type EventKind string

const (
	EventContactsAdded           EventKind = "contacts_added"
	EventOpportunityAdded        EventKind = "opportunity_added"
	EventOpportunityStageChanged EventKind = "opportunity_stage_changed"
	EventAnalysisUpdated         EventKind = "analysis_updated"
	EventDraftAdded              EventKind = "draft_added"
	EventConversationUpdated     EventKind = "conversation_updated"
	EventTriggerToggled          EventKind = "trigger_toggled"
)

// Event is emitted by the store after every committed command, in commit
// order. Payload holds the JSON of the affected records.
type Event struct {
	Seq       int64           `json:"seq"`
	Kind      EventKind       `json:"kind"`
	TenantID  string          `json:"tenant_id"`
	EntityID  string          `json:"entity_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// AnalysisTarget tells which record an analysis_updated event refers to.
type AnalysisTarget string

const (
	TargetContact     AnalysisTarget = "contact"
	TargetOpportunity AnalysisTarget = "opportunity"
)

// AnalysisPayload is the payload of analysis_updated.
type AnalysisPayload struct {
	Target   AnalysisTarget `json:"target"`
	Analysis *AIAnalysis    `json:"analysis"`
}

// StageChangePayload is the payload of opportunity_stage_changed.
type StageChangePayload struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}
