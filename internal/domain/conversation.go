package domain

import "time"

// ConversationStatus is the triage mode of a conversation.
type ConversationStatus string

const (
	StatusAIHandling  ConversationStatus = "ai_handling"
	StatusHumanNeeded ConversationStatus = "human_needed"
	// StatusClosed is kept for stored data; no transition produces it.
	StatusClosed ConversationStatus = "closed"
)

// Sender of a message.
type Sender string

// Agent replies are sent as the user with IsAIGenerated set.
const (
	SenderLead Sender = "lead"
	SenderUser Sender = "user"
)

// Message is a single chat line. Messages are append-only.
type Message struct {
	ID            string    `json:"id"`
	Sender        Sender    `json:"sender"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	IsAIGenerated bool      `json:"is_ai_generated"`
}

// Conversation is a per-contact chat thread with a triage status.
type Conversation struct {
	ContactID   string             `json:"contact_id"`
	TenantID    string             `json:"tenant_id"`
	ContactName string             `json:"contact_name"`
	Channel     string             `json:"channel"`
	Status      ConversationStatus `json:"status"`
	Messages    []Message          `json:"messages"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// CanTransition reports whether the state machine allows from -> to.
// Operators move between ai_handling and human_needed in either direction;
// the agent only escalates. Nothing reaches closed.
func CanTransition(from, to ConversationStatus) bool {
	switch to {
	case StatusAIHandling, StatusHumanNeeded:
		return from == StatusAIHandling || from == StatusHumanNeeded
	default:
		return false
	}
}

// ParseConversationStatus returns the status and whether it is known.
func ParseConversationStatus(s string) (ConversationStatus, bool) {
	switch ConversationStatus(s) {
	case StatusAIHandling, StatusHumanNeeded, StatusClosed:
		return ConversationStatus(s), true
	}
	return "", false
}
