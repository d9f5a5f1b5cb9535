package domain

import (
	"encoding/json"
	"time"
)

// Session identifies a caller across turns. The token is opaque; callers echo
// it back on every request.
type Session struct {
	SessionID      string      `json:"session_id"`
	UserID         string      `json:"user_id,omitempty"` // empty for anonymous
	Kind           SessionKind `json:"kind"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
}

// GeneralConversation is a site-wide Q&A conversation owned by one session.
type GeneralConversation struct {
	ID            int64               `json:"id"`
	SessionID     string              `json:"session_id"`
	UserID        string              `json:"user_id,omitempty"`
	IsLoggedIn    bool                `json:"is_logged_in"`
	StartedAt     time.Time           `json:"started_at"`
	LastMessageAt time.Time           `json:"last_message_at"`
	Context       ConversationContext `json:"context"`
	Version       int64               `json:"-"`
}

// PropertyConversation is a buyer/seller conversation tied to one property.
// Role and CounterpartID are fixed at creation and never change.
type PropertyConversation struct {
	ID              int64               `json:"id"`
	SessionID       string              `json:"session_id"`
	UserID          string              `json:"user_id"`
	PropertyID      string              `json:"property_id"`
	Role            ConversationRole    `json:"role"`
	CounterpartID   string              `json:"counterpart_id"`
	Status          ConversationStatus  `json:"conversation_status"`
	StartedAt       time.Time           `json:"started_at"`
	LastMessageAt   time.Time           `json:"last_message_at"`
	PropertyContext ConversationContext `json:"property_context"`
	Version         int64               `json:"-"`
}

// Message is a single turn in either conversation kind. Ordering by Timestamp
// is the canonical turn order.
type Message struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversation_id"`
	Role           MessageRole     `json:"role"`
	Content        string          `json:"content"`
	Timestamp      time.Time       `json:"timestamp"`
	Intent         Intent          `json:"intent,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// ExternalReference links a third party or external service to a conversation
// without granting ownership. Exactly one of the two conversation ids is set.
// Deleting the referenced conversation cascades to its references.
type ExternalReference struct {
	ID                     int64           `json:"id"`
	GeneralConversationID  int64           `json:"general_conversation_id,omitempty"`
	PropertyConversationID int64           `json:"property_conversation_id,omitempty"`
	ServiceName            string          `json:"service_name"`
	ExternalID             string          `json:"external_id"`
	ReferenceMetadata      json.RawMessage `json:"reference_metadata,omitempty"`
	LastSynced             time.Time       `json:"last_synced"`
}

// Question is a durable buyer-to-seller question awaiting an asynchronous
// answer. It transitions pending -> answered exactly once.
type Question struct {
	ID             int64          `json:"id"`
	PropertyID     string         `json:"property_id"`
	BuyerID        string         `json:"buyer_id"`
	SellerID       string         `json:"seller_id"`
	ConversationID int64          `json:"conversation_id,omitempty"`
	QuestionText   string         `json:"question_text"`
	Status         QuestionStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	AnsweredAt     *time.Time     `json:"answered_at,omitempty"`
	AnswerText     string         `json:"answer_text,omitempty"`
}

// PropertyDetails is the structured result of the external property-data
// capability.
type PropertyDetails struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Location     string  `json:"location"`
	Price        float64 `json:"price"`
	Bedrooms     int     `json:"bedrooms"`
	Summary      string  `json:"summary"`
	Availability string  `json:"availability"`
}
