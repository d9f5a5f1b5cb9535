package domain

// GeneralChatRequest is an inbound general-chat turn.
type GeneralChatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// PropertyChatRequest is an inbound property-chat turn. All identity fields
// are required; Role and CounterpartID must match what was recorded when the
// conversation was created.
type PropertyChatRequest struct {
	Message       string           `json:"message"`
	UserID        string           `json:"user_id"`
	PropertyID    string           `json:"property_id"`
	Role          ConversationRole `json:"role"`
	CounterpartID string           `json:"counterpart_id"`
	SessionID     string           `json:"session_id,omitempty"`
}

// ChatResponse is the reply to either chat turn. PropertyContext is only set
// for property turns, Context only for general turns.
type ChatResponse struct {
	Message         string               `json:"message"`
	ConversationID  int64                `json:"conversation_id"`
	SessionID       string               `json:"session_id"`
	Intent          Intent               `json:"intent"`
	Context         *ConversationContext `json:"context,omitempty"`
	PropertyContext *ConversationContext `json:"property_context,omitempty"`
}

// ConversationHistory is an ordered message list plus the context snapshot.
type ConversationHistory struct {
	ConversationID  int64                `json:"conversation_id"`
	SessionID       string               `json:"session_id"`
	PropertyID      string               `json:"property_id,omitempty"`
	Role            ConversationRole     `json:"role,omitempty"`
	CounterpartID   string               `json:"counterpart_id,omitempty"`
	Status          ConversationStatus   `json:"conversation_status,omitempty"`
	Messages        []Message            `json:"messages"`
	Context         *ConversationContext `json:"context,omitempty"`
	PropertyContext *ConversationContext `json:"property_context,omitempty"`
}

// ConversationVisibility distinguishes conversations a user owns from ones
// they can only see as a counterpart reference.
type ConversationVisibility string

const (
	VisibilityDirect      ConversationVisibility = "direct"
	VisibilityCounterpart ConversationVisibility = "counterpart"
)

// UserPropertyConversation is a property conversation entry in a user
// listing, flagged with how the user sees it.
type UserPropertyConversation struct {
	PropertyConversation
	Visibility ConversationVisibility `json:"visibility"`
}

// UserConversations is the full listing for one user.
type UserConversations struct {
	UserID                string                     `json:"user_id"`
	GeneralConversations  []GeneralConversation      `json:"general_conversations"`
	PropertyConversations []UserPropertyConversation `json:"property_conversations"`
}

// ConversationFilter narrows a user conversation listing.
type ConversationFilter struct {
	Role   ConversationRole
	Status ConversationStatus
}

// AnswerResult reports a question answer submission. Delivered is false when
// the answer was persisted but could not be injected into the buyer's
// conversation.
type AnswerResult struct {
	Question  Question `json:"question"`
	Delivered bool     `json:"delivered"`
}
