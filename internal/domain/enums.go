// Package domain defines the core domain models for the chat engine.
package domain

// Intent is a classified message intent. The set is closed: anything the
// classifier returns outside of it is treated as IntentUnknown.
type Intent string

const (
	IntentPropertyInquiry     Intent = "property_inquiry"
	IntentAvailabilityBooking Intent = "availability_and_booking_request"
	IntentPriceInquiry        Intent = "price_inquiry"
	IntentBuyerSellerComm     Intent = "buyer_seller_communication"
	IntentNegotiation         Intent = "negotiation"
	IntentGeneralQuestion     Intent = "general_question"
	IntentUnknown             Intent = "unknown"
)

// Valid reports whether the intent is one of the recognized labels.
func (i Intent) Valid() bool {
	switch i {
	case IntentPropertyInquiry, IntentAvailabilityBooking, IntentPriceInquiry,
		IntentBuyerSellerComm, IntentNegotiation, IntentGeneralQuestion, IntentUnknown:
		return true
	}
	return false
}

// MessageRole is the author role of a stored message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ConversationRole is the party role in a property conversation.
type ConversationRole string

const (
	RoleBuyer  ConversationRole = "buyer"
	RoleSeller ConversationRole = "seller"
)

// Valid reports whether the role is buyer or seller.
func (r ConversationRole) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Counterpart returns the opposite party role.
func (r ConversationRole) Counterpart() ConversationRole {
	if r == RoleBuyer {
		return RoleSeller
	}
	return RoleBuyer
}

// ConversationStatus is the lifecycle status of a property conversation.
type ConversationStatus string

const (
	StatusActive  ConversationStatus = "active"
	StatusPending ConversationStatus = "pending"
	StatusClosed  ConversationStatus = "closed"
)

// Valid reports whether the status is a known state.
func (s ConversationStatus) Valid() bool {
	return s == StatusActive || s == StatusPending || s == StatusClosed
}

// ValidStatusTransition reports whether from -> to is a permitted transition.
// closed is terminal.
func ValidStatusTransition(from, to ConversationStatus) bool {
	switch from {
	case StatusActive:
		return to == StatusPending || to == StatusClosed
	case StatusPending:
		return to == StatusClosed
	}
	return false
}

// SessionKind distinguishes anonymous visitors from authenticated users.
type SessionKind string

const (
	SessionAnonymous     SessionKind = "anonymous"
	SessionAuthenticated SessionKind = "authenticated"
)

// QuestionStatus is the lifecycle status of a buyer-to-seller question.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
)

// ConversationKind separates the two conversation populations. General
// conversations never route into property modules and vice versa.
type ConversationKind string

const (
	KindGeneral  ConversationKind = "general"
	KindProperty ConversationKind = "property"
)
