package domain

import "errors"

// Error taxonomy for the routing engine. Transport maps these to HTTP
// statuses; everything else is wrapped and surfaced as an internal error.
var (
	// ErrConversationClosed rejects a write turn on a closed conversation.
	// History stays readable.
	ErrConversationClosed = errors.New("conversation closed")

	// ErrRoleConflict rejects a request claiming a different role or
	// counterpart than the one recorded at conversation creation.
	ErrRoleConflict = errors.New("conversation role conflict")

	// ErrQuestionNotFound covers both a missing question id and an attempt
	// to answer an already-answered question.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrConversationNotFound is returned by history reads for unknown ids.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrClassifierUnavailable marks a failed external classification call.
	// The router absorbs it: the turn proceeds with the unknown intent.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrConflict signals a lost optimistic write on a conversation row.
	// Retried internally with freshly read state.
	ErrConflict = errors.New("conversation write conflict")

	// ErrInvalidTransition rejects a status update not permitted by the
	// conversation status machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidation rejects malformed input before any state mutation.
	ErrValidation = errors.New("validation failed")
)
