// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"time"

	"github.com/maisonhq/chatcore/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
	// DeleteExpiredSessions evicts sessions of the given kind whose last
	// activity is strictly older than cutoff, skipping sessions that own an
	// active or pending property conversation. Only session rows are removed.
	DeleteExpiredSessions(ctx context.Context, kind domain.SessionKind, cutoff time.Time) (int64, error)

	// General conversation operations
	GetOrCreateGeneralConversation(ctx context.Context, sessionID, userID string) (*domain.GeneralConversation, error)
	GetGeneralConversation(ctx context.Context, id int64) (*domain.GeneralConversation, error)
	// AppendGeneralTurn commits the user/assistant message pair, the merged
	// context and the activity timestamp as one transaction, guarded by the
	// conversation version. Returns domain.ErrConflict on a lost write.
	AppendGeneralTurn(ctx context.Context, conversationID, version int64, userMsg, assistantMsg *domain.Message, merged domain.ConversationContext, at time.Time) error
	ListGeneralMessages(ctx context.Context, conversationID int64) ([]domain.Message, error)
	ListGeneralConversationsByUser(ctx context.Context, userID string) ([]domain.GeneralConversation, error)

	// Property conversation operations
	GetOrCreatePropertyConversation(ctx context.Context, conv *domain.PropertyConversation) (*domain.PropertyConversation, error)
	GetPropertyConversation(ctx context.Context, id int64) (*domain.PropertyConversation, error)
	GetOpenPropertyConversationBySession(ctx context.Context, sessionID string) (*domain.PropertyConversation, error)
	FindOpenPropertyConversation(ctx context.Context, propertyID, userID, counterpartID string) (*domain.PropertyConversation, error)
	// FindLatestPropertyConversation returns the most recent conversation for
	// the party triple regardless of status, so callers can distinguish "never
	// talked" from "conversation was closed".
	FindLatestPropertyConversation(ctx context.Context, propertyID, userID, counterpartID string) (*domain.PropertyConversation, error)
	AppendPropertyTurn(ctx context.Context, conversationID, version int64, userMsg, assistantMsg *domain.Message, merged domain.ConversationContext, at time.Time) error
	// AppendPropertyMessage appends a single synthetic message outside of a
	// normal turn, bumping the activity timestamp in the same transaction.
	AppendPropertyMessage(ctx context.Context, conversationID int64, msg *domain.Message, at time.Time) error
	UpdatePropertyConversationStatus(ctx context.Context, id int64, status domain.ConversationStatus) (*domain.PropertyConversation, error)
	ListPropertyMessages(ctx context.Context, conversationID int64) ([]domain.Message, error)
	ListPropertyConversationsByUser(ctx context.Context, userID string, filter domain.ConversationFilter) ([]domain.PropertyConversation, error)
	// ListCounterpartConversations returns property conversations where the
	// user appears only as an external-reference counterpart.
	ListCounterpartConversations(ctx context.Context, userID string, filter domain.ConversationFilter) ([]domain.PropertyConversation, error)

	// External reference operations
	CreateExternalReference(ctx context.Context, ref *domain.ExternalReference) error
	ListExternalReferences(ctx context.Context, serviceName, externalID string) ([]domain.ExternalReference, error)
	TouchExternalReference(ctx context.Context, id int64, syncedAt time.Time) error

	// Question operations
	CreateQuestion(ctx context.Context, q *domain.Question) error
	GetQuestion(ctx context.Context, id int64) (*domain.Question, error)
	ListQuestionsBySeller(ctx context.Context, sellerID string, status domain.QuestionStatus) ([]domain.Question, error)
	// MarkQuestionAnswered transitions pending -> answered exactly once.
	// Returns domain.ErrQuestionNotFound when the id is unknown or the
	// question was already answered.
	MarkQuestionAnswered(ctx context.Context, id int64, answerText string, at time.Time) (*domain.Question, error)

	// Lifecycle
	Close() error
}
