package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/mudler/xlog"

	"github.com/maisonhq/chatcore/internal/domain"
)

const questionBridgeService = "seller_buyer_communication"

// forwardPatterns detect explicit requests to relay something to the other
// party. Intent alone is not enough: a message can carry communication intent
// ("what did the seller say?") without asking for anything to be forwarded.
var forwardPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:can|could|would|will)\s+you\s+(?:please\s+)?(?:ask|tell)\s+the\s+(?:seller|owner|buyer|landlord)\b`),
	regexp.MustCompile(`(?i)\b(?:please\s+)?(?:ask|tell)\s+the\s+(?:seller|owner|buyer|landlord)\b`),
	regexp.MustCompile(`(?i)\blet\s+the\s+(?:seller|owner|buyer|landlord)\s+know\b`),
	regexp.MustCompile(`(?i)\bpass\s+(?:this|that|it|my\s+\w+)\s+(?:on\s+)?to\s+the\s+(?:seller|owner|buyer|landlord)\b`),
	regexp.MustCompile(`(?i)\bforward\s+(?:this|that|it|my\s+\w+)\s+to\s+the\s+(?:seller|owner|buyer|landlord)\b`),
	regexp.MustCompile(`(?i)\bfind\s+out\s+from\s+the\s+(?:seller|owner|buyer|landlord)\b`),
	regexp.MustCompile(`(?i)\b(?:i\s+have|i've\s+got)\s+a\s+question\s+for\s+the\s+(?:seller|owner|buyer|landlord)\b`),
}

// DetectForwardRequest reports whether a message explicitly asks for a
// question to be relayed to the counterpart.
func DetectForwardRequest(message string) bool {
	for _, p := range forwardPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

// forwardQuestion records a question for the counterpart and links the
// conversation into the question-bridge service. The returned reply is the
// acknowledgment shown to the asker; the verbatim question text is what gets
// stored.
func (s *Service) forwardQuestion(ctx context.Context, conv *domain.PropertyConversation, message string, now time.Time) (string, *domain.Question, error) {
	buyerID, sellerID := conv.UserID, conv.CounterpartID
	if conv.Role == domain.RoleSeller {
		buyerID, sellerID = conv.CounterpartID, conv.UserID
	}

	q := &domain.Question{
		PropertyID:     conv.PropertyID,
		BuyerID:        buyerID,
		SellerID:       sellerID,
		ConversationID: conv.ID,
		QuestionText:   message,
		Status:         domain.QuestionPending,
		CreatedAt:      now,
	}
	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return "", nil, fmt.Errorf("failed to record question: %w", err)
	}

	meta, _ := json.Marshal(map[string]any{"question_id": q.ID, "role": string(conv.Role)})
	ref := &domain.ExternalReference{
		PropertyConversationID: conv.ID,
		ServiceName:            questionBridgeService,
		ExternalID:             conv.CounterpartID,
		ReferenceMetadata:      meta,
		LastSynced:             now,
	}
	if err := s.store.CreateExternalReference(ctx, ref); err != nil {
		// The question is already durable; a missing reference only degrades
		// counterpart listings.
		xlog.Warn("Failed to link question reference", "question_id", q.ID, "error", err.Error())
	}

	xlog.Info("Question forwarded", "question_id", q.ID, "property_id", conv.PropertyID, "to", conv.Role.Counterpart())
	reply := fmt.Sprintf("I will forward your question to the %s and let you know once I have a response.", conv.Role.Counterpart())
	return reply, q, nil
}

// ListSellerQuestions returns questions addressed to a seller, optionally
// narrowed by status.
func (s *Service) ListSellerQuestions(ctx context.Context, sellerID string, status domain.QuestionStatus) ([]domain.Question, error) {
	if sellerID == "" {
		return nil, fmt.Errorf("%w: seller_id is required", domain.ErrValidation)
	}
	if status != "" && status != domain.QuestionPending && status != domain.QuestionAnswered {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}
	return s.store.ListQuestionsBySeller(ctx, sellerID, status)
}

// AnswerQuestion records an answer exactly once and injects it into the
// asker's open conversation when one exists. The answer is durable even when
// injection fails; Delivered reports whether the asker's conversation got the
// message.
func (s *Service) AnswerQuestion(ctx context.Context, questionID int64, answerText string) (*domain.AnswerResult, error) {
	if answerText == "" {
		return nil, fmt.Errorf("%w: answer text is required", domain.ErrValidation)
	}

	now := time.Now().UTC()
	q, err := s.store.MarkQuestionAnswered(ctx, questionID, answerText, now)
	if err != nil {
		return nil, err
	}

	result := &domain.AnswerResult{Question: *q}
	conv, err := s.deliveryConversation(ctx, q)
	if err != nil || conv == nil {
		if err != nil {
			xlog.Warn("Answer delivery lookup failed", "question_id", q.ID, "error", err.Error())
		}
		return result, nil
	}

	// Injection takes the same per-conversation lock as a normal turn so the
	// synthetic message never interleaves with an in-flight append.
	unlock := s.locks.Lock(propertyLockKey(conv.ID))
	defer unlock()

	meta, _ := json.Marshal(map[string]any{"question_id": q.ID, "response_type": "question_answer"})
	msg := &domain.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        fmt.Sprintf("The %s has responded to your question %q: %s", conv.Role.Counterpart(), q.QuestionText, q.AnswerText),
		Timestamp:      now,
		Intent:         domain.IntentBuyerSellerComm,
		Metadata:       meta,
	}
	if err := s.store.AppendPropertyMessage(ctx, conv.ID, msg, now); err != nil {
		xlog.Warn("Answer recorded but delivery failed", "question_id", q.ID, "conversation_id", conv.ID, "error", err.Error())
		return result, nil
	}

	result.Delivered = true
	xlog.Info("Question answered", "question_id", q.ID, "conversation_id", conv.ID)
	return result, nil
}

// deliveryConversation finds the asker's conversation for answer injection:
// the one the question was forwarded from, whichever side asked. Closed
// conversations take no writes, so delivery is skipped and the answer stays
// readable through the question store.
func (s *Service) deliveryConversation(ctx context.Context, q *domain.Question) (*domain.PropertyConversation, error) {
	if q.ConversationID != 0 {
		conv, err := s.store.GetPropertyConversation(ctx, q.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil || conv.Status == domain.StatusClosed {
			return nil, nil
		}
		return conv, nil
	}
	// Questions predating conversation bookkeeping fall back to the buyer
	// side of the triple.
	return s.store.FindOpenPropertyConversation(ctx, q.PropertyID, q.BuyerID, q.SellerID)
}
