package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mudler/xlog"

	"github.com/maisonhq/chatcore/internal/domain"
)

func generalLockKey(conversationID int64) string {
	return fmt.Sprintf("general:%d", conversationID)
}

func propertyLockKey(conversationID int64) string {
	return fmt.Sprintf("property:%d", conversationID)
}

func sessionLockKey(sessionID string) string {
	return "session:" + sessionID
}

// HandleGeneralChat processes one general-conversation turn: resolve the
// session, classify, dispatch to a module, merge the context extract and
// persist the turn atomically.
func (s *Service) HandleGeneralChat(ctx context.Context, req *domain.GeneralChatRequest) (*domain.ChatResponse, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	session, err := s.ResolveOrCreateSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	// Creation and the turn itself run under the session lock so concurrent
	// first messages on one session converge on a single conversation row.
	unlockSession := s.locks.Lock(sessionLockKey(session.SessionID))
	conv, err := s.store.GetOrCreateGeneralConversation(ctx, session.SessionID, session.UserID)
	unlockSession()
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(generalLockKey(conv.ID))
	defer unlock()

	history, err := s.store.ListGeneralMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	turns := s.historyTurns(history)

	intent := s.classify(ctx, req.Message, turns)
	module := s.modules.Select(domain.KindGeneral, intent, req.Message)
	reply, patch, err := module.Handle(ctx, ModuleRequest{
		Message: req.Message,
		Intent:  intent,
		Kind:    domain.KindGeneral,
		Context: conv.Context,
		History: turns,
	})
	if err != nil {
		return nil, fmt.Errorf("module %s failed: %w", module.Name(), err)
	}

	now := time.Now().UTC()
	userMsg := &domain.Message{ConversationID: conv.ID, Role: domain.RoleUser, Content: req.Message, Timestamp: now, Intent: intent}
	assistantMsg := &domain.Message{ConversationID: conv.ID, Role: domain.RoleAssistant, Content: reply, Timestamp: now, Intent: intent}

	merged, err := s.commitGeneralTurn(ctx, conv, userMsg, assistantMsg, intent, patch, now)
	if err != nil {
		return nil, err
	}

	xlog.Info("General turn handled", "conversation_id", conv.ID, "intent", intent, "module", module.Name())
	return &domain.ChatResponse{
		Message:        reply,
		ConversationID: conv.ID,
		SessionID:      session.SessionID,
		Intent:         intent,
		Context:        &merged,
	}, nil
}

// commitGeneralTurn persists a turn with bounded retries on write conflicts,
// re-reading the conversation and re-merging the same extract each attempt.
func (s *Service) commitGeneralTurn(ctx context.Context, conv *domain.GeneralConversation, userMsg, assistantMsg *domain.Message, intent domain.Intent, patch domain.ContextPatch, now time.Time) (domain.ConversationContext, error) {
	base := domain.ContextPatch{LastIntent: intent, Topics: []string{string(intent)}}

	for attempt := 0; ; attempt++ {
		merged := conv.Context.Merge(base).Merge(patch)
		err := s.store.AppendGeneralTurn(ctx, conv.ID, conv.Version, userMsg, assistantMsg, merged, now)
		if err == nil {
			return merged, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt+1 >= s.cfg.MaxWriteRetries {
			return domain.ConversationContext{}, err
		}
		fresh, ferr := s.store.GetGeneralConversation(ctx, conv.ID)
		if ferr != nil {
			return domain.ConversationContext{}, ferr
		}
		if fresh == nil {
			return domain.ConversationContext{}, domain.ErrConversationNotFound
		}
		xlog.Warn("Write conflict, retrying turn commit", "conversation_id", conv.ID, "attempt", attempt+1)
		conv = fresh
	}
}

// HandlePropertyChat processes one property-conversation turn. The question
// bridge gets first refusal on the message; otherwise the turn dispatches
// through the property module table.
func (s *Service) HandlePropertyChat(ctx context.Context, req *domain.PropertyChatRequest) (*domain.ChatResponse, error) {
	if err := validatePropertyChat(req); err != nil {
		return nil, err
	}

	session, err := s.ResolveOrCreateSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	unlockSession := s.locks.Lock(sessionLockKey(session.SessionID))
	conv, err := s.resolvePropertyConversation(ctx, session.SessionID, req)
	unlockSession()
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.StatusClosed {
		return nil, domain.ErrConversationClosed
	}

	unlock := s.locks.Lock(propertyLockKey(conv.ID))
	defer unlock()

	history, err := s.store.ListPropertyMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	turns := s.historyTurns(history)

	intent := s.classify(ctx, req.Message, turns)
	now := time.Now().UTC()

	var (
		reply      string
		patch      domain.ContextPatch
		moduleName string
		question   *domain.Question
	)
	if DetectForwardRequest(req.Message) {
		reply, question, err = s.forwardQuestion(ctx, conv, req.Message, now)
		moduleName = "question_bridge"
	} else {
		module := s.modules.Select(domain.KindProperty, intent, req.Message)
		moduleName = module.Name()
		reply, patch, err = module.Handle(ctx, ModuleRequest{
			Message:       req.Message,
			Intent:        intent,
			Kind:          domain.KindProperty,
			Context:       conv.PropertyContext,
			History:       turns,
			PropertyID:    conv.PropertyID,
			Role:          conv.Role,
			CounterpartID: conv.CounterpartID,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("module %s failed: %w", moduleName, err)
	}

	userMsg := &domain.Message{ConversationID: conv.ID, Role: domain.RoleUser, Content: req.Message, Timestamp: now, Intent: intent}
	assistantMsg := &domain.Message{ConversationID: conv.ID, Role: domain.RoleAssistant, Content: reply, Timestamp: now, Intent: intent}
	if question != nil {
		assistantMsg.Metadata = mustJSON(map[string]any{"question_id": question.ID, "response_type": "question_forward"})
	}

	merged, err := s.commitPropertyTurn(ctx, conv, userMsg, assistantMsg, intent, patch, now)
	if err != nil {
		return nil, err
	}

	xlog.Info("Property turn handled", "conversation_id", conv.ID, "property_id", conv.PropertyID, "intent", intent, "module", moduleName)
	return &domain.ChatResponse{
		Message:         reply,
		ConversationID:  conv.ID,
		SessionID:       session.SessionID,
		Intent:          intent,
		PropertyContext: &merged,
	}, nil
}

func validatePropertyChat(req *domain.PropertyChatRequest) error {
	switch {
	case req.Message == "":
		return fmt.Errorf("%w: message is required", domain.ErrValidation)
	case req.UserID == "":
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	case req.PropertyID == "":
		return fmt.Errorf("%w: property_id is required", domain.ErrValidation)
	case req.CounterpartID == "":
		return fmt.Errorf("%w: counterpart_id is required", domain.ErrValidation)
	case !req.Role.Valid():
		return fmt.Errorf("%w: role must be buyer or seller", domain.ErrValidation)
	case req.UserID == req.CounterpartID:
		return fmt.Errorf("%w: user and counterpart must differ", domain.ErrValidation)
	}
	return nil
}

// resolvePropertyConversation finds the conversation for this turn. The
// session's open conversation wins when it matches the request identity; a
// mismatch is a role conflict, not a second conversation. A triple whose
// latest conversation is closed is rejected rather than forked into a
// replacement: closed is terminal for the pairing, not just the row.
func (s *Service) resolvePropertyConversation(ctx context.Context, sessionID string, req *domain.PropertyChatRequest) (*domain.PropertyConversation, error) {
	bySession, err := s.store.GetOpenPropertyConversationBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if bySession != nil {
		if bySession.UserID != req.UserID || bySession.PropertyID != req.PropertyID ||
			bySession.Role != req.Role || bySession.CounterpartID != req.CounterpartID {
			return nil, domain.ErrRoleConflict
		}
		return bySession, nil
	}

	latest, err := s.store.FindLatestPropertyConversation(ctx, req.PropertyID, req.UserID, req.CounterpartID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		if latest.Status == domain.StatusClosed {
			return nil, domain.ErrConversationClosed
		}
		if latest.Role != req.Role || latest.CounterpartID != req.CounterpartID {
			return nil, domain.ErrRoleConflict
		}
		return latest, nil
	}

	now := time.Now().UTC()
	conv, err := s.store.GetOrCreatePropertyConversation(ctx, &domain.PropertyConversation{
		SessionID:     sessionID,
		UserID:        req.UserID,
		PropertyID:    req.PropertyID,
		Role:          req.Role,
		CounterpartID: req.CounterpartID,
		Status:        domain.StatusActive,
		StartedAt:     now,
		LastMessageAt: now,
	})
	if err != nil {
		return nil, err
	}
	if conv.Role != req.Role || conv.CounterpartID != req.CounterpartID {
		return nil, domain.ErrRoleConflict
	}
	return conv, nil
}

func (s *Service) commitPropertyTurn(ctx context.Context, conv *domain.PropertyConversation, userMsg, assistantMsg *domain.Message, intent domain.Intent, patch domain.ContextPatch, now time.Time) (domain.ConversationContext, error) {
	base := domain.ContextPatch{LastIntent: intent, Topics: []string{string(intent)}}

	for attempt := 0; ; attempt++ {
		merged := conv.PropertyContext.Merge(base).Merge(patch)
		err := s.store.AppendPropertyTurn(ctx, conv.ID, conv.Version, userMsg, assistantMsg, merged, now)
		if err == nil {
			return merged, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt+1 >= s.cfg.MaxWriteRetries {
			return domain.ConversationContext{}, err
		}
		fresh, ferr := s.store.GetPropertyConversation(ctx, conv.ID)
		if ferr != nil {
			return domain.ConversationContext{}, ferr
		}
		if fresh == nil {
			return domain.ConversationContext{}, domain.ErrConversationNotFound
		}
		if fresh.Status == domain.StatusClosed {
			return domain.ConversationContext{}, domain.ErrConversationClosed
		}
		xlog.Warn("Write conflict, retrying turn commit", "conversation_id", conv.ID, "attempt", attempt+1)
		conv = fresh
	}
}

// GetGeneralHistory returns the ordered message history plus the context
// snapshot for one general conversation.
func (s *Service) GetGeneralHistory(ctx context.Context, conversationID int64) (*domain.ConversationHistory, error) {
	conv, err := s.store.GetGeneralConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, domain.ErrConversationNotFound
	}
	msgs, err := s.store.ListGeneralMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &domain.ConversationHistory{
		ConversationID: conv.ID,
		SessionID:      conv.SessionID,
		Messages:       msgs,
		Context:        &conv.Context,
	}, nil
}

// GetPropertyHistory returns the history for one property conversation.
// Closed conversations stay readable.
func (s *Service) GetPropertyHistory(ctx context.Context, conversationID int64) (*domain.ConversationHistory, error) {
	conv, err := s.store.GetPropertyConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, domain.ErrConversationNotFound
	}
	msgs, err := s.store.ListPropertyMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &domain.ConversationHistory{
		ConversationID:  conv.ID,
		SessionID:       conv.SessionID,
		PropertyID:      conv.PropertyID,
		Role:            conv.Role,
		CounterpartID:   conv.CounterpartID,
		Status:          conv.Status,
		Messages:        msgs,
		PropertyContext: &conv.PropertyContext,
	}, nil
}

// UpdateConversationStatus applies an explicit status transition to a
// property conversation. Turns never change status implicitly.
func (s *Service) UpdateConversationStatus(ctx context.Context, conversationID int64, status domain.ConversationStatus) (*domain.PropertyConversation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}

	unlock := s.locks.Lock(propertyLockKey(conversationID))
	defer unlock()

	conv, err := s.store.UpdatePropertyConversationStatus(ctx, conversationID, status)
	if err != nil {
		return nil, err
	}
	xlog.Info("Conversation status updated", "conversation_id", conversationID, "status", status)
	return conv, nil
}

// ListUserConversations returns everything a user can see: their own general
// and property conversations plus property conversations they appear in as a
// counterpart. Counterpart visibility also refreshes the backing references.
func (s *Service) ListUserConversations(ctx context.Context, userID string, filter domain.ConversationFilter) (*domain.UserConversations, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, fmt.Errorf("%w: invalid role filter %q", domain.ErrValidation, filter.Role)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: invalid status filter %q", domain.ErrValidation, filter.Status)
	}

	general, err := s.store.ListGeneralConversationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	direct, err := s.store.ListPropertyConversationsByUser(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	counterpart, err := s.store.ListCounterpartConversations(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	out := &domain.UserConversations{
		UserID:               userID,
		GeneralConversations: general,
	}
	for _, c := range direct {
		out.PropertyConversations = append(out.PropertyConversations, domain.UserPropertyConversation{
			PropertyConversation: c, Visibility: domain.VisibilityDirect,
		})
	}
	for _, c := range counterpart {
		out.PropertyConversations = append(out.PropertyConversations, domain.UserPropertyConversation{
			PropertyConversation: c, Visibility: domain.VisibilityCounterpart,
		})
	}

	if len(counterpart) > 0 {
		s.refreshReferences(ctx, userID)
	}
	return out, nil
}

// refreshReferences pings the sync service for the user's question-bridge
// references and records the sync time. Failures only leave last_synced
// stale.
func (s *Service) refreshReferences(ctx context.Context, userID string) {
	syncedAt, err := s.refSync.Sync(ctx, questionBridgeService, userID)
	if err != nil {
		xlog.Debug("Reference sync skipped", "user_id", userID, "error", err.Error())
		return
	}
	refs, err := s.store.ListExternalReferences(ctx, questionBridgeService, userID)
	if err != nil {
		xlog.Warn("Failed to list references for sync", "user_id", userID, "error", err.Error())
		return
	}
	for _, ref := range refs {
		if err := s.store.TouchExternalReference(ctx, ref.ID, syncedAt); err != nil {
			xlog.Warn("Failed to touch reference", "reference_id", ref.ID, "error", err.Error())
		}
	}
}
