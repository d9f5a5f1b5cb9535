package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maisonhq/chatcore/internal/adapter/llm"
	"github.com/maisonhq/chatcore/internal/domain"
)

func TestGeneralChatCreatesSessionAndConversation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.HandleGeneralChat(ctx, &domain.GeneralChatRequest{Message: "hello there"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SessionID)
	require.NotZero(t, resp.ConversationID)
	require.NotEmpty(t, resp.Message)
	assert.Equal(t, domain.IntentGeneralQuestion, resp.Intent)
	require.NotNil(t, resp.Context)
	assert.Equal(t, domain.IntentGeneralQuestion, resp.Context.LastIntent)
	assert.Contains(t, resp.Context.TopicsDiscussed, string(domain.IntentGeneralQuestion))

	// Second turn on the same session reuses the conversation.
	resp2, err := svc.HandleGeneralChat(ctx, &domain.GeneralChatRequest{
		Message:   "what is the average price in the area?",
		SessionID: resp.SessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, resp.ConversationID, resp2.ConversationID)
	assert.Equal(t, resp.SessionID, resp2.SessionID)
}

func TestGeneralChatRequiresMessage(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.HandleGeneralChat(context.Background(), &domain.GeneralChatRequest{})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestGeneralChatContextAccumulatesAcrossTurns(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.HandleGeneralChat(ctx, &domain.GeneralChatRequest{Message: "hello"})
	require.NoError(t, err)

	resp2, err := svc.HandleGeneralChat(ctx, &domain.GeneralChatRequest{
		Message:   "how much does a house cost here?",
		SessionID: resp.SessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentPriceInquiry, resp2.Intent)
	assert.Equal(t, domain.IntentPriceInquiry, resp2.Context.LastIntent)
	assert.Equal(t,
		[]string{string(domain.IntentGeneralQuestion), string(domain.IntentPriceInquiry)},
		resp2.Context.TopicsDiscussed, "topics keep first-seen order")
}

// Concurrent first messages on one session must converge on a single
// conversation.
func TestGeneralChatConcurrentFirstTurnsOneConversation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.ResolveOrCreateSession(ctx, "", "user-1")
	require.NoError(t, err)

	const n = 6
	ids := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := svc.HandleGeneralChat(ctx, &domain.GeneralChatRequest{
				Message:   "hello",
				UserID:    "user-1",
				SessionID: session.SessionID,
			})
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = resp.ConversationID
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "all turns landed on one conversation")
	}

	history, err := svc.GetGeneralHistory(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, history.Messages, 2*n, "every turn persisted both messages")
}

// An unclassifiable message routes to the fallback module and still persists
// a complete turn.
func TestGeneralChatUnknownIntentFallback(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.HandleGeneralChat(ctx, &domain.GeneralChatRequest{Message: "zzz qqq xxx"})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentUnknown, resp.Intent)
	assert.Contains(t, resp.Message, "not sure I understood")

	history, err := svc.GetGeneralHistory(ctx, resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, domain.IntentUnknown, history.Messages[0].Intent)
	assert.Equal(t, domain.ConversationContext{
		LastIntent:      domain.IntentUnknown,
		TopicsDiscussed: []string{string(domain.IntentUnknown)},
	}, *resp.Context)
}

func TestGeneralChatClassifierFailureDegradesToUnknown(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ClassifyFunc = func(ctx context.Context, message string, history []llm.Turn) (llm.Classification, error) {
		return llm.Classification{}, errors.New("upstream timeout")
	}

	resp, err := svc.HandleGeneralChat(context.Background(), &domain.GeneralChatRequest{Message: "hello"})
	require.NoError(t, err, "classifier failure must not fail the turn")
	assert.Equal(t, domain.IntentUnknown, resp.Intent)
}

func TestGeneralChatThresholdForcesUnknown(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ClassifyFunc = func(ctx context.Context, message string, history []llm.Turn) (llm.Classification, error) {
		return llm.Classification{Label: "price_inquiry", Confidence: 0.49}, nil
	}

	resp, err := svc.HandleGeneralChat(context.Background(), &domain.GeneralChatRequest{Message: "hmm"})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentUnknown, resp.Intent)
}

func TestGeneralChatUnrecognizedLabelForcesUnknown(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ClassifyFunc = func(ctx context.Context, message string, history []llm.Turn) (llm.Classification, error) {
		return llm.Classification{Label: "mortgage_advice", Confidence: 0.95}, nil
	}

	resp, err := svc.HandleGeneralChat(context.Background(), &domain.GeneralChatRequest{Message: "hmm"})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentUnknown, resp.Intent)
}

func newPropertyRequest(sessionID string) *domain.PropertyChatRequest {
	return &domain.PropertyChatRequest{
		Message:       "tell me about this property",
		UserID:        "buyer-1",
		PropertyID:    "prop-1",
		Role:          domain.RoleBuyer,
		CounterpartID: "seller-1",
		SessionID:     sessionID,
	}
}

func TestPropertyChatCreatesConversation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.HandlePropertyChat(ctx, newPropertyRequest(""))
	require.NoError(t, err)
	require.NotZero(t, resp.ConversationID)
	assert.Equal(t, domain.IntentPropertyInquiry, resp.Intent)
	require.NotNil(t, resp.PropertyContext)
	assert.True(t, resp.PropertyContext.PropertyDetailsRequested)
	assert.Nil(t, resp.Context, "general context not set on property turns")
}

func TestPropertyChatValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]*domain.PropertyChatRequest{
		"missing message":     {UserID: "u", PropertyID: "p", Role: domain.RoleBuyer, CounterpartID: "c"},
		"missing user":        {Message: "m", PropertyID: "p", Role: domain.RoleBuyer, CounterpartID: "c"},
		"missing property":    {Message: "m", UserID: "u", Role: domain.RoleBuyer, CounterpartID: "c"},
		"missing counterpart": {Message: "m", UserID: "u", PropertyID: "p", Role: domain.RoleBuyer},
		"bad role":            {Message: "m", UserID: "u", PropertyID: "p", Role: "tenant", CounterpartID: "c"},
		"self counterpart":    {Message: "m", UserID: "u", PropertyID: "p", Role: domain.RoleBuyer, CounterpartID: "u"},
	}
	for name, req := range cases {
		_, err := svc.HandlePropertyChat(ctx, req)
		require.ErrorIs(t, err, domain.ErrValidation, name)
	}
}

// The same buyer/property/seller triple reuses the open conversation even
// across sessions.
func TestPropertyChatTripleReuse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.HandlePropertyChat(ctx, newPropertyRequest(""))
	require.NoError(t, err)

	again := newPropertyRequest("")
	again.Message = "is it still available?"
	resp2, err := svc.HandlePropertyChat(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, resp.ConversationID, resp2.ConversationID)
	assert.NotEqual(t, resp.SessionID, resp2.SessionID, "fresh session, same conversation")
	assert.True(t, resp2.PropertyContext.PropertyDetailsRequested, "flag survives across turns")
	assert.True(t, resp2.PropertyContext.ViewingRequested)
}

func TestPropertyChatRoleConflictOnOpenSessionConversation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.HandlePropertyChat(ctx, newPropertyRequest(""))
	require.NoError(t, err)

	conflicting := newPropertyRequest(resp.SessionID)
	conflicting.Role = domain.RoleSeller
	conflicting.UserID = "buyer-1"
	conflicting.CounterpartID = "seller-1"
	_, err = svc.HandlePropertyChat(ctx, conflicting)
	require.ErrorIs(t, err, domain.ErrRoleConflict)
}

func TestPropertyChatRejectsClosedConversation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.HandlePropertyChat(ctx, newPropertyRequest(""))
	require.NoError(t, err)

	_, err = svc.UpdateConversationStatus(ctx, resp.ConversationID, domain.StatusClosed)
	require.NoError(t, err)

	// Same triple on a fresh session: the closed conversation is terminal for
	// the pairing, so the turn is rejected instead of forking a replacement.
	again := newPropertyRequest("")
	_, err = svc.HandlePropertyChat(ctx, again)
	require.ErrorIs(t, err, domain.ErrConversationClosed)

	// On the original session too.
	_, err = svc.HandlePropertyChat(ctx, newPropertyRequest(resp.SessionID))
	require.ErrorIs(t, err, domain.ErrConversationClosed)

	history, err := svc.GetPropertyHistory(ctx, resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, history.Status, "closed conversation stays readable")
	assert.Len(t, history.Messages, 2, "rejected turns write no message rows")
}

func TestUpdateConversationStatusTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.HandlePropertyChat(ctx, newPropertyRequest(""))
	require.NoError(t, err)

	conv, err := svc.UpdateConversationStatus(ctx, resp.ConversationID, domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, conv.Status)

	_, err = svc.UpdateConversationStatus(ctx, resp.ConversationID, domain.StatusActive)
	require.ErrorIs(t, err, domain.ErrInvalidTransition, "pending cannot reopen")

	_, err = svc.UpdateConversationStatus(ctx, resp.ConversationID, domain.StatusClosed)
	require.NoError(t, err)

	_, err = svc.UpdateConversationStatus(ctx, resp.ConversationID, domain.StatusPending)
	require.ErrorIs(t, err, domain.ErrInvalidTransition, "closed is terminal")

	_, err = svc.UpdateConversationStatus(ctx, resp.ConversationID, "archived")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.UpdateConversationStatus(ctx, 9999, domain.StatusClosed)
	require.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestPropertyChatPricingFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := newPropertyRequest("")
	req.Message = "what is the price of this place?"
	resp, err := svc.HandlePropertyChat(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentPriceInquiry, resp.Intent)
	assert.True(t, resp.PropertyContext.PriceDiscussed)

	nego := newPropertyRequest(resp.SessionID)
	nego.Message = "I would like to negotiate and make an offer of 200000"
	resp2, err := svc.HandlePropertyChat(ctx, nego)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentNegotiation, resp2.Intent)
	assert.True(t, resp2.PropertyContext.NegotiationStarted)
	assert.True(t, resp2.PropertyContext.PriceDiscussed, "earlier flag is monotonic")
	assert.Equal(t, domain.IntentNegotiation, resp2.PropertyContext.LastIntent)
}

func TestGetHistoryNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetGeneralHistory(ctx, 42)
	require.ErrorIs(t, err, domain.ErrConversationNotFound)
	_, err = svc.GetPropertyHistory(ctx, 42)
	require.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestListUserConversationsVisibility(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandleGeneralChat(ctx, &domain.GeneralChatRequest{Message: "hello", UserID: "buyer-1"})
	require.NoError(t, err)

	req := newPropertyRequest("")
	req.Message = "please ask the seller if pets are allowed"
	resp, err := svc.HandlePropertyChat(ctx, req)
	require.NoError(t, err)

	buyerView, err := svc.ListUserConversations(ctx, "buyer-1", domain.ConversationFilter{})
	require.NoError(t, err)
	assert.Len(t, buyerView.GeneralConversations, 1)
	require.Len(t, buyerView.PropertyConversations, 1)
	assert.Equal(t, domain.VisibilityDirect, buyerView.PropertyConversations[0].Visibility)

	// The seller never sent a message but is linked through the question
	// bridge reference.
	sellerView, err := svc.ListUserConversations(ctx, "seller-1", domain.ConversationFilter{})
	require.NoError(t, err)
	assert.Empty(t, sellerView.GeneralConversations)
	require.Len(t, sellerView.PropertyConversations, 1)
	assert.Equal(t, domain.VisibilityCounterpart, sellerView.PropertyConversations[0].Visibility)
	assert.Equal(t, resp.ConversationID, sellerView.PropertyConversations[0].ID)

	filtered, err := svc.ListUserConversations(ctx, "buyer-1", domain.ConversationFilter{Status: domain.StatusClosed})
	require.NoError(t, err)
	assert.Empty(t, filtered.PropertyConversations)

	_, err = svc.ListUserConversations(ctx, "", domain.ConversationFilter{})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.ListUserConversations(ctx, "buyer-1", domain.ConversationFilter{Role: "tenant"})
	require.ErrorIs(t, err, domain.ErrValidation)
}
