package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient is a mock implementation of Client for testing and for running
// without an API key. Behavior is overridable per call; the defaults are a
// deterministic keyword classifier and a canned echo generator.
type MockClient struct {
	ClassifyFunc func(ctx context.Context, message string, history []Turn) (Classification, error)
	GenerateFunc func(ctx context.Context, systemPrompt string, history []Turn, userPrompt string) (string, error)
}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Classify labels a message with keyword matching when no override is set.
func (m *MockClient) Classify(ctx context.Context, message string, history []Turn) (Classification, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, message, history)
	}
	return keywordClassify(message), nil
}

// Generate returns a canned response when no override is set.
func (m *MockClient) Generate(ctx context.Context, systemPrompt string, history []Turn, userPrompt string) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, systemPrompt, history, userPrompt)
	}
	return fmt.Sprintf("[MOCK] Received your message: %q.", truncate(userPrompt, 100)), nil
}

// keywordClassify mirrors the labeling the real capability is prompted for,
// with high confidence so threshold tests can rely on the override instead.
func keywordClassify(message string) Classification {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "ask the seller", "tell the seller", "ask the buyer", "tell the buyer", "pass on", "relay"):
		return Classification{Label: "buyer_seller_communication", Confidence: 0.9}
	case containsAny(lower, "offer", "negotiate", "counteroffer", "bid"):
		return Classification{Label: "negotiation", Confidence: 0.9}
	case containsAny(lower, "price", "cost", "fee", "worth", "value"):
		return Classification{Label: "price_inquiry", Confidence: 0.9}
	case containsAny(lower, "available", "availability", "book", "viewing", "visit", "schedule"):
		return Classification{Label: "availability_and_booking_request", Confidence: 0.9}
	case containsAny(lower, "property", "house", "apartment", "flat", "bedroom"):
		return Classification{Label: "property_inquiry", Confidence: 0.9}
	case containsAny(lower, "hello", "hi ", "thanks", "thank", "bye", "how do", "what is", "website"):
		return Classification{Label: "general_question", Confidence: 0.9}
	}
	return Classification{Label: "unknown", Confidence: 0.3}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
