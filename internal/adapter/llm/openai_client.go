package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// OpenAIClient implements Client against any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client for an OpenAI-compatible API.
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

const classifySystemPrompt = `You classify real estate chat messages. ` +
	`Label the last user message with exactly one of: property_inquiry, ` +
	`availability_and_booking_request, price_inquiry, buyer_seller_communication, ` +
	`negotiation, general_question, unknown. Report your confidence between 0 and 1.`

// classificationSchema constrains the model to return {intent, confidence}
// through a forced tool call.
var classificationSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"intent": {
			Type: jsonschema.String,
			Enum: []string{
				"property_inquiry", "availability_and_booking_request", "price_inquiry",
				"buyer_seller_communication", "negotiation", "general_question", "unknown",
			},
		},
		"confidence": {Type: jsonschema.Number},
	},
	Required: []string{"intent", "confidence"},
}

// Classify labels a message via a forced tool call so the response is always
// machine-readable JSON.
func (c *OpenAIClient) Classify(ctx context.Context, message string, history []Turn) (Classification, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
	}
	messages = append(messages, toChatMessages(history)...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: message,
	})

	toolName := "classify"
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Tools: []openai.Tool{
			{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:       toolName,
					Parameters: classificationSchema,
				},
			},
		},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: toolName},
		},
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classification call failed: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return Classification{}, fmt.Errorf("classification call returned no tool call")
	}

	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	args := resp.Choices[0].Message.ToolCalls[0].Function.Arguments
	if err := json.Unmarshal([]byte(args), &out); err != nil {
		return Classification{}, fmt.Errorf("failed to decode classification: %w", err)
	}
	xlog.Debug("Message classified", "intent", out.Intent, "confidence", out.Confidence)
	return Classification{Label: out.Intent, Confidence: out.Confidence}, nil
}

// Generate produces free-form assistant text.
func (c *OpenAIClient) Generate(ctx context.Context, systemPrompt string, history []Turn, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	messages = append(messages, toChatMessages(history)...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: userPrompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("generation call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generation call returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func toChatMessages(history []Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, turn := range history {
		role := turn.Role
		switch role {
		case "user", "assistant", "system":
		default:
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	return out
}
