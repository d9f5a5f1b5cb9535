// Package llm provides an abstraction for the external classification and
// generation capability.
package llm

import (
	"context"
)

// Turn is a single prior conversation turn passed as classification or
// generation context.
type Turn struct {
	Role    string
	Content string
}

// Classification is the raw result of the external labeling capability. The
// label is unvalidated here: thresholding and closed-set enforcement live in
// the service layer so they stay deterministic.
type Classification struct {
	Label      string
	Confidence float64
}

// Client defines the interface for the classification/generation capability.
// Both calls are fallible and latent; callers own timeouts via ctx.
type Client interface {
	// Classify labels a message given its recent history.
	Classify(ctx context.Context, message string, history []Turn) (Classification, error)

	// Generate produces free-form text for a system prompt plus history.
	Generate(ctx context.Context, systemPrompt string, history []Turn, userPrompt string) (string, error)
}

// Ensure implementations satisfy the interface.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*MockClient)(nil)
)
