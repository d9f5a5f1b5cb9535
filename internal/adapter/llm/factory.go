package llm

import (
	"time"

	"github.com/mudler/xlog"
)

// NewClient creates an LLM client. Without an API key the mock client is
// used, so the service stays runnable in development and CI.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) Client {
	if apiKey == "" {
		xlog.Info("No LLM API key configured, using mock client")
		return NewMockClient()
	}
	return NewOpenAIClient(baseURL, apiKey, model, timeout)
}
