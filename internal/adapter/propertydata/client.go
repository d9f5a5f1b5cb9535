// Package propertydata provides a client for the external property-data
// capability.
package propertydata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/maisonhq/chatcore/internal/domain"
)

// Client fetches structured property details from the property service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a property-data client. An empty base URL disables the
// capability; lookups then fail and callers degrade gracefully.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetProperty fetches details for one property id.
func (c *Client) GetProperty(ctx context.Context, propertyID string) (*domain.PropertyDetails, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("property service not configured")
	}

	url := fmt.Sprintf("%s/properties/%s", c.baseURL, propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("property service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("property service returned status %d", resp.StatusCode)
	}

	var details domain.PropertyDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("failed to decode property details: %w", err)
	}
	return &details, nil
}
