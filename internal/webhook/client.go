package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Submitter is implemented by anything that can turn a page URL into an
// interpreted preview result.
type Submitter interface {
	// Submit sends the normalized URL to the generator and interprets
	// whatever comes back.
	Submit(ctx context.Context, pageURL string) (*Result, error)
}

// Client submits URLs to a single external webhook endpoint.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a Client for the given webhook endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		client: &http.Client{
			// Thumbnail generators can take a while to render a page.
			Timeout: 60 * time.Second,
		},
	}
}

// Submit posts {"url": pageURL} to the webhook and classifies the response.
// Transport-level failures come back wrapped in ErrTransport, non-2xx
// answers in ErrWebhook.
func (c *Client) Submit(ctx context.Context, pageURL string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{"url": pageURL})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrTransport, err)
	}

	return Interpret(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}
