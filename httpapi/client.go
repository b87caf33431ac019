// Package httpapi implements the outbound HTTP collaborator behind the
// engine's api and get actions. Requests and responses are JSON.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is the decoded result of a request. Body holds the parsed JSON
// payload, or an empty map when the response body was empty.
type Response struct {
	StatusCode int
	Body       any
}

// Client issues JSON requests with a per-call timeout. Failed requests are
// never retried; the engine surfaces failures inline to the conversation.
type Client struct {
	httpClient *http.Client
}

// New creates a client backed by a default http.Client. Timeouts are
// applied per call via context.
func New() *Client {
	return &Client{httpClient: &http.Client{}}
}

// Do performs one request. Non-nil bodies are JSON-encoded. Any non-2xx
// status is an error.
func (c *Client) Do(ctx context.Context, method, url string, body any, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed: %s", resp.Status)
	}

	out := &Response{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(data)) == 0 {
		out.Body = map[string]any{}
		return out, nil
	}
	if err := json.Unmarshal(data, &out.Body); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return out, nil
}
