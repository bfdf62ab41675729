// Package backend is the HTTP client for the obrag question-answering
// backend. It opens answer streams and relays plain CRUD requests; stream
// decoding lives in event.go.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AskPath is the backend route that produces the answer event-stream.
const AskPath = "/api/ask"

// AskRequest is the JSON payload for an answer stream request. Optional
// fields are omitted when empty so the backend applies its own defaults.
type AskRequest struct {
	Question    string `json:"question"`
	SessionID   string `json:"session_id,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	LLMProvider string `json:"llm_provider,omitempty"`
	LLMModel    string `json:"llm_model,omitempty"`
}

// Client talks to the obrag backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the backend at baseURL.
// The client timeout bounds whole non-streaming exchanges; streaming
// requests are bounded by their context instead.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Answer streams can be slow, especially with large contexts
			Timeout: timeout,
		},
	}
}

// BaseURL returns the backend base URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ask opens an answer stream for req. The returned response body is the raw
// chunked event-stream; the caller owns closing it. A non-2xx status is NOT
// an error here: the caller fails the whole request fast with that status
// before any stream is opened.
//
// Cancelling ctx aborts in-flight body reads, so an abandoned downstream
// request does not keep consuming the backend.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding ask request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+AskPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating ask request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("asking backend: %w", err)
	}

	return resp, nil
}

// Relay forwards a plain CRUD request (settings, projects, PARA notes, sync)
// to the backend verbatim and returns the backend's response. No body
// transformation is performed at this layer.
func (c *Client) Relay(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating relay request: %w", err)
	}

	for k, values := range header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("relaying to backend: %w", err)
	}

	return resp, nil
}
