// Package summarizer is a client for the external summarization API: one
// HTTPS endpoint accepting a question, answering synchronously.
package summarizer

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

// Client calls the summarization API.
type Client struct {
	http   *http.Client
	url    string
	apiKey string
}

// New creates a Client. httpClient may be nil, in which case a default with
// a 30 second timeout is used.
func New(httpClient *http.Client, url, apiKey string) (*Client, error) {
	url = strings.TrimSpace(strings.TrimRight(url, "/"))
	if url == "" {
		return nil, fmt.Errorf("summarizer: url is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("summarizer: api key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient, url: url, apiKey: strings.TrimSpace(apiKey)}, nil
}

type request struct {
	UserInput   string `json:"userInput"`
	AsyncOutput bool   `json:"asyncOutput"`
}

// response covers the documented shape plus the field names the API has
// been observed to drift through.
type response struct {
	Result string `json:"result"`
	Output string `json:"output"`
	Text   string `json:"text"`
	Answer string `json:"answer"`
}

// Summarize submits text as a synchronous request and returns the answer.
// A non-2xx status or a response with no recognizable result field is an
// error; there are no retries.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	raw, err := json.Marshal(request{UserInput: text, AsyncOutput: false})
	if err != nil {
		return "", fmt.Errorf("summarizer: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("summarizer: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarizer: request: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", fmt.Errorf("summarizer: read response: %w", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("summarizer: http %d", resp.StatusCode)
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("summarizer: parse response: %w", err)
	}
	for _, candidate := range []string{out.Result, out.Output, out.Text, out.Answer} {
		if candidate != "" {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("summarizer: response has no result field")
}
