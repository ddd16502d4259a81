package azureopenai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zava-chat/internal/domain"
)

const (
	// APIVersion is pinned so the wire format stays reproducible.
	APIVersion = "2024-08-01-preview"

	// DefaultTimeout applies when no timeout is configured.
	DefaultTimeout = 100 * time.Second
)

// ErrNoContent is returned when a successful response carries no
// choices[0].message.content value.
var ErrNoContent = errors.New("azureopenai: no content in response")

// Request is the chat completions request body.
type Request struct {
	Messages    []domain.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature"`
}

// completionResponse is the minimal response shape consumed from the
// chat completions endpoint. Content is a pointer so null and absent can be
// told apart from an empty string.
type completionResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("azureopenai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts chat completion requests to an Azure OpenAI style deployment.
type Client struct {
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the timeout of the default HTTP client. A zero or negative
// value keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{Timeout: DefaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// CompletionURL builds the chat completions URL for a deployment.
func CompletionURL(endpoint, deploymentName string) string {
	return strings.TrimRight(endpoint, "/") +
		"/openai/deployments/" + deploymentName +
		"/chat/completions?api-version=" + APIVersion
}

// Complete sends one completion request authorized with the bearer token and
// returns the first choice's message content verbatim.
func (c *Client) Complete(ctx context.Context, url, token string, in Request) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("azureopenai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("azureopenai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("azureopenai: request failed: %w", err)
	}

	var payload completionResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("azureopenai: decode response: %w", err)
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message == nil || payload.Choices[0].Message.Content == nil {
		return "", ErrNoContent
	}
	return *payload.Choices[0].Message.Content, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
