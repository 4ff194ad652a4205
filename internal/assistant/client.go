// Package assistant proxies chat and analysis prompts to an external,
// OpenAI-compatible LLM provider. The client is constructed explicitly
// and injected at startup; there is no package-level provider state.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eduboard/backend/internal/errors"
	"github.com/eduboard/backend/internal/telemetry"
)

const defaultTimeout = 30 * time.Second

type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	// SystemPrompt frames free-form chat requests.
	SystemPrompt string
	// AnalysisPrompt frames progress-analysis requests.
	AnalysisPrompt string

	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

type Client struct {
	c    Config
	http *http.Client
}

func NewClient(c Config) *Client {
	hc := c.HTTPClient
	if hc == nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{c: c, http: hc}
}

type ChatRequest struct {
	Message string
}

type ChatResponse struct {
	Reply string
}

// Chat relays a free-form message to the provider under the configured
// system prompt.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Message == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("chat: message is required"))
	}

	reply, err := c.complete(ctx, c.c.SystemPrompt, req.Message)
	if err != nil {
		return nil, err
	}

	return &ChatResponse{Reply: reply}, nil
}

type AnalyzeRequest struct {
	Text string
}

type AnalyzeResponse struct {
	Analysis string
}

// Analyze relays text (typically a participant's progress summary) under
// the analysis prompt.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	if req.Text == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("analyze: text is required"))
	}

	analysis, err := c.complete(ctx, c.c.AnalysisPrompt, req.Text)
	if err != nil {
		return nil, err
	}

	return &AnalyzeResponse{Analysis: analysis}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body := completionRequest{
		Model: c.c.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("assistant: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.c.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("assistant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.c.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	telemetry.ObserveProviderCall(time.Since(start), err == nil)
	if err != nil {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("assistant: provider unreachable"),
			errors.WithCause(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("assistant: read provider response"),
			errors.WithCause(err))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("assistant: provider returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.CodeInternal,
			errors.WithMessagef("assistant: provider returned %d", resp.StatusCode))
	}

	var cr completionResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", errors.New(errors.CodeInternal,
			errors.WithMessagef("assistant: decode provider response"),
			errors.WithCause(err))
	}

	if len(cr.Choices) == 0 {
		return "", errors.New(errors.CodeInternal,
			errors.WithMessagef("assistant: provider returned no choices"))
	}

	return cr.Choices[0].Message.Content, nil
}
