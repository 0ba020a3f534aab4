// =============================================================================
// Invoice Rollup - Chat Completion Oracle
// =============================================================================
//
// Client implements resolver.Oracle against an OpenAI-compatible
// /chat/completions endpoint. It makes a single request per call; retries are
// the resolver's business. Error messages are worded so the retry policy can
// tell transient failures (5xx, overload, timeout) from fatal ones.
//
// Requests are paced by a token-bucket limiter so a large sheet full of new
// names cannot burst the API.
//
// =============================================================================

package oracle

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

	"golang.org/x/time/rate"
)

const (
	defaultSystemPrompt = "あなたは店舗名の正規化アシスタントです。"
	maxResponseBytes    = 64 * 1024
)

// Config configures the client.
type Config struct {
	Endpoint          string
	Model             string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Temperature       float64
	MaxTokens         int
}

// Client is an OpenAI-compatible chat completion oracle.
type Client struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	http        *http.Client
	limiter     *rate.Limiter
}

// ChatMessage is one message of a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the request body.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	N           int           `json:"n"`
}

// ChatResponse is the part of the response body the client reads.
type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("oracle endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("oracle API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("oracle model is required")
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 64
	}

	return &Client{
		endpoint:    strings.TrimSuffix(cfg.Endpoint, "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		timeout:     cfg.Timeout,
		http:        &http.Client{},
		limiter:     rate.NewLimiter(limit, 1),
	}, nil
}

// ResolveText sends prompt as the user message and returns the first
// choice's content, trimmed.
func (c *Client) ResolveText(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: defaultSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
		TopP:        1,
		MaxTokens:   c.maxTokens,
		N:           1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("request timeout: %w", err)
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode)
	}

	var chat ChatResponse
	if err := json.Unmarshal(data, &chat); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}

// statusError words non-200 responses for the retry classifier.
func statusError(code int) error {
	switch {
	case code >= 500:
		return fmt.Errorf("server error: %d", code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("overloaded: rate limited (%d)", code)
	default:
		return fmt.Errorf("request rejected: %d", code)
	}
}
