// Package serving talks to an OpenAI-compatible chat-completions server
// (vLLM, mantle serve, hosted APIs) on behalf of the rollout driver.
package serving

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/samcharles93/rollout/internal/chat"
)

var ErrEmptyResponse = errors.New("empty response from model")

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the server asked us to back off or failed
// transiently.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   int
	Seed        *int64
	// RequestsPerSecond paces outgoing calls. Zero disables pacing.
	RequestsPerSecond float64
	Timeout           time.Duration
	// MaxRetries is how many times a 429/5xx response is retried.
	MaxRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := max(int(cfg.RequestsPerSecond), 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// BuildRequest converts a transcript into a chat-completions body. A
// trailing continuation stub is dropped and replaced by the continuation
// flags, so the server extends the final assistant message.
func (c *Client) BuildRequest(req *chat.InferRequest) ChatCompletionRequest {
	msgs := req.Messages
	body := ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Seed:        c.cfg.Seed,
	}
	if req.EndsWithStub() {
		msgs = msgs[:len(msgs)-1]
		addPrompt := false
		body.ContinueFinalMessage = true
		body.AddGenerationPrompt = &addPrompt
	}
	body.Messages = append([]chat.Message(nil), msgs...)
	return body
}

// Generate implements rollout.Generator.
func (c *Client) Generate(ctx context.Context, req *chat.InferRequest) (chat.ResponseChoice, error) {
	payload, err := json.Marshal(c.BuildRequest(req))
	if err != nil {
		return chat.ResponseChoice{}, fmt.Errorf("encode request: %w", err)
	}

	delay := c.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		result, err := c.post(ctx, payload)
		var se *StatusError
		if err == nil || !errors.As(err, &se) || !se.Retryable() || attempt >= c.cfg.MaxRetries {
			return result, err
		}
		select {
		case <-ctx.Done():
			return chat.ResponseChoice{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) post(ctx context.Context, payload []byte) (chat.ResponseChoice, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return chat.ResponseChoice{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return chat.ResponseChoice{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return chat.ResponseChoice{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := strings.TrimSpace(string(body))
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return chat.ResponseChoice{}, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return chat.ResponseChoice{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return chat.ResponseChoice{}, ErrEmptyResponse
	}

	choice := out.Choices[0]
	result := chat.ResponseChoice{
		Index:        choice.Index,
		Message:      chat.Message{Role: chat.RoleAssistant, Content: choice.Message.Content},
		FinishReason: chat.FinishStop,
		Usage:        out.Usage,
	}
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		result.FinishReason = *choice.FinishReason
	}
	return result, nil
}
