package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Request is a single chat completion: a system prompt, the user's text and
// the session the turn belongs to.
type Request struct {
	SystemPrompt string
	SessionID    string
	UserText     string
}

// Client defines the completion capability required by the conversation
// service.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderError wraps any failure talking to the model provider: network,
// auth, quota, timeout or an open circuit.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("llm %s: %v", e.Op, e.Err) }

func (e *ProviderError) Unwrap() error { return e.Err }

// Config holds the provider settings for OpenAIClient.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Breaker BreakerConfig
}

// OpenAIClient calls the OpenAI chat completion API.  Every call passes
// through a circuit breaker so that an outage fails fast.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	breaker *CircuitBreaker
}

// NewOpenAIClient constructs an OpenAI-backed client and falls back to
// gpt-4o-mini when no model is configured.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(oc),
		model:   model,
		timeout: timeout,
		breaker: NewCircuitBreaker(cfg.Breaker),
	}
}

// Complete sends the system prompt and user text to the chat completion API
// and returns the assistant's reply.  The session id is forwarded as the
// end-user identifier so the provider can correlate turns.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.client == nil {
		return "", &ProviderError{Op: "complete", Err: errors.New("openai client not initialized")}
	}
	out, err := c.breaker.Execute(ctx, func() (string, error) {
		return c.complete(ctx, req)
	})
	if err != nil {
		return "", &ProviderError{Op: "complete", Err: err}
	}
	return out, nil
}

func (c *OpenAIClient) complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserText},
		},
		User: req.SessionID,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in completion")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("empty completion")
	}
	return content, nil
}

// Model reports the configured chat model.
func (c *OpenAIClient) Model() string { return c.model }

// BreakerState exposes the circuit state for health reporting.
func (c *OpenAIClient) BreakerState() string { return c.breaker.State() }
