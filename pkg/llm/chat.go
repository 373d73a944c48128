package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultChatEndpoint is a local OpenAI-compatible completions endpoint.
const DefaultChatEndpoint = "http://localhost:11434/v1/chat/completions"

// ChatProvider talks to any OpenAI-compatible chat completions endpoint over
// plain HTTP. Local model servers and hosted gateways both speak this shape.
type ChatProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewChatProvider creates a new chat completions provider.
func NewChatProvider(cfg ProviderConfig) (*ChatProvider, error) {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = DefaultChatEndpoint
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("chat provider requires a model")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &ChatProvider{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	// Some servers answer with a flat content field instead of choices.
	Content *string `json:"content"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Execute sends a completion request to the endpoint.
func (p *ChatProvider) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := &Response{
		Model: chatResp.Model,
		Usage: Usage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
		},
	}
	switch {
	case len(chatResp.Choices) > 0 && chatResp.Choices[0].Message.Content != nil:
		out.Content = *chatResp.Choices[0].Message.Content
		out.FinishReason = chatResp.Choices[0].FinishReason
	case chatResp.Content != nil:
		out.Content = *chatResp.Content
	default:
		return nil, fmt.Errorf("chat endpoint %s: %w", p.endpoint, ErrUnexpectedShape)
	}
	if out.Model == "" {
		out.Model = p.model
	}
	out.Duration = time.Since(start)
	return out, nil
}

// Name returns the provider identifier.
func (p *ChatProvider) Name() string {
	return "chat"
}

// Model returns the configured model name.
func (p *ChatProvider) Model() string {
	return p.model
}

var _ Provider = (*ChatProvider)(nil)
