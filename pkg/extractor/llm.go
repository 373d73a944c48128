package extractor

import (
	"context"
	"fmt"

	"github.com/jmylchreest/qbank/internal/logger"
	"github.com/jmylchreest/qbank/pkg/llm"
)

// LLMExtractor asks a chat model for the minimal question schema and
// validates the answer strictly. It never retries: a response that fails
// validation is reported to the caller as is.
type LLMExtractor struct {
	provider llm.Provider
	config   LLMConfig
}

// NewLLM creates an extractor over provider. The config must carry a prompt.
func NewLLM(provider llm.Provider, cfg LLMConfig) (*LLMExtractor, error) {
	if provider == nil {
		return nil, fmt.Errorf("llm extractor requires a provider")
	}
	if cfg.Prompt == "" {
		return nil, fmt.Errorf("llm extractor requires an extraction prompt")
	}
	defaults := DefaultLLMConfig()
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &LLMExtractor{provider: provider, config: cfg}, nil
}

// Extract sends the page to the model and parses the answer.
//
// Provider failures come back as *TransportError, non-JSON answers as
// *DecodeError and wrongly shaped JSON as *ValidationError.
func (e *LLMExtractor) Extract(ctx context.Context, rawHTML string) (Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleUser, Content: BuildPrompt(e.config.Prompt, rawHTML, e.config.MaxContentSize)},
	}

	logger.Debug("extractor calling LLM",
		"provider", e.provider.Name(),
		"model", e.provider.Model(),
		"content_size", len(rawHTML),
		"max_tokens", e.config.MaxTokens,
		"temperature", e.config.Temperature)

	resp, err := e.provider.Execute(ctx, llm.Request{
		Messages:    messages,
		MaxTokens:   e.config.MaxTokens,
		Temperature: e.config.Temperature,
		JSON:        true,
	})
	if err != nil {
		return Batch{}, &TransportError{Provider: e.provider.Name(), Err: err}
	}

	logger.Debug("extractor LLM response received",
		"response_size", len(resp.Content),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration", resp.Duration)

	batch, err := ParseBatch([]byte(StripMarkdownCodeBlock(resp.Content)))
	if err != nil {
		return Batch{}, err
	}

	for i, q := range batch.Questions {
		for _, leak := range Leaks(q) {
			logger.Warn("extracted question contains excluded content",
				"index", i, "field", leak.Field, "marker", leak.Marker)
		}
	}
	return batch, nil
}

// Name returns the extractor name.
func (e *LLMExtractor) Name() string {
	return "llm:" + e.provider.Name()
}

var _ Extractor = (*LLMExtractor)(nil)
