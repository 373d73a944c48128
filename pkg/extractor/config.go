package extractor

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultPromptFile is the instruction template shipped with the repository.
const DefaultPromptFile = "prompts/minimal_question.md"

// LLMConfig holds configuration for the LLM extractor.
type LLMConfig struct {
	// Prompt is the instruction template placed before the page HTML.
	Prompt string

	// Temperature for LLM responses (default: 0.1).
	Temperature float64

	// MaxTokens for LLM responses (default: 4096).
	MaxTokens int

	// MaxContentSize limits the HTML sent, in bytes (0 = unlimited).
	MaxContentSize int

	// Timeout bounds a single extraction call (default: 60s).
	Timeout time.Duration
}

// DefaultLLMConfig returns the defaults for minimal question extraction.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Temperature: 0.1,
		MaxTokens:   4096,
		Timeout:     60 * time.Second,
	}
}

// SystemPrompt frames every extraction request.
const SystemPrompt = `You are a precise data extraction assistant for medical board-exam questions.
Respond with ONLY valid JSON matching the requested shape. No explanations.`

// LoadPrompt reads the instruction template. A missing or empty file is an
// error, since extraction without it would be meaningless.
func LoadPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("loading extraction prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("extraction prompt %s is empty", path)
	}
	return prompt, nil
}

// BuildPrompt places the page HTML after the instruction template.
func BuildPrompt(template, rawHTML string, maxContentSize int) string {
	var prompt strings.Builder
	prompt.WriteString(template)
	prompt.WriteString("\n\n## Page HTML\n\n")
	prompt.WriteString(TruncateContent(rawHTML, maxContentSize))
	prompt.WriteString("\n")
	return prompt.String()
}

// TruncateContent limits content size to avoid token limits.
// maxLen of 0 means no limit.
func TruncateContent(content string, maxLen int) string {
	if maxLen <= 0 || len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "\n\n[Content truncated due to length...]"
}

// StripMarkdownCodeBlock removes a code fence, with or without a language
// tag, from around a response.
func StripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag, if any, up to the end of the opening line.
	if i := strings.IndexAny(s, "\n{["); i >= 0 {
		if tag := strings.TrimSpace(s[:i]); isFenceTag(tag) {
			s = s[i:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
