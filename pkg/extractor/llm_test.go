package extractor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmylchreest/qbank/pkg/llm"
)

type mockProvider struct {
	content string
	err     error
	lastReq llm.Request
}

func (m *mockProvider) Execute(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Content: m.content}, nil
}

func (m *mockProvider) Name() string  { return "mock" }
func (m *mockProvider) Model() string { return "mock-model" }

func TestNewLLM_RequiresPrompt(t *testing.T) {
	if _, err := NewLLM(&mockProvider{}, LLMConfig{}); err == nil {
		t.Error("expected error without prompt")
	}
	if _, err := NewLLM(nil, LLMConfig{Prompt: "p"}); err == nil {
		t.Error("expected error without provider")
	}
}

func TestLLMExtractor_Extract(t *testing.T) {
	tests := []struct {
		name    string
		content string
		stems   []string
	}{
		{"plain", `{"questions":[{"question_context_html":"<p>c</p>","question_stem_html":"<p>s</p>"}]}`, []string{"<p>s</p>"}},
		{"fenced_json", "```json\n{\"questions\":[{\"question_stem_html\":\"s\"}]}\n```", []string{"s"}},
		{"fenced_bare", "```\n{\"questions\":[]}\n```", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{content: tt.content}
			e, err := NewLLM(p, LLMConfig{Prompt: "Exclusion Rules", Temperature: 0.1})
			if err != nil {
				t.Fatal(err)
			}

			batch, err := e.Extract(context.Background(), "<html>page</html>")
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if len(batch.Questions) != len(tt.stems) {
				t.Fatalf("expected %d questions, got %d", len(tt.stems), len(batch.Questions))
			}
			for i, s := range tt.stems {
				if batch.Questions[i].StemHTML != s {
					t.Errorf("question %d: expected stem %q, got %q", i, s, batch.Questions[i].StemHTML)
				}
			}
		})
	}
}

func TestLLMExtractor_Request(t *testing.T) {
	p := &mockProvider{content: `{"questions":[]}`}
	e, _ := NewLLM(p, LLMConfig{Prompt: "TEMPLATE", Temperature: 0.1, MaxTokens: 512})

	if _, err := e.Extract(context.Background(), "<p>RAW</p>"); err != nil {
		t.Fatal(err)
	}

	msgs := p.lastReq.Messages
	if len(msgs) != 2 || msgs[0].Role != llm.RoleSystem || msgs[1].Role != llm.RoleUser {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if !strings.HasPrefix(msgs[1].Content, "TEMPLATE") || !strings.Contains(msgs[1].Content, "<p>RAW</p>") {
		t.Errorf("user message should hold template then HTML, got %q", msgs[1].Content)
	}
	if p.lastReq.Temperature != 0.1 || p.lastReq.MaxTokens != 512 || !p.lastReq.JSON {
		t.Errorf("unexpected request settings %+v", p.lastReq)
	}
}

func TestLLMExtractor_Errors(t *testing.T) {
	tests := []struct {
		name     string
		provider *mockProvider
		check    func(error) bool
	}{
		{
			name:     "transport",
			provider: &mockProvider{err: errors.New("connection refused")},
			check:    func(err error) bool { var te *TransportError; return errors.As(err, &te) },
		},
		{
			name:     "unexpected_shape",
			provider: &mockProvider{err: llm.ErrUnexpectedShape},
			check:    func(err error) bool { return errors.Is(err, llm.ErrUnexpectedShape) },
		},
		{
			name:     "prose",
			provider: &mockProvider{content: "Sorry, I cannot help with that."},
			check:    func(err error) bool { var de *DecodeError; return errors.As(err, &de) },
		},
		{
			name:     "wrong_shape",
			provider: &mockProvider{content: `{"items":[]}`},
			check:    func(err error) bool { var ve *ValidationError; return errors.As(err, &ve) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := NewLLM(tt.provider, LLMConfig{Prompt: "p"})
			_, err := e.Extract(context.Background(), "<p>x</p>")
			if err == nil || !tt.check(err) {
				t.Errorf("unexpected error %T: %v", err, err)
			}
		})
	}
}

func TestLLMExtractor_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"questions\":[{\"question_stem_html\":\"<p>Which drug?</p>\"}]}"}}]}`))
	}))
	defer srv.Close()

	p, err := llm.NewChatProvider(llm.ProviderConfig{BaseURL: srv.URL, Model: "local"})
	if err != nil {
		t.Fatal(err)
	}
	e, _ := NewLLM(p, LLMConfig{Prompt: "p"})

	batch, err := e.Extract(context.Background(), "<p>page</p>")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	q, ok := batch.First()
	if !ok || q.StemHTML != "<p>Which drug?</p>" || q.ContextHTML != "" {
		t.Errorf("unexpected question %+v", q)
	}
}

func TestLoadPrompt(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadPrompt(filepath.Join(dir, "missing.md")); err == nil {
		t.Error("expected error for missing prompt file")
	}

	empty := filepath.Join(dir, "empty.md")
	if err := os.WriteFile(empty, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPrompt(empty); err == nil {
		t.Error("expected error for empty prompt file")
	}
}

func TestLoadPrompt_Shipped(t *testing.T) {
	prompt, err := LoadPrompt(filepath.Join("..", "..", DefaultPromptFile))
	if err != nil {
		t.Fatalf("LoadPrompt() error = %v", err)
	}
	for _, want := range []string{"question_context_html", "question_stem_html", "Exclusion Rules"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("shipped prompt missing %q", want)
		}
	}
}

func TestStripMarkdownCodeBlock(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```JSON\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```{\"a\":1}```", `{"a":1}`},
		{"  \n```json\n[1]\n```  ", `[1]`},
	}

	for _, tt := range tests {
		if got := StripMarkdownCodeBlock(tt.input); got != tt.want {
			t.Errorf("StripMarkdownCodeBlock(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTruncateContent(t *testing.T) {
	if got := TruncateContent("abcdef", 0); got != "abcdef" {
		t.Errorf("expected no truncation, got %q", got)
	}
	if got := TruncateContent("abcdef", 3); !strings.HasPrefix(got, "abc\n") {
		t.Errorf("expected truncated content, got %q", got)
	}
}
