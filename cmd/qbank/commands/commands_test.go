package commands

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/jmylchreest/qbank/internal/store"
	"github.com/jmylchreest/qbank/pkg/source"
)

func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	setDefaults()
	t.Cleanup(viper.Reset)
}

func TestProviderChain(t *testing.T) {
	resetConfig(t)
	viper.Set("llm.provider", "openai")
	viper.Set("llm.fallback", []string{"chat", "openai", " ", "anthropic"})

	got := providerChain()
	want := []string{"openai", "chat", "anthropic"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("providerChain() = %v, want %v", got, want)
	}
}

func TestProviderConfig_Overrides(t *testing.T) {
	resetConfig(t)
	viper.Set("llm.model", "global-model")
	viper.Set("llm.endpoint", "http://localhost:1234/v1/chat/completions")
	viper.Set("llm.api_key", "global-key")
	viper.Set("llm.timeout", "5s")
	viper.Set("llm.providers", map[string]any{
		"anthropic": map[string]any{"model": "claude-test", "api_key": "ak"},
	})

	chat := providerConfig("chat")
	if chat.Model != "global-model" || chat.APIKey != "global-key" || chat.Timeout != 5*time.Second {
		t.Errorf("chat config = %+v", chat)
	}
	if chat.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", chat.MaxRetries)
	}

	ant := providerConfig("anthropic")
	if ant.Model != "claude-test" || ant.APIKey != "ak" {
		t.Errorf("anthropic config = %+v", ant)
	}
	if ant.BaseURL != chat.BaseURL {
		t.Errorf("endpoint should fall back to llm.endpoint, got %q", ant.BaseURL)
	}
}

func TestLLMConfig(t *testing.T) {
	resetConfig(t)
	prompt := filepath.Join(t.TempDir(), "prompt.md")
	if err := os.WriteFile(prompt, []byte("Extract.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	viper.Set("llm.prompt_file", prompt)
	viper.Set("llm.max_content_size", "2KB")

	cfg, err := llmConfig()
	if err != nil {
		t.Fatalf("llmConfig() error = %v", err)
	}
	if cfg.Prompt != "Extract." || cfg.MaxContentSize != 2000 || cfg.MaxTokens != 4096 {
		t.Errorf("cfg = %+v", cfg)
	}

	viper.Set("llm.max_content_size", "lots")
	if _, err := llmConfig(); err == nil {
		t.Error("expected error for invalid size")
	}

	viper.Set("llm.prompt_file", filepath.Join(t.TempDir(), "missing.md"))
	if _, err := llmConfig(); err == nil {
		t.Error("expected error for missing prompt")
	}
}

func TestBuildExtractor_UnknownProvider(t *testing.T) {
	resetConfig(t)
	prompt := filepath.Join(t.TempDir(), "prompt.md")
	_ = os.WriteFile(prompt, []byte("Extract."), 0o644)
	viper.Set("llm.prompt_file", prompt)
	viper.Set("llm.provider", "nope")

	if _, err := buildExtractor(); err == nil || !strings.Contains(err.Error(), "available") {
		t.Errorf("buildExtractor() error = %v", err)
	}
}

func TestBuildMediaStore(t *testing.T) {
	resetConfig(t)
	ctx := t.Context()

	ms, err := buildMediaStore(ctx)
	if err != nil || ms.Name() != "fs" {
		t.Fatalf("default backend = %v, %v", ms, err)
	}

	viper.Set("media.backend", "s3")
	if _, err := buildMediaStore(ctx); err == nil {
		t.Error("s3 without a bucket should fail")
	}

	viper.Set("media.backend", "ftp")
	if _, err := buildMediaStore(ctx); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestBuildIngester_BadPolicy(t *testing.T) {
	resetConfig(t)
	st, err := store.Open(filepath.Join(t.TempDir(), "qbank.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()

	viper.Set("ingest.batch_policy", "fanout")
	if _, err := buildIngester(t.Context(), st); err == nil {
		t.Error("expected error for unknown batch policy")
	}
}

func TestQuestionSummary_Row(t *testing.T) {
	parent := int64(3)
	stem := "<p>Which?</p>"
	s := newQuestionSummary(store.Question{
		ID: 7, SourceName: "MKSAP_19", Key: "12", ParentID: &parent,
		StemHTML: &stem, RawHTML: strings.Repeat("x", 2048), CreatedAt: time.Now(),
	})

	row := s.Row()
	if len(row) != len(s.Header()) {
		t.Fatalf("row has %d cells, header %d", len(row), len(s.Header()))
	}
	if row[0] != "7" || row[3] != "3" || row[4] != "yes" || row[5] != "no" || row[6] != "2.0 kB" {
		t.Errorf("row = %v", row)
	}

	root := newQuestionSummary(store.Question{ID: 1})
	if root.Row()[3] != "-" {
		t.Errorf("root parent cell = %q", root.Row()[3])
	}
}

func TestQuestionDetail_Sections(t *testing.T) {
	stem := "<p>Which drug?</p>"
	pct := 40.0
	d := questionDetail{
		Question: &store.Question{ID: 2, SourceName: "ACEP_PEER", Key: "9", StemHTML: &stem},
		Media:    []store.Media{{RelativePath: "ACEP_PEER/9_img0.png", MimeType: "image/png"}},
		Parsed: &source.Question{
			Kind:         source.KindACEP,
			QuestionHTML: "<p>q</p>",
			Answers: []source.Answer{
				{Text: "a < b", IsCorrect: true, PeerPercentage: &pct, Letter: "A"},
			},
			ExplanationHTML: "<p>e</p>",
		},
	}

	if d.Title() != "ACEP_PEER/9 (#2)" {
		t.Errorf("Title() = %q", d.Title())
	}

	var titles []string
	var answers string
	for _, s := range d.Sections() {
		titles = append(titles, s.Title)
		if s.Title == "Answers" {
			answers = s.HTML
		}
	}
	want := []string{"Record", "Stem", "Question (acep)", "Answers", "Explanation"}
	if !reflect.DeepEqual(titles, want) {
		t.Errorf("sections = %v, want %v", titles, want)
	}
	if !strings.Contains(answers, "A. a &lt; b <b>(correct)</b> [40%]") {
		t.Errorf("answers = %q", answers)
	}
}

func TestParseID(t *testing.T) {
	for _, in := range []string{"0", "-1", "abc", ""} {
		if _, err := parseID(in); err == nil {
			t.Errorf("parseID(%q) should fail", in)
		}
	}
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
}

func TestSiblingURL(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "20250101_120000_ACEP_PEER_1.html")
	if got := siblingURL(htmlPath); got != "" {
		t.Errorf("siblingURL without sibling = %q", got)
	}

	jsonPath := strings.TrimSuffix(htmlPath, ".html") + ".json"
	_ = os.WriteFile(jsonPath, []byte(`{"url":"https://example.org/q/1"}`), 0o644)
	if got := siblingURL(htmlPath); got != "https://example.org/q/1" {
		t.Errorf("siblingURL = %q", got)
	}
}
