package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jmylchreest/qbank/internal/grouping"
	"github.com/jmylchreest/qbank/internal/ingest"
	"github.com/jmylchreest/qbank/internal/logger"
	"github.com/jmylchreest/qbank/internal/store"
	"github.com/jmylchreest/qbank/pkg/extractor"
	"github.com/jmylchreest/qbank/pkg/llm"
)

// ProviderConfig holds per-provider overrides from the config file, under
// llm.providers.<name>.
type ProviderConfig struct {
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// initLogging configures the process logger. When log.persist is set and a
// store is given, records are also written to its logs table; the returned
// func flushes them.
func initLogging(st *store.Store) func() {
	opts := logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("log.json"),
	}

	closeFn := func() {}
	if st != nil && viper.GetBool("log.persist") {
		level := slog.LevelInfo
		if opts.Debug {
			level = slog.LevelDebug
		}
		h := st.NewLogHandler("qbank", level)
		opts.Handlers = append(opts.Handlers, h)
		closeFn = func() { _ = h.Close() }
	}

	logger.Init(opts)
	return closeFn
}

func openStore() (*store.Store, error) {
	path := viper.GetString("database")
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	logger.Debug("database opened", "path", path)
	return st, nil
}

// providerChain returns the configured provider first, then llm.fallback,
// without duplicates.
func providerChain() []string {
	seen := make(map[string]bool)
	var chain []string
	for _, name := range append([]string{viper.GetString("llm.provider")}, viper.GetStringSlice("llm.fallback")...) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		chain = append(chain, name)
	}
	return chain
}

// providerConfig merges the global llm.* settings with llm.providers.<name>.
func providerConfig(name string) llm.ProviderConfig {
	cfg := llm.DefaultProviderConfig()
	cfg.APIKey = viper.GetString("llm.api_key")
	cfg.BaseURL = viper.GetString("llm.endpoint")
	cfg.Model = viper.GetString("llm.model")
	cfg.MaxRetries = 0
	if t := viper.GetDuration("llm.timeout"); t > 0 {
		cfg.Timeout = t
	}

	var pc ProviderConfig
	if err := viper.UnmarshalKey("llm.providers."+name, &pc); err == nil {
		if pc.Model != "" {
			cfg.Model = pc.Model
		}
		if pc.Endpoint != "" {
			cfg.BaseURL = pc.Endpoint
		}
		if pc.APIKey != "" {
			cfg.APIKey = pc.APIKey
		}
	}
	return cfg
}

func llmConfig() (extractor.LLMConfig, error) {
	cfg := extractor.DefaultLLMConfig()

	prompt, err := extractor.LoadPrompt(viper.GetString("llm.prompt_file"))
	if err != nil {
		return cfg, err
	}
	cfg.Prompt = prompt
	cfg.Temperature = viper.GetFloat64("llm.temperature")
	if n := viper.GetInt("llm.max_tokens"); n > 0 {
		cfg.MaxTokens = n
	}
	if t := viper.GetDuration("llm.timeout"); t > 0 {
		cfg.Timeout = t
	}

	// 0 or empty means unlimited
	if s := strings.TrimSpace(viper.GetString("llm.max_content_size")); s != "" && s != "0" {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return cfg, fmt.Errorf("invalid llm.max_content_size %q: %w", s, err)
		}
		cfg.MaxContentSize = int(n)
	}
	return cfg, nil
}

// buildExtractor creates the extraction chain. Every provider shares one
// rate limit setting but gets its own limiter.
func buildExtractor() (extractor.Extractor, error) {
	cfg, err := llmConfig()
	if err != nil {
		return nil, err
	}

	perMinute := viper.GetInt("llm.requests_per_minute")
	var extractors []extractor.Extractor
	for _, name := range providerChain() {
		p, err := llm.NewProvider(name, providerConfig(name))
		if err != nil {
			logger.Warn("skipping LLM provider", "provider", name, "error", err)
			continue
		}
		ext, err := extractor.NewLLM(llm.NewLimited(p, perMinute), cfg)
		if err != nil {
			return nil, err
		}
		extractors = append(extractors, ext)
		logger.Debug("added extractor to chain", "provider", name, "model", p.Model())
	}

	switch len(extractors) {
	case 0:
		return nil, fmt.Errorf("no LLM provider could be configured (available: %s)", strings.Join(llm.AvailableProviders(), ", "))
	case 1:
		return extractors[0], nil
	}
	return extractor.NewFallback(extractors...), nil
}

func buildMediaStore(ctx context.Context) (ingest.MediaStore, error) {
	switch backend := viper.GetString("media.backend"); backend {
	case "", "fs":
		return ingest.NewFSStore(viper.GetString("media_root")), nil
	case "s3":
		s3Store, err := ingest.NewS3Store(ctx, ingest.S3Config{
			Bucket:       viper.GetString("media.bucket"),
			Prefix:       viper.GetString("media.prefix"),
			Region:       viper.GetString("media.region"),
			Endpoint:     viper.GetString("media.endpoint"),
			UsePathStyle: viper.GetBool("media.path_style"),
		})
		if err != nil {
			return nil, err
		}
		return s3Store, nil
	default:
		return nil, fmt.Errorf("unknown media backend: %s (use 'fs' or 's3')", backend)
	}
}

// buildIngester assembles an Ingester from configuration.
func buildIngester(ctx context.Context, st *store.Store) (*ingest.Ingester, error) {
	policy, err := ingest.ParseBatchPolicy(viper.GetString("ingest.batch_policy"))
	if err != nil {
		return nil, err
	}

	media, err := buildMediaStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := ingest.Options{
		Media:       media,
		BatchPolicy: policy,
		ParseLegacy: viper.GetBool("ingest.parse_legacy"),
		Update:      viper.GetBool("ingest.update"),
	}

	if viper.GetBool("grouping.enabled") {
		opts.Grouping = grouping.New(viper.GetDuration("grouping.window"))
	}

	if viper.GetBool("llm.enabled") {
		ext, err := buildExtractor()
		if err != nil {
			return nil, err
		}
		opts.Extractor = ext
		logger.Info("LLM extraction enabled", "extractor", ext.Name())
	}

	logger.Debug("ingester configured",
		"media", media.Name(), "batch_policy", policy, "parse_legacy", opts.ParseLegacy,
		"update", opts.Update, "grouping", opts.Grouping != nil)
	return ingest.New(st, opts), nil
}
