package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoExtractorAvailable is returned by an empty fallback chain.
var ErrNoExtractorAvailable = errors.New("no extractor available")

// FallbackExtractor tries each extractor in order until one succeeds.
// Only transport failures move on to the next extractor; a model that
// answered with bad JSON is a result, not an outage.
type FallbackExtractor struct {
	extractors []Extractor
}

// NewFallback creates a fallback chain from the given extractors.
func NewFallback(extractors ...Extractor) *FallbackExtractor {
	return &FallbackExtractor{extractors: extractors}
}

// Extract tries each extractor in order until one answers.
func (f *FallbackExtractor) Extract(ctx context.Context, rawHTML string) (Batch, error) {
	if len(f.extractors) == 0 {
		return Batch{}, ErrNoExtractorAvailable
	}

	var lastErr error
	var tried []string
	for _, ext := range f.extractors {
		tried = append(tried, ext.Name())
		batch, err := ext.Extract(ctx, rawHTML)
		if err == nil {
			return batch, nil
		}
		var te *TransportError
		if !errors.As(err, &te) || ctx.Err() != nil {
			return Batch{}, err
		}
		lastErr = err
	}

	return Batch{}, fmt.Errorf("all extractors failed (tried: %s): %w", strings.Join(tried, ", "), lastErr)
}

// Name returns the fallback chain name.
func (f *FallbackExtractor) Name() string {
	names := make([]string, 0, len(f.extractors))
	for _, ext := range f.extractors {
		names = append(names, ext.Name())
	}
	return "fallback(" + strings.Join(names, "->") + ")"
}

var _ Extractor = (*FallbackExtractor)(nil)
