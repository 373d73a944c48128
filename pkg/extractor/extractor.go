// Package extractor turns raw question page HTML into the minimal
// context/stem schema, either from a model response or from JSON supplied by
// the caller.
package extractor

import (
	"context"
)

// Extractor extracts a batch of minimal questions from page HTML.
type Extractor interface {
	// Extract performs extraction on the raw HTML of one page.
	Extract(ctx context.Context, rawHTML string) (Batch, error)

	// Name returns the extractor identifier.
	Name() string
}
