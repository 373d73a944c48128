// Package grouping links closely timed questions of one source into a
// parent with child parts.
package grouping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/qbank/internal/store"
)

// DefaultWindow is how far back a new question looks for its parent.
const DefaultWindow = 5 * time.Minute

// Queries is the part of the store the engine needs. Both *store.Store and
// *store.Tx satisfy it.
type Queries interface {
	GroupCandidates(ctx context.Context, sourceID int64, from, to time.Time, excludeID int64) ([]store.Question, error)
	SetParent(ctx context.Context, id, parentID int64) error
}

// Engine assigns parents to freshly created questions.
type Engine struct {
	Window time.Duration
}

// New returns an engine using window, or DefaultWindow when window <= 0.
func New(window time.Duration) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{Window: window}
}

// Assign attaches q to the earliest parentless question of the same source
// created in [q.CreatedAt-Window, q.CreatedAt). It returns the parent id, or
// 0 when q stays a root. Questions that already have a parent are left alone.
func (e *Engine) Assign(ctx context.Context, qs Queries, q *store.Question) (int64, error) {
	if q.ParentID != nil {
		return 0, nil
	}

	window := e.Window
	if window <= 0 {
		window = DefaultWindow
	}

	candidates, err := qs.GroupCandidates(ctx, q.SourceID, q.CreatedAt.Add(-window), q.CreatedAt, q.ID)
	if err != nil {
		return 0, fmt.Errorf("finding group candidates for %s: %w", q.Key, err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	parent := candidates[0]
	if err := qs.SetParent(ctx, q.ID, parent.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// q gained children or a parent between the lookup and the update.
			return 0, nil
		}
		return 0, fmt.Errorf("grouping %s under %d: %w", q.Key, parent.ID, err)
	}

	id := parent.ID
	q.ParentID = &id
	return id, nil
}
