package grouping

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmylchreest/qbank/internal/store"
)

var t0 = time.Date(2025, 11, 16, 15, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "qbank.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// add inserts a question at the given offset from t0 and runs the engine on it.
func add(t *testing.T, s *store.Store, e *Engine, source, key string, offset time.Duration) *store.Question {
	t.Helper()
	ctx := context.Background()

	src, err := s.GetOrCreateSource(ctx, source)
	if err != nil {
		t.Fatalf("GetOrCreateSource() error = %v", err)
	}
	q, err := s.InsertQuestion(ctx, store.NewQuestion{
		SourceID:        src.ID,
		Key:             key,
		RawHTML:         "<html></html>",
		RawMetadataJSON: "{}",
		CreatedAt:       t0.Add(offset),
	})
	if err != nil {
		t.Fatalf("InsertQuestion() error = %v", err)
	}
	if _, err := e.Assign(ctx, s, q); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	return q
}

func parentOf(t *testing.T, s *store.Store, id int64) *int64 {
	t.Helper()
	q, err := s.QuestionByID(context.Background(), id)
	if err != nil {
		t.Fatalf("QuestionByID() error = %v", err)
	}
	return q.ParentID
}

func TestAssign_GroupsWithinWindow(t *testing.T) {
	s := openStore(t)
	e := New(0)

	q1 := add(t, s, e, "MKSAP", "q1", 0)
	q2 := add(t, s, e, "MKSAP", "q2", 2*time.Minute)
	q3 := add(t, s, e, "MKSAP", "q3", 3*time.Minute)

	if p := parentOf(t, s, q1.ID); p != nil {
		t.Errorf("q1 parent = %d, want root", *p)
	}
	for _, q := range []*store.Question{q2, q3} {
		p := parentOf(t, s, q.ID)
		if p == nil || *p != q1.ID {
			t.Errorf("%s parent = %v, want %d", q.Key, p, q1.ID)
		}
	}
}

func TestAssign_OutsideWindow(t *testing.T) {
	s := openStore(t)
	e := New(0)

	add(t, s, e, "MKSAP", "q1", 0)
	q2 := add(t, s, e, "MKSAP", "q2", 6*time.Minute)

	if p := parentOf(t, s, q2.ID); p != nil {
		t.Errorf("parent = %d, want root", *p)
	}
}

func TestAssign_DifferentSources(t *testing.T) {
	s := openStore(t)
	e := New(0)

	add(t, s, e, "MKSAP", "q1", 0)
	q2 := add(t, s, e, "PeerPrep", "q2", time.Minute)
	q3 := add(t, s, e, "PeerPrep", "q3", 0)

	for _, q := range []*store.Question{q2, q3} {
		if p := parentOf(t, s, q.ID); p != nil {
			t.Errorf("%s parent = %d, want root", q.Key, *p)
		}
	}
}

func TestAssign_SameTimestampIsNotAParent(t *testing.T) {
	s := openStore(t)
	e := New(0)

	add(t, s, e, "MKSAP", "q1", 0)
	q2 := add(t, s, e, "MKSAP", "q2", 0)

	if p := parentOf(t, s, q2.ID); p != nil {
		t.Errorf("parent = %d, want root", *p)
	}
}

func TestAssign_WindowBoundary(t *testing.T) {
	s := openStore(t)
	e := New(0)

	q1 := add(t, s, e, "MKSAP", "q1", 0)
	q2 := add(t, s, e, "MKSAP", "q2", DefaultWindow)

	p := parentOf(t, s, q2.ID)
	if p == nil || *p != q1.ID {
		t.Errorf("parent = %v, want %d", p, q1.ID)
	}
}

func TestAssign_EarliestCandidateWins(t *testing.T) {
	s := openStore(t)
	e := New(0)
	ctx := context.Background()

	// Two roots in the window, inserted without grouping.
	src, _ := s.GetOrCreateSource(ctx, "ACEP")
	var ids []int64
	for i, off := range []time.Duration{-4 * time.Minute, -time.Minute} {
		q, err := s.InsertQuestion(ctx, store.NewQuestion{
			SourceID: src.ID, Key: string(rune('a' + i)), RawHTML: "x", RawMetadataJSON: "{}",
			CreatedAt: t0.Add(off),
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, q.ID)
	}

	q := add(t, s, e, "ACEP", "c", 0)
	p := parentOf(t, s, q.ID)
	if p == nil || *p != ids[0] {
		t.Errorf("parent = %v, want %d", p, ids[0])
	}
}

func TestAssign_AlreadyParented(t *testing.T) {
	parent := int64(7)
	q := &store.Question{ID: 1, ParentID: &parent}

	got, err := New(0).Assign(context.Background(), failingQueries{}, q)
	if err != nil || got != 0 {
		t.Errorf("Assign() = %d, %v; want 0, nil", got, err)
	}
}

func TestAssign_CustomWindow(t *testing.T) {
	s := openStore(t)
	e := New(time.Minute)

	add(t, s, e, "MKSAP", "q1", 0)
	q2 := add(t, s, e, "MKSAP", "q2", 2*time.Minute)

	if p := parentOf(t, s, q2.ID); p != nil {
		t.Errorf("parent = %d, want root", *p)
	}
}

func TestAssign_QueryError(t *testing.T) {
	_, err := New(0).Assign(context.Background(), failingQueries{}, &store.Question{ID: 1, Key: "k"})
	if !errors.Is(err, errBoom) {
		t.Errorf("Assign() error = %v, want errBoom", err)
	}
}

var errBoom = errors.New("boom")

type failingQueries struct{}

func (failingQueries) GroupCandidates(context.Context, int64, time.Time, time.Time, int64) ([]store.Question, error) {
	return nil, errBoom
}

func (failingQueries) SetParent(context.Context, int64, int64) error { return errBoom }
