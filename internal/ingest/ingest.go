// Package ingest imports captured extraction file pairs into the store.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/jmylchreest/qbank/internal/grouping"
	"github.com/jmylchreest/qbank/internal/logger"
	"github.com/jmylchreest/qbank/internal/store"
	"github.com/jmylchreest/qbank/pkg/extractor"
	"github.com/jmylchreest/qbank/pkg/source"
)

var (
	// ErrUnrecognizedName is returned for files whose name does not carry a
	// source and key.
	ErrUnrecognizedName = errors.New("unrecognized extraction filename")

	// ErrMissingSibling is returned when a metadata file has no HTML file
	// next to it.
	ErrMissingSibling = errors.New("html file not found")

	// ErrMalformedMetadata is returned when the metadata file is not JSON.
	ErrMalformedMetadata = errors.New("malformed metadata")

	errMultipleEntries = errors.New("batch has more than one question")
)

// BatchPolicy decides what happens when an extraction yields several
// questions for one file.
type BatchPolicy string

const (
	// BatchFirst keeps the first question and discards the rest.
	BatchFirst BatchPolicy = "first"
	// BatchStrict leaves the clean-slate fields empty.
	BatchStrict BatchPolicy = "strict"
)

// ParseBatchPolicy validates a policy name. Empty means BatchFirst.
func ParseBatchPolicy(s string) (BatchPolicy, error) {
	switch BatchPolicy(s) {
	case "", BatchFirst:
		return BatchFirst, nil
	case BatchStrict:
		return BatchStrict, nil
	}
	return "", fmt.Errorf("unknown batch policy %q (want first or strict)", s)
}

// Options configures an Ingester.
type Options struct {
	// Extractor fills the clean-slate fields. Nil leaves them empty unless
	// the caller supplies a batch.
	Extractor extractor.Extractor

	// Grouping assigns parents to new questions. Nil disables grouping.
	Grouping *grouping.Engine

	// Media receives copies of sibling images. Nil skips media.
	Media MediaStore

	BatchPolicy BatchPolicy

	// ParseLegacy also stores the per-source parser output.
	ParseLegacy bool

	// Update refreshes questions that already exist instead of skipping them.
	Update bool
}

// Outcome classifies the result of ingesting one file.
type Outcome string

const (
	OutcomeAdded    Outcome = "added"
	OutcomeUpdated  Outcome = "updated"
	OutcomeExisting Outcome = "existing"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Result describes one ingested file.
type Result struct {
	Path       string
	Identity   Identity
	Outcome    Outcome
	QuestionID int64
	ParentID   int64
	Media      int
	Bytes      int64
	// LLMFailed is set when extraction was attempted and its result dropped.
	LLMFailed bool
}

// Ingester imports extractions. It is safe for concurrent use; concurrent
// calls for the same source and key are collapsed into one.
type Ingester struct {
	store *store.Store
	opts  Options
	group singleflight.Group
}

// New returns an Ingester writing to s.
func New(s *store.Store, opts Options) *Ingester {
	if opts.BatchPolicy == "" {
		opts.BatchPolicy = BatchFirst
	}
	return &Ingester{store: s, opts: opts}
}

// IngestFile imports the extraction whose metadata file is jsonPath.
func (in *Ingester) IngestFile(ctx context.Context, jsonPath string) (*Result, error) {
	return in.ingest(ctx, jsonPath, nil)
}

// IngestWithBatch imports an extraction using a caller-supplied batch for the
// clean-slate fields instead of running the extractor.
func (in *Ingester) IngestWithBatch(ctx context.Context, jsonPath string, batch extractor.Batch) (*Result, error) {
	return in.ingest(ctx, jsonPath, &batch)
}

func (in *Ingester) ingest(ctx context.Context, jsonPath string, supplied *extractor.Batch) (*Result, error) {
	res := &Result{Path: jsonPath, Outcome: OutcomeSkipped}

	id, ok := ParseFilename(jsonPath)
	if !ok {
		return res, fmt.Errorf("%s: %w", filepath.Base(jsonPath), ErrUnrecognizedName)
	}
	res.Identity = id

	base := baseName(jsonPath)
	htmlPath := filepath.Join(filepath.Dir(jsonPath), base+".html")
	if _, err := os.Stat(htmlPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, fmt.Errorf("%s: %w", filepath.Base(jsonPath), ErrMissingSibling)
		}
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("checking %s: %w", htmlPath, err)
	}

	v, err, _ := in.group.Do(id.Source+"\x00"+id.Key, func() (any, error) {
		r, err := in.ingestPair(ctx, id, jsonPath, htmlPath, base, supplied)
		if r != nil {
			r.Path = jsonPath
		}
		return r, err
	})
	r, _ := v.(*Result)
	if r == nil {
		res.Outcome = OutcomeFailed
		return res, err
	}
	return r, err
}

func (in *Ingester) ingestPair(ctx context.Context, id Identity, jsonPath, htmlPath, base string, supplied *extractor.Batch) (*Result, error) {
	res := &Result{Identity: id, Outcome: OutcomeFailed}

	existing, err := in.lookup(ctx, id)
	if err != nil {
		return res, err
	}
	if existing != nil && !in.opts.Update {
		logger.Info("question already exists", "source", id.Source, "key", id.Key, "id", existing.ID)
		res.Outcome = OutcomeExisting
		res.QuestionID = existing.ID
		return res, nil
	}

	metadata, err := readMetadata(jsonPath)
	if err != nil {
		return res, err
	}
	rawHTML, err := os.ReadFile(htmlPath)
	if err != nil {
		return res, fmt.Errorf("reading %s: %w", htmlPath, err)
	}
	res.Bytes = int64(len(rawHTML))

	nq := store.NewQuestion{
		Key:             id.Key,
		RawHTML:         string(rawHTML),
		RawMetadataJSON: metadata,
		ExtractionPath:  filepath.Join(filepath.Dir(jsonPath), base),
		CreatedAt:       id.CapturedAt,
	}
	nq.Minimal, res.LLMFailed = in.cleanSlate(ctx, id, nq.RawHTML, supplied)
	if in.opts.ParseLegacy {
		nq.Parsed = legacyParse(nq.RawHTML, metadata)
	}

	var media []string
	if in.opts.Media != nil && existing == nil {
		if media, err = FindMedia(filepath.Dir(jsonPath), base); err != nil {
			return res, err
		}
	}

	var copied []string
	err = in.store.InTx(ctx, func(tx *store.Tx) error {
		src, err := tx.GetOrCreateSource(ctx, id.Source)
		if err != nil {
			return err
		}
		nq.SourceID = src.ID

		if existing != nil {
			q, _, err := tx.UpsertQuestion(ctx, nq)
			if err != nil {
				return err
			}
			res.Outcome = OutcomeUpdated
			res.QuestionID = q.ID
			return nil
		}

		q, err := tx.InsertQuestion(ctx, nq)
		if errors.Is(err, store.ErrDuplicate) {
			// Another writer inserted the key after the lookup.
			res.Outcome = OutcomeExisting
			return nil
		}
		if err != nil {
			return err
		}
		res.QuestionID = q.ID

		for idx, file := range media {
			rel := MediaPath(id.Source, id.Key, idx, filepath.Ext(file))
			mime := MimeType(file)
			copied = append(copied, rel)
			if err := in.opts.Media.Put(ctx, rel, file, mime); err != nil {
				return err
			}
			m, err := tx.AddMedia(ctx, store.Media{
				QuestionID:   q.ID,
				Role:         store.MediaRoleImage,
				Type:         store.MediaTypeQuestionImage,
				MimeType:     mime,
				RelativePath: rel,
			})
			if err != nil {
				return err
			}
			logger.Debug("added media", "path", rel, "id", m.ID, "backend", in.opts.Media.Name())
		}
		res.Media = len(media)

		if in.opts.Grouping != nil {
			parent, err := in.opts.Grouping.Assign(ctx, tx, q)
			if err != nil {
				return err
			}
			res.ParentID = parent
		}

		res.Outcome = OutcomeAdded
		return nil
	})
	if err != nil {
		in.removeMedia(ctx, copied)
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("ingesting %s: %w", id, err)
	}

	switch res.Outcome {
	case OutcomeAdded:
		logger.Info("added question", "source", id.Source, "key", id.Key, "id", res.QuestionID,
			"size", humanize.Bytes(uint64(res.Bytes)), "media", res.Media, "parent", res.ParentID)
	case OutcomeUpdated:
		logger.Info("updated question", "source", id.Source, "key", id.Key, "id", res.QuestionID)
	case OutcomeExisting:
		logger.Info("question already exists", "source", id.Source, "key", id.Key)
	}
	return res, nil
}

// removeMedia deletes media copied by a rolled back transaction.
func (in *Ingester) removeMedia(ctx context.Context, rels []string) {
	ctx = context.WithoutCancel(ctx)
	for _, rel := range rels {
		if err := in.opts.Media.Remove(ctx, rel); err != nil {
			logger.Warn("failed to remove orphaned media", "path", rel, "backend", in.opts.Media.Name(), "error", err)
		}
	}
}

// lookup returns the stored question for id, or nil.
func (in *Ingester) lookup(ctx context.Context, id Identity) (*store.Question, error) {
	src, err := in.store.SourceByName(ctx, id.Source)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q, err := in.store.QuestionByKey(ctx, src.ID, id.Key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return q, err
}

// cleanSlate picks the context and stem for a new question. A supplied batch
// wins over the extractor. Extraction failures are logged and leave the
// fields empty.
func (in *Ingester) cleanSlate(ctx context.Context, id Identity, rawHTML string, supplied *extractor.Batch) (*store.Minimal, bool) {
	if supplied != nil {
		m, err := in.pick(*supplied)
		if err != nil {
			logger.Warn("ignoring supplied batch", "source", id.Source, "key", id.Key, "error", err)
		}
		return m, false
	}
	if in.opts.Extractor == nil {
		return nil, false
	}

	batch, err := in.opts.Extractor.Extract(ctx, rawHTML)
	if err != nil {
		logger.Warn("extraction failed, leaving clean-slate fields empty",
			"source", id.Source, "key", id.Key, "extractor", in.opts.Extractor.Name(), "error", err)
		return nil, true
	}
	m, err := in.pick(batch)
	if err != nil {
		logger.Warn("extraction rejected", "source", id.Source, "key", id.Key, "error", err)
		return nil, true
	}
	return m, false
}

// pick applies the batch policy.
func (in *Ingester) pick(batch extractor.Batch) (*store.Minimal, error) {
	first, ok := batch.First()
	if !ok {
		return nil, nil
	}
	if n := len(batch.Questions); n > 1 {
		if in.opts.BatchPolicy == BatchStrict {
			return nil, fmt.Errorf("%w: got %d", errMultipleEntries, n)
		}
		logger.Warn("discarding extra questions in batch", "discarded", n-1)
	}
	return &store.Minimal{ContextHTML: first.ContextHTML, StemHTML: first.StemHTML}, nil
}

// readMetadata returns the metadata file compacted to a single line.
func readMetadata(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return "", fmt.Errorf("%s: %w: %v", filepath.Base(path), ErrMalformedMetadata, err)
	}
	return buf.String(), nil
}

func legacyParse(rawHTML, metadata string) *store.Parsed {
	var meta map[string]any
	_ = json.Unmarshal([]byte(metadata), &meta)

	q, err := source.ParseWithMetadata(rawHTML, meta)
	if err != nil {
		logger.Warn("legacy parse failed", "error", err)
		return nil
	}
	answers, err := json.Marshal(q.Answers)
	if err != nil {
		logger.Warn("encoding parsed answers failed", "error", err)
		return nil
	}
	return &store.Parsed{
		QuestionHTML:    q.QuestionHTML,
		AnswersJSON:     string(answers),
		ExplanationHTML: q.ExplanationHTML,
	}
}

// Report counts the outcomes of a directory run.
type Report struct {
	Found     int
	Added     int
	Updated   int
	Existing  int
	Skipped   int
	Failed    int
	LLMFailed int
	Bytes     int64
}

// Add records one file result.
func (r *Report) Add(res *Result) {
	switch res.Outcome {
	case OutcomeAdded:
		r.Added++
		r.Bytes += res.Bytes
	case OutcomeUpdated:
		r.Updated++
		r.Bytes += res.Bytes
	case OutcomeExisting:
		r.Existing++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
	if res.LLMFailed {
		r.LLMFailed++
	}
}

func (r Report) String() string {
	return fmt.Sprintf("%d found, %d added, %d updated, %d existing, %d skipped, %d failed, %d llm-failed (%s ingested)",
		r.Found, r.Added, r.Updated, r.Existing, r.Skipped, r.Failed, r.LLMFailed, humanize.Bytes(uint64(r.Bytes)))
}

// IngestDir imports every *.json extraction in dir in name order. Per-file
// problems are logged and counted; each file commits on its own. The error
// is non-nil only when the directory cannot be listed or ctx is done.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (Report, error) {
	var report Report

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return report, fmt.Errorf("extractions directory not found: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(globEscape(dir), "*.json"))
	if err != nil {
		return report, fmt.Errorf("listing %s: %w", dir, err)
	}
	sort.Strings(files)
	report.Found = len(files)
	logger.Info("found extraction files", "dir", dir, "count", len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res, err := in.IngestFile(ctx, file)
		report.Add(res)
		if err == nil {
			continue
		}
		switch res.Outcome {
		case OutcomeSkipped:
			logger.Warn("skipping file", "file", filepath.Base(file), "error", err)
		default:
			logger.Error("failed to ingest file", "file", filepath.Base(file), "error", err)
		}
	}

	logger.Info("ingestion complete",
		"found", report.Found, "added", report.Added, "updated", report.Updated,
		"existing", report.Existing, "skipped", report.Skipped, "failed", report.Failed,
		"llm_failed", report.LLMFailed)
	return report, nil
}
