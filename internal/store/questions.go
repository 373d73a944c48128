package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const questionColumns = `q.question_id, q.source_id, s.name, q.source_question_key, q.raw_html,
	q.raw_metadata_json, q.status, q.extraction_path, q.question_context_html, q.question_stem_html,
	q.is_parsed, q.cleaned_question_html, q.cleaned_answers_json, q.cleaned_explanation_html,
	q.parent_id, q.created_at, q.updated_at`

const questionFrom = ` FROM questions q JOIN sources s ON s.source_id = q.source_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*Question, error) {
	var (
		qn                    Question
		extractionPath        sql.NullString
		contextHTML, stemHTML sql.NullString
		cleanedQ, cleanedA    sql.NullString
		cleanedE              sql.NullString
		parentID              sql.NullInt64
		createdAt, updatedAt  string
	)
	err := row.Scan(&qn.ID, &qn.SourceID, &qn.SourceName, &qn.Key, &qn.RawHTML,
		&qn.RawMetadataJSON, &qn.Status, &extractionPath, &contextHTML, &stemHTML,
		&qn.IsParsed, &cleanedQ, &cleanedA, &cleanedE,
		&parentID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	qn.ExtractionPath = extractionPath.String
	qn.ContextHTML = nullString(contextHTML)
	qn.StemHTML = nullString(stemHTML)
	qn.CleanedQuestionHTML = nullString(cleanedQ)
	qn.CleanedAnswersJSON = nullString(cleanedA)
	qn.CleanedExplanationHTML = nullString(cleanedE)
	if parentID.Valid {
		id := parentID.Int64
		qn.ParentID = &id
	}
	if qn.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if qn.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &qn, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// columns flattens the optional parts of nq into column values.
func (nq NewQuestion) columns() (contextHTML, stemHTML, cleanedQ, cleanedA, cleanedE *string, parsed bool) {
	if nq.Minimal != nil {
		contextHTML, stemHTML = &nq.Minimal.ContextHTML, &nq.Minimal.StemHTML
	}
	if nq.Parsed != nil {
		cleanedQ, cleanedA, cleanedE = &nq.Parsed.QuestionHTML, &nq.Parsed.AnswersJSON, &nq.Parsed.ExplanationHTML
		parsed = true
	}
	return
}

// InsertQuestion stores a new question. If the (source, key) pair exists it
// returns ErrDuplicate and leaves the stored row untouched.
func (q Queries) InsertQuestion(ctx context.Context, nq NewQuestion) (*Question, error) {
	now := q.now()
	createdAt := nq.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	contextHTML, stemHTML, cleanedQ, cleanedA, cleanedE, parsed := nq.columns()

	res, err := q.q.ExecContext(ctx, `
		INSERT INTO questions (
			source_id, source_question_key, raw_html, raw_metadata_json, status, extraction_path,
			question_context_html, question_stem_html,
			is_parsed, cleaned_question_html, cleaned_answers_json, cleaned_explanation_html,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, source_question_key) DO NOTHING`,
		nq.SourceID, nq.Key, nq.RawHTML, nq.RawMetadataJSON, StatusExtracted, nq.ExtractionPath,
		nullable(contextHTML), nullable(stemHTML),
		parsed, nullable(cleanedQ), nullable(cleanedA), nullable(cleanedE),
		formatTime(createdAt), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("inserting question %s: %w", nq.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("inserting question %s: %w", nq.Key, err)
	}
	if n == 0 {
		return nil, ErrDuplicate
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("inserting question %s: %w", nq.Key, err)
	}
	return q.QuestionByID(ctx, id)
}

// UpsertQuestion inserts a question or refreshes the stored content of an
// existing one. Identity, created_at and the parent link of an existing row
// are kept. It reports whether a new row was created.
func (q Queries) UpsertQuestion(ctx context.Context, nq NewQuestion) (*Question, bool, error) {
	inserted, err := q.InsertQuestion(ctx, nq)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return nil, false, err
	}

	contextHTML, stemHTML, cleanedQ, cleanedA, cleanedE, parsed := nq.columns()
	_, err = q.q.ExecContext(ctx, `
		UPDATE questions SET
			raw_html = ?, raw_metadata_json = ?, extraction_path = ?,
			question_context_html = ?, question_stem_html = ?,
			is_parsed = ?, cleaned_question_html = ?, cleaned_answers_json = ?, cleaned_explanation_html = ?,
			updated_at = ?
		WHERE source_id = ? AND source_question_key = ?`,
		nq.RawHTML, nq.RawMetadataJSON, nq.ExtractionPath,
		nullable(contextHTML), nullable(stemHTML),
		parsed, nullable(cleanedQ), nullable(cleanedA), nullable(cleanedE),
		formatTime(q.now()),
		nq.SourceID, nq.Key)
	if err != nil {
		return nil, false, fmt.Errorf("updating question %s: %w", nq.Key, err)
	}

	updated, err := q.QuestionByKey(ctx, nq.SourceID, nq.Key)
	return updated, false, err
}

// QuestionByID returns the question with the given id.
func (q Queries) QuestionByID(ctx context.Context, id int64) (*Question, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+questionColumns+questionFrom+` WHERE q.question_id = ?`, id)
	qn, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting question %d: %w", id, err)
	}
	return qn, nil
}

// QuestionByKey returns the question identified by its natural key.
func (q Queries) QuestionByKey(ctx context.Context, sourceID int64, key string) (*Question, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+questionColumns+questionFrom+` WHERE q.source_id = ? AND q.source_question_key = ?`,
		sourceID, key)
	qn, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting question %s: %w", key, err)
	}
	return qn, nil
}

// ListQuestions returns questions ordered by creation time.
func (q Queries) ListQuestions(ctx context.Context, f QuestionFilter) ([]Question, error) {
	var (
		where []string
		args  []any
	)
	if f.SourceID != 0 {
		where = append(where, "q.source_id = ?")
		args = append(args, f.SourceID)
	}
	if f.RootsOnly {
		where = append(where, "q.parent_id IS NULL")
	}

	query := `SELECT ` + questionColumns + questionFrom
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY q.created_at, q.question_id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return q.queryQuestions(ctx, query, args...)
}

// Children returns the questions grouped under parentID.
func (q Queries) Children(ctx context.Context, parentID int64) ([]Question, error) {
	return q.queryQuestions(ctx,
		`SELECT `+questionColumns+questionFrom+` WHERE q.parent_id = ? ORDER BY q.created_at, q.question_id`,
		parentID)
}

// GroupCandidates returns parentless questions of a source created in
// [from, to), oldest first, excluding excludeID.
func (q Queries) GroupCandidates(ctx context.Context, sourceID int64, from, to time.Time, excludeID int64) ([]Question, error) {
	return q.queryQuestions(ctx,
		`SELECT `+questionColumns+questionFrom+`
		WHERE q.source_id = ? AND q.parent_id IS NULL
		  AND q.created_at >= ? AND q.created_at < ?
		  AND q.question_id <> ?
		ORDER BY q.created_at, q.question_id`,
		sourceID, formatTime(from), formatTime(to), excludeID)
}

func (q Queries) queryQuestions(ctx context.Context, query string, args ...any) ([]Question, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Question
	for rows.Next() {
		qn, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		out = append(out, *qn)
	}
	return out, rows.Err()
}

// SetParent links a parentless question to a parentless root of the same
// source. Any other combination returns ErrConflict, which keeps groups one
// level deep.
func (q Queries) SetParent(ctx context.Context, id, parentID int64) error {
	if id == parentID {
		return ErrConflict
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE questions SET parent_id = ?, updated_at = ?
		WHERE question_id = ? AND parent_id IS NULL
		  AND NOT EXISTS (SELECT 1 FROM questions c WHERE c.parent_id = questions.question_id)
		  AND EXISTS (
			SELECT 1 FROM questions p
			WHERE p.question_id = ? AND p.parent_id IS NULL AND p.source_id = questions.source_id
		  )`,
		parentID, formatTime(q.now()), id, parentID)
	if err != nil {
		return fmt.Errorf("setting parent of %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting parent of %d: %w", id, err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ClearParent detaches a question from its group.
func (q Queries) ClearParent(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE questions SET parent_id = NULL, updated_at = ? WHERE question_id = ?`,
		formatTime(q.now()), id)
	if err != nil {
		return fmt.Errorf("clearing parent of %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("clearing parent of %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountQuestions returns the number of stored questions.
func (q Queries) CountQuestions(ctx context.Context) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n)
	return n, err
}
