package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AddMedia attaches a media file to a question.
func (q Queries) AddMedia(ctx context.Context, m Media) (*Media, error) {
	created := q.now()
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO media (question_id, media_role, media_type, mime_type, relative_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.QuestionID, m.Role, sql.NullString{String: m.Type, Valid: m.Type != ""},
		m.MimeType, m.RelativePath, formatTime(created))
	if err != nil {
		return nil, fmt.Errorf("adding media %s: %w", m.RelativePath, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("adding media %s: %w", m.RelativePath, err)
	}

	m.ID = id
	m.CreatedAt = created.UTC().Truncate(0)
	return &m, nil
}

// MediaFor returns the media attached to a question in insertion order.
func (q Queries) MediaFor(ctx context.Context, questionID int64) ([]Media, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT media_id, question_id, media_role, media_type, mime_type, relative_path, created_at
		FROM media WHERE question_id = ? ORDER BY media_id`, questionID)
	if err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Media
	for rows.Next() {
		var (
			m         Media
			mediaType sql.NullString
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.QuestionID, &m.Role, &mediaType, &m.MimeType, &m.RelativePath, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning media: %w", err)
		}
		m.Type = mediaType.String
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing media created_at: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
