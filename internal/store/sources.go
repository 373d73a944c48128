package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetOrCreateSource returns the source named name, creating it if needed.
func (q Queries) GetOrCreateSource(ctx context.Context, name string) (*Source, error) {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO sources (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, formatTime(q.now()))
	if err != nil {
		return nil, fmt.Errorf("creating source %s: %w", name, err)
	}
	return q.SourceByName(ctx, name)
}

// SourceByName looks up a source by its unique name.
func (q Queries) SourceByName(ctx context.Context, name string) (*Source, error) {
	var (
		src         Source
		description sql.NullString
		createdAt   string
	)
	err := q.q.QueryRowContext(ctx,
		`SELECT source_id, name, description, created_at FROM sources WHERE name = ?`, name,
	).Scan(&src.ID, &src.Name, &description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting source %s: %w", name, err)
	}

	src.Description = description.String
	if src.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing source created_at: %w", err)
	}
	return &src, nil
}

// ListSources returns all sources ordered by name.
func (q Queries) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT source_id, name, description, created_at FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Source
	for rows.Next() {
		var (
			src         Source
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&src.ID, &src.Name, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		src.Description = description.String
		if src.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing source created_at: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
