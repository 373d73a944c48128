package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// logBuffer bounds the records waiting to be written; further records are
// dropped rather than blocking the caller.
const logBuffer = 256

// LogHandler is a slog.Handler that persists records to the logs table.
// Records are written by a background goroutine so that logging from inside
// a transaction never waits on the database lock that transaction holds.
type LogHandler struct {
	shared *logSink
	name   string
	level  slog.Leveler
	attrs  []slog.Attr
	group  string
}

type logSink struct {
	store   *Store
	records chan LogRecord
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
}

// NewLogHandler starts a handler writing records at or above level.
// Call Close to flush pending records.
func (s *Store) NewLogHandler(name string, level slog.Leveler) *LogHandler {
	sink := &logSink{
		store:   s,
		records: make(chan LogRecord, logBuffer),
		done:    make(chan struct{}),
	}
	go sink.run()
	return &LogHandler{shared: sink, name: name, level: level}
}

func (k *logSink) run() {
	defer close(k.done)
	for rec := range k.records {
		// Logging failures have nowhere else to go.
		_ = k.store.InsertLog(context.Background(), rec)
	}
}

// Enabled reports whether level is at or above the handler threshold.
func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle queues the record for writing.
func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		h.addAttr(attrs, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.addAttr(attrs, a)
		return true
	})

	rec := LogRecord{
		Level:     r.Level.String(),
		Logger:    h.name,
		Message:   r.Message,
		Timestamp: r.Time,
	}
	if len(attrs) > 0 {
		if b, err := json.Marshal(attrs); err == nil {
			rec.AttrsJSON = string(b)
		}
	}

	h.shared.mu.RLock()
	defer h.shared.mu.RUnlock()
	if h.shared.closed {
		return nil
	}
	select {
	case h.shared.records <- rec:
	default:
	}
	return nil
}

func (h *LogHandler) addAttr(m map[string]any, a slog.Attr) {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			m[key] = err.Error()
			return
		}
		m[key] = v.Any()
	case slog.KindDuration:
		m[key] = v.Duration().String()
	case slog.KindTime:
		m[key] = v.Time().UTC().Format(time.RFC3339Nano)
	default:
		m[key] = v.Any()
	}
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

// WithGroup returns a handler that prefixes later attribute keys.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	next.group = name
	return &next
}

// Close flushes pending records and stops the writer.
func (h *LogHandler) Close() error {
	h.shared.mu.Lock()
	if !h.shared.closed {
		h.shared.closed = true
		close(h.shared.records)
	}
	h.shared.mu.Unlock()
	<-h.shared.done
	return nil
}

// InsertLog writes a log record.
func (q Queries) InsertLog(ctx context.Context, rec LogRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = q.now()
	}
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO logs (level, logger_name, message, attrs_json, timestamp) VALUES (?, ?, ?, ?, ?)`,
		rec.Level, rec.Logger, rec.Message, nullable(strPtr(rec.AttrsJSON)), formatTime(ts))
	if err != nil {
		return fmt.Errorf("inserting log: %w", err)
	}
	return nil
}

// RecentLogs returns up to limit records, newest first.
func (q Queries) RecentLogs(ctx context.Context, limit int) ([]LogRecord, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT log_id, level, logger_name, message, COALESCE(attrs_json, ''), timestamp
		FROM logs ORDER BY log_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LogRecord
	for rows.Next() {
		var (
			rec LogRecord
			ts  string
		)
		if err := rows.Scan(&rec.ID, &rec.Level, &rec.Logger, &rec.Message, &rec.AttrsJSON, &ts); err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing log timestamp: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ slog.Handler = (*LogHandler)(nil)
