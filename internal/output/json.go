package output

import (
	"encoding/json"
	"io"
)

// JSONWriter buffers items and writes them on Close: a single item as an
// object, several as an array.
type JSONWriter struct {
	w      io.Writer
	indent string
	items  []any
}

// NewJSONWriter creates a JSON writer. An empty indent writes compact JSON.
func NewJSONWriter(w io.Writer, indent string) *JSONWriter {
	return &JSONWriter{w: w, indent: indent}
}

// Write buffers an item.
func (w *JSONWriter) Write(item any) error {
	w.items = append(w.items, item)
	return nil
}

// Close encodes the buffered items.
func (w *JSONWriter) Close() error {
	var v any = w.items
	switch len(w.items) {
	case 0:
		v = []any{}
	case 1:
		v = w.items[0]
	}

	enc := json.NewEncoder(w.w)
	enc.SetEscapeHTML(false)
	if w.indent != "" {
		enc.SetIndent("", w.indent)
	}
	return enc.Encode(v)
}

// JSONLWriter writes one compact JSON document per line as items arrive.
type JSONLWriter struct {
	enc *json.Encoder
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// Write encodes one item on its own line.
func (w *JSONLWriter) Write(item any) error {
	return w.enc.Encode(item)
}

// Close is a no-op.
func (w *JSONLWriter) Close() error {
	return nil
}
