package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter buffers items and writes them on Close.
type YAMLWriter struct {
	w     io.Writer
	items []any
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{w: w}
}

// Write buffers an item.
func (w *YAMLWriter) Write(item any) error {
	w.items = append(w.items, item)
	return nil
}

// Close encodes the buffered items, a single item as a mapping.
func (w *YAMLWriter) Close() error {
	enc := yaml.NewEncoder(w.w)
	enc.SetIndent(2)

	var v any = w.items
	if len(w.items) == 1 {
		v = w.items[0]
	} else if len(w.items) == 0 {
		v = []any{}
	}
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
