package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jmylchreest/qbank/pkg/cleaner"
)

// MarkdownWriter renders Document items as markdown as they arrive.
type MarkdownWriter struct {
	w     io.Writer
	conv  *cleaner.Markdown
	count int
}

// NewMarkdownWriter creates a markdown writer.
func NewMarkdownWriter(w io.Writer) *MarkdownWriter {
	return &MarkdownWriter{w: w, conv: cleaner.NewMarkdown()}
}

// Write renders one document. Items must implement Document.
func (w *MarkdownWriter) Write(item any) error {
	doc, ok := item.(Document)
	if !ok {
		return fmt.Errorf("markdown output: %T is not a document", item)
	}

	var b strings.Builder
	if w.count > 0 {
		b.WriteString("\n---\n\n")
	}
	fmt.Fprintf(&b, "# %s\n", doc.Title())

	for _, s := range doc.Sections() {
		if strings.TrimSpace(s.HTML) == "" {
			continue
		}
		md, err := w.conv.Clean(s.HTML)
		if err != nil {
			return fmt.Errorf("converting %s: %w", s.Title, err)
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", s.Title, strings.TrimSpace(md))
	}

	w.count++
	_, err := io.WriteString(w.w, b.String())
	return err
}

// Close is a no-op.
func (w *MarkdownWriter) Close() error {
	return nil
}
