package cleaner

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Markdown converts cleaned question HTML to Markdown for terminal display
// and for export.
type Markdown struct{}

// NewMarkdown creates a new Markdown cleaner.
func NewMarkdown() *Markdown {
	return &Markdown{}
}

// Clean converts HTML to Markdown.
func (c *Markdown) Clean(html string) (string, error) {
	markdown, err := md.ConvertString(html)
	if err != nil {
		return "", err
	}
	return cleanWhitespace(markdown), nil
}

// Name returns the cleaner type.
func (c *Markdown) Name() string {
	return "markdown"
}

// cleanWhitespace collapses runs of blank lines to one.
func cleanWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var result []string
	blankCount := 0

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blankCount++
			if blankCount <= 1 {
				result = append(result, "")
			}
		} else {
			blankCount = 0
			result = append(result, line)
		}
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}
