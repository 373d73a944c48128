package commands

import (
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/qbank/internal/output"
	"github.com/jmylchreest/qbank/pkg/source"
)

var parseCmd = &cobra.Command{
	Use:   "parse FILE.html",
	Short: "Run the source parsers on one captured page",
	Long: `Detect the question bank of a captured page and print its cleaned
question, answers and explanation.

Image sources are resolved against --url, or against the "url" field of the
capture's .json sibling when there is one.

Examples:
  qbank parse extractions/20250101_120000_ACEP_PEER_7.html
  qbank parse page.html --url https://example.org/q/1 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	flags := parseCmd.Flags()
	flags.String("url", "", "base URL for relative image sources")
	flags.StringP("format", "f", "markdown", "output format: markdown, json, yaml")
}

// parsedPage adapts a parse result for markdown output.
type parsedPage struct {
	Path            string `json:"path" yaml:"path"`
	source.Question `yaml:",inline"`
}

func (p parsedPage) Title() string {
	return fmt.Sprintf("%s (%s)", filepath.Base(p.Path), p.Kind)
}

func (p parsedPage) Sections() []output.Section {
	sections := questionDetail{Parsed: &p.Question}.parsedSections()
	if len(p.Images) > 0 {
		var imgs strings.Builder
		imgs.WriteString("<ul>")
		for _, src := range p.Images {
			fmt.Fprintf(&imgs, "<li>%s</li>", html.EscapeString(src))
		}
		imgs.WriteString("</ul>")
		sections = append(sections, output.Section{Title: "Images", HTML: imgs.String()})
	}
	return sections
}

// siblingURL reads the capture URL from the .json next to an .html file.
func siblingURL(htmlPath string) string {
	data, err := os.ReadFile(strings.TrimSuffix(htmlPath, filepath.Ext(htmlPath)) + ".json")
	if err != nil {
		return ""
	}
	var meta struct {
		URL string `json:"url"`
	}
	_ = json.Unmarshal(data, &meta)
	return meta.URL
}

func runParse(cmd *cobra.Command, args []string) error {
	initLogging(nil)

	path := args[0]
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	base, _ := cmd.Flags().GetString("url")
	if base == "" {
		base = siblingURL(path)
	}

	q, err := source.Parse(string(raw), base)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	return writeItems(format, parsedPage{Path: path, Question: *q})
}
