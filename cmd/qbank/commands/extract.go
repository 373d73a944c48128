package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/qbank/internal/logger"
	"github.com/jmylchreest/qbank/pkg/extractor"
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE.html",
	Short: "Run LLM extraction on one captured page",
	Long: `Send one captured page to the configured LLM and print the validated
context/stem batch. Answer choices or explanation text found in the result
are reported as leaks; nothing is written to the database.

Examples:
  qbank extract extractions/20250101_120000_MKSAP_19_3.html
  QBANK_LLM_PROVIDER=anthropic qbank extract page.html --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("format", "f", "json", "output format: json, yaml")
}

type leakReport struct {
	Question int    `json:"question" yaml:"question"`
	Field    string `json:"field" yaml:"field"`
	Marker   string `json:"marker" yaml:"marker"`
}

type extractResult struct {
	Extractor string                      `json:"extractor" yaml:"extractor"`
	Questions []extractor.MinimalQuestion `json:"questions" yaml:"questions"`
	Leaks     []leakReport                `json:"leaks,omitempty" yaml:"leaks,omitempty"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	initLogging(nil)

	ctx, cancel := signalContext()
	defer cancel()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	ext, err := buildExtractor()
	if err != nil {
		logger.Error("failed to build extractor", "error", err)
		return err
	}

	batch, err := ext.Extract(ctx, string(raw))
	if err != nil {
		logger.Error("extraction failed", "extractor", ext.Name(), "error", err)
		return err
	}

	res := extractResult{Extractor: ext.Name(), Questions: batch.Questions}
	for i, q := range batch.Questions {
		for _, l := range extractor.Leaks(q) {
			res.Leaks = append(res.Leaks, leakReport{Question: i, Field: l.Field, Marker: l.Marker})
		}
	}

	format, _ := cmd.Flags().GetString("format")
	return writeItems(format, res)
}
