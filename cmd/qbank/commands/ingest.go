package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/qbank/internal/ingest"
	"github.com/jmylchreest/qbank/internal/logger"
	"github.com/jmylchreest/qbank/pkg/extractor"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [FILE.json...]",
	Short: "Import captured extractions into the database",
	Long: `Import html/json extraction pairs written by "qbank serve".

With no arguments every *.json file in the extractions directory is imported
in name order. Questions that are already stored are left untouched unless
--update is given.

Examples:
  # Import ./extractions
  qbank ingest

  # Import one file with LLM extraction and the legacy parsers
  qbank ingest extractions/20250101_120000_MKSAP_19_3.json --llm --parse-legacy

  # Use a hand-written extraction for one file
  qbank ingest extractions/20250101_120000_MKSAP_19_3.json --batch fixed.json

  # Keep importing as new captures arrive
  qbank ingest --watch`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	flags := ingestCmd.Flags()
	flags.StringP("dir", "d", "", "extractions directory (default extractions)")
	flags.BoolP("watch", "w", false, "keep watching the directory after the initial import")
	flags.Bool("llm", false, "fill question context and stem with the LLM extractor")
	flags.Bool("parse-legacy", false, "also store the per-source parser output")
	flags.Bool("update", false, "refresh questions that already exist")
	flags.String("batch-policy", "", "what to do with multi-question extractions: first, strict")
	flags.Bool("no-grouping", false, "do not group questions captured close together")
	flags.String("batch", "", "JSON extraction to use instead of the LLM (single file only)")

	ingestCmd.PreRunE = bindFlags(map[string]string{
		"extractions_dir":     "dir",
		"llm.enabled":         "llm",
		"ingest.parse_legacy": "parse-legacy",
		"ingest.update":       "update",
		"ingest.batch_policy": "batch-policy",
	})
}

func runIngest(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	closeLogs := initLogging(st)
	defer closeLogs()

	ctx, cancel := signalContext()
	defer cancel()

	if noGrouping, _ := cmd.Flags().GetBool("no-grouping"); noGrouping {
		viper.Set("grouping.enabled", false)
	}

	batchFile, _ := cmd.Flags().GetString("batch")
	if batchFile != "" && len(args) != 1 {
		return fmt.Errorf("--batch needs exactly one extraction file")
	}

	in, err := buildIngester(ctx, st)
	if err != nil {
		logger.Error("failed to configure ingestion", "error", err)
		return err
	}

	var report ingest.Report
	switch {
	case batchFile != "":
		data, err := os.ReadFile(batchFile)
		if err != nil {
			return fmt.Errorf("reading batch: %w", err)
		}
		batch, err := extractor.ParseBatch(data)
		if err != nil {
			return fmt.Errorf("invalid batch %s: %w", batchFile, err)
		}
		report.Found = 1
		res, err := in.IngestWithBatch(ctx, args[0], batch)
		report.Add(res)
		logResult(res, err)

	case len(args) > 0:
		report.Found = len(args)
		for _, file := range args {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := in.IngestFile(ctx, file)
			report.Add(res)
			logResult(res, err)
		}

	default:
		report, err = in.IngestDir(ctx, viper.GetString("extractions_dir"))
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ingestion failed", "error", err)
			return err
		}
	}

	logInfo("%s", report)

	if watch, _ := cmd.Flags().GetBool("watch"); watch && ctx.Err() == nil {
		return watchDir(ctx, in, viper.GetString("extractions_dir"))
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d file(s) failed", report.Failed)
	}
	return nil
}

func watchDir(ctx context.Context, in *ingest.Ingester, dir string) error {
	opts := ingest.DefaultWatchOptions()
	// Watch logs failures itself.
	opts.OnResult = func(res *ingest.Result, err error) {
		if err == nil {
			logResult(res, nil)
		}
	}

	logInfo("watching %s for new extractions (Ctrl-C to stop)", dir)
	err := in.Watch(ctx, dir, opts)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logResult(res *ingest.Result, err error) {
	file := filepath.Base(res.Path)
	switch {
	case err != nil && res.Outcome == ingest.OutcomeSkipped:
		logger.Warn("skipping file", "file", file, "error", err)
	case err != nil:
		logger.Error("failed to ingest file", "file", file, "error", err)
	default:
		logger.Info("ingested", "file", file, "identity", res.Identity.String(),
			"outcome", res.Outcome, "question_id", res.QuestionID, "parent_id", res.ParentID,
			"media", res.Media, "llm_failed", res.LLMFailed)
	}
}
