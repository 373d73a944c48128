package commands

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/qbank/internal/capture"
	"github.com/jmylchreest/qbank/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive page captures from the browser userscript",
	Long: `Run the capture receiver the userscript posts to.

Each capture is written to the extractions directory as a timestamped
html/json pair. With --ingest every capture is imported as soon as it is
written.

Endpoints:
  GET  /                    health and capture count
  POST /extract             save a capture
  GET  /extractions         list captures received by this process
  GET  /extractions/:index  one capture
  POST /clear               forget received captures (files are kept)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("addr", capture.DefaultAddr, "listen address")
	flags.StringP("dir", "d", "", "extractions directory (default extractions)")
	flags.Bool("ingest", false, "import each capture as it arrives")
	flags.Bool("llm", false, "use the LLM extractor when importing")

	serveCmd.PreRunE = bindFlags(map[string]string{
		"serve.addr":      "addr",
		"extractions_dir": "dir",
		"serve.ingest":    "ingest",
		"llm.enabled":     "llm",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var opts []capture.Option
	if viper.GetBool("serve.ingest") {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		closeLogs := initLogging(st)
		defer closeLogs()

		in, err := buildIngester(ctx, st)
		if err != nil {
			logger.Error("failed to configure ingestion", "error", err)
			return err
		}
		opts = append(opts, capture.OnSaved(func(reqCtx context.Context, jsonPath string) {
			// A client hanging up must not abort the import.
			res, err := in.IngestFile(context.WithoutCancel(reqCtx), jsonPath)
			logResult(res, err)
		}))
	} else {
		initLogging(nil)
	}

	dir := viper.GetString("extractions_dir")
	srv, err := capture.New(dir, opts...)
	if err != nil {
		return err
	}

	logInfo("listening on http://%s, saving to %s", viper.GetString("serve.addr"), dir)
	return srv.ListenAndServe(ctx, viper.GetString("serve.addr"))
}
