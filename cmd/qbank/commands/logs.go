package commands

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/qbank/internal/store"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show log records persisted with log.persist",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	flags := logsCmd.Flags()
	flags.IntP("limit", "n", 50, "number of records")
	flags.StringP("format", "f", "table", "output format: table, json, jsonl, yaml")
}

type logRow store.LogRecord

func (r logRow) Header() []string { return []string{"ID", "TIME", "LEVEL", "MESSAGE", "ATTRS"} }

func (r logRow) Row() []string {
	return []string{strconv.FormatInt(r.ID, 10), r.Timestamp.Local().Format(time.DateTime), r.Level, r.Message, r.AttrsJSON}
}

func runLogs(cmd *cobra.Command, args []string) error {
	initLogging(nil)

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := st.RecentLogs(cmd.Context(), limit)
	if err != nil {
		return err
	}

	items := make([]any, 0, len(records))
	for _, r := range records {
		items = append(items, logRow(r))
	}
	format, _ := cmd.Flags().GetString("format")
	return writeItems(format, items...)
}
