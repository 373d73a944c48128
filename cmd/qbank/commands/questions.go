package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/qbank/internal/output"
	"github.com/jmylchreest/qbank/internal/store"
	"github.com/jmylchreest/qbank/pkg/source"
)

var questionsCmd = &cobra.Command{
	Use:     "questions",
	Aliases: []string{"q"},
	Short:   "Browse stored questions",
}

var questionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored questions",
	Long: `List stored questions, newest last.

Examples:
  qbank questions list
  qbank questions list --source MKSAP_19 --roots
  qbank questions list --format json`,
	Args: cobra.NoArgs,
	RunE: runQuestionsList,
}

var questionsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one question with its media and grouped parts",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuestionsShow,
}

var questionsUnlinkCmd = &cobra.Command{
	Use:   "unlink ID",
	Short: "Detach a question from its group",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuestionsUnlink,
}

func init() {
	rootCmd.AddCommand(questionsCmd)
	questionsCmd.AddCommand(questionsListCmd, questionsShowCmd, questionsUnlinkCmd)

	flags := questionsListCmd.Flags()
	flags.StringP("source", "s", "", "only questions from this source")
	flags.Bool("roots", false, "only questions without a parent")
	flags.IntP("limit", "n", 0, "maximum number of questions (0 = all)")
	flags.StringP("format", "f", "table", "output format: table, json, jsonl, yaml")

	questionsShowCmd.Flags().StringP("format", "f", "markdown", "output format: markdown, json, yaml")
}

// questionSummary is one row of "questions list".
type questionSummary struct {
	ID       int64     `json:"question_id" yaml:"question_id"`
	Source   string    `json:"source" yaml:"source"`
	Key      string    `json:"source_question_key" yaml:"source_question_key"`
	ParentID *int64    `json:"parent_id" yaml:"parent_id"`
	Minimal  bool      `json:"has_minimal" yaml:"has_minimal"`
	Parsed   bool      `json:"is_parsed" yaml:"is_parsed"`
	Size     int       `json:"raw_html_bytes" yaml:"raw_html_bytes"`
	Created  time.Time `json:"created_at" yaml:"created_at"`
}

func newQuestionSummary(q store.Question) questionSummary {
	return questionSummary{
		ID:       q.ID,
		Source:   q.SourceName,
		Key:      q.Key,
		ParentID: q.ParentID,
		Minimal:  q.StemHTML != nil,
		Parsed:   q.IsParsed,
		Size:     len(q.RawHTML),
		Created:  q.CreatedAt,
	}
}

func (s questionSummary) Header() []string {
	return []string{"ID", "SOURCE", "KEY", "PARENT", "MINIMAL", "PARSED", "SIZE", "CAPTURED"}
}

func (s questionSummary) Row() []string {
	parent := "-"
	if s.ParentID != nil {
		parent = strconv.FormatInt(*s.ParentID, 10)
	}
	return []string{
		strconv.FormatInt(s.ID, 10), s.Source, s.Key, parent,
		yesNo(s.Minimal), yesNo(s.Parsed),
		humanize.Bytes(uint64(s.Size)), humanize.Time(s.Created),
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// questionDetail is the "questions show" view: the stored record plus a
// fresh parse of its raw HTML.
type questionDetail struct {
	Question *store.Question   `json:"question" yaml:"question"`
	Media    []store.Media     `json:"media" yaml:"media"`
	Children []questionSummary `json:"children" yaml:"children"`
	Parsed   *source.Question  `json:"parsed,omitempty" yaml:"parsed,omitempty"`
}

func (d questionDetail) Title() string {
	return fmt.Sprintf("%s/%s (#%d)", d.Question.SourceName, d.Question.Key, d.Question.ID)
}

func (d questionDetail) Sections() []output.Section {
	q := d.Question
	var sections []output.Section

	var info strings.Builder
	info.WriteString("<ul>")
	fmt.Fprintf(&info, "<li>Captured: %s</li>", q.CreatedAt.Format(time.RFC3339))
	if q.ParentID != nil {
		fmt.Fprintf(&info, "<li>Part of: #%d</li>", *q.ParentID)
	}
	for _, c := range d.Children {
		fmt.Fprintf(&info, "<li>Part: #%d %s</li>", c.ID, html.EscapeString(c.Key))
	}
	for _, m := range d.Media {
		fmt.Fprintf(&info, "<li>Media: %s (%s)</li>", html.EscapeString(m.RelativePath), m.MimeType)
	}
	info.WriteString("</ul>")
	sections = append(sections, output.Section{Title: "Record", HTML: info.String()})

	if q.ContextHTML != nil {
		sections = append(sections, output.Section{Title: "Context", HTML: *q.ContextHTML})
	}
	if q.StemHTML != nil {
		sections = append(sections, output.Section{Title: "Stem", HTML: *q.StemHTML})
	}

	return append(sections, d.parsedSections()...)
}

// parsedSections renders the fresh parse, if any.
func (d questionDetail) parsedSections() []output.Section {
	p := d.Parsed
	if p == nil {
		return nil
	}
	sections := []output.Section{{Title: "Question (" + string(p.Kind) + ")", HTML: p.QuestionHTML}}
	if len(p.Answers) > 0 {
		var ans strings.Builder
		ans.WriteString("<ul>")
		for _, a := range p.Answers {
			ans.WriteString("<li>")
			if a.Letter != "" {
				ans.WriteString(html.EscapeString(a.Letter) + ". ")
			}
			ans.WriteString(html.EscapeString(a.Text))
			if a.IsCorrect {
				ans.WriteString(" <b>(correct)</b>")
			}
			if a.PeerPercentage != nil {
				fmt.Fprintf(&ans, " [%g%%]", *a.PeerPercentage)
			}
			ans.WriteString("</li>")
		}
		ans.WriteString("</ul>")
		sections = append(sections, output.Section{Title: "Answers", HTML: ans.String()})
	}
	return append(sections, output.Section{Title: "Explanation", HTML: p.ExplanationHTML})
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid question id: %s", arg)
	}
	return id, nil
}

func writeItems(format string, items ...any) error {
	f, err := output.ParseFormat(format)
	if err != nil {
		return err
	}
	w, err := output.NewWriter(os.Stdout, f)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := w.Write(item); err != nil {
			return err
		}
	}
	return w.Close()
}

func runQuestionsList(cmd *cobra.Command, args []string) error {
	initLogging(nil)

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := cmd.Context()

	filter := store.QuestionFilter{}
	filter.RootsOnly, _ = cmd.Flags().GetBool("roots")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if name, _ := cmd.Flags().GetString("source"); name != "" {
		src, err := st.SourceByName(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("unknown source: %s", name)
		}
		if err != nil {
			return err
		}
		filter.SourceID = src.ID
	}

	qs, err := st.ListQuestions(ctx, filter)
	if err != nil {
		return err
	}

	items := make([]any, 0, len(qs))
	for _, q := range qs {
		items = append(items, newQuestionSummary(q))
	}
	format, _ := cmd.Flags().GetString("format")
	return writeItems(format, items...)
}

func loadDetail(ctx context.Context, st *store.Store, id int64) (*questionDetail, error) {
	q, err := st.QuestionByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("question %d not found", id)
	}
	if err != nil {
		return nil, err
	}

	d := &questionDetail{Question: q}
	if d.Media, err = st.MediaFor(ctx, id); err != nil {
		return nil, err
	}
	children, err := st.Children(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		d.Children = append(d.Children, newQuestionSummary(c))
	}

	var meta map[string]any
	_ = json.Unmarshal([]byte(q.RawMetadataJSON), &meta)
	if d.Parsed, err = source.ParseWithMetadata(q.RawHTML, meta); err != nil {
		return nil, fmt.Errorf("parsing raw html: %w", err)
	}
	return d, nil
}

func runQuestionsShow(cmd *cobra.Command, args []string) error {
	initLogging(nil)

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := cmd.Context()

	d, err := loadDetail(ctx, st, id)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if f, _ := output.ParseFormat(format); f == output.FormatTable {
		return fmt.Errorf("table output is not supported for a single question")
	}
	return writeItems(format, *d)
}

func runQuestionsUnlink(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	closeLogs := initLogging(st)
	defer closeLogs()

	ctx := cmd.Context()

	if err := st.ClearParent(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("question %d not found", id)
		}
		return err
	}
	logInfo("question %d unlinked", id)
	return nil
}
