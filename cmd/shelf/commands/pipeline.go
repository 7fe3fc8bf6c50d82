package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/shelf/analyzer"
	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/parser"
	"github.com/teranos/shelf/pipeline"
)

// Output formats for suggestion reports
const (
	formatJSON = "json"
	formatCSV  = "csv"
	formatText = "text"
)

// ParseCmd flattens a bookmark export
var ParseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Flatten a bookmark export into records",
	Long: `Parse a bookmark export and print the flattened records as JSON.

Accepted inputs are Netscape bookmark HTML, a Chromium "Bookmarks" profile
file, a JSON array of nodes or a single JSON node. Use - to read stdin.

Examples:
  shelf parse bookmarks.html
  shelf parse ~/.config/chromium/Default/Bookmarks --flag strict`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

// AnalyzeCmd suggests categories for records produced by parse
var AnalyzeCmd = &cobra.Command{
	Use:   "analyze <records.json|->",
	Short: "Suggest categories for parsed records",
	Long: `Read a JSON array of flat records (the output of "shelf parse") and
print one suggestion per record.

Examples:
  shelf parse bookmarks.html | shelf analyze - --format text`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

// ProcessCmd runs the whole pipeline
var ProcessCmd = &cobra.Command{
	Use:   "process <file|->",
	Short: "Parse and analyze a bookmark export in one run",
	Long: `Parse a bookmark export, suggest categories for every record and
optionally store the result in the bookmark database.

Examples:
  shelf process bookmarks.html --format csv > suggestions.csv
  shelf process bookmarks.html --persist`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var (
	parseFlags     []string
	analyzeFlags   []string
	outputFormat   string
	processPersist bool
	processSkip    bool
	processDBPath  string
)

func init() {
	ParseCmd.Flags().StringSliceVar(&parseFlags, "flag", nil, "Flags passed to the parser unit")

	AnalyzeCmd.Flags().StringSliceVar(&analyzeFlags, "flag", nil, "Flags passed to the analyzer unit")
	AnalyzeCmd.Flags().StringVar(&outputFormat, "format", formatJSON, "Output format: json, csv, text")

	ProcessCmd.Flags().StringSliceVar(&parseFlags, "parse-flag", nil, "Flags passed to the parser unit")
	ProcessCmd.Flags().StringSliceVar(&analyzeFlags, "analyze-flag", nil, "Flags passed to the analyzer unit")
	ProcessCmd.Flags().StringVar(&outputFormat, "format", formatJSON, "Output format: json, csv, text")
	ProcessCmd.Flags().BoolVar(&processPersist, "persist", false, "Store the records in the bookmark database")
	ProcessCmd.Flags().BoolVar(&processSkip, "skip-analysis", false, "Stop after parsing")
	ProcessCmd.Flags().StringVar(&processDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runParse(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(contextOf(cmd))

	in, closeIn, err := openInput(cmd, args[0])
	if err != nil {
		return err
	}
	defer closeIn()

	res, err := a.orchestrator.Parse(contextOf(cmd), in, parseFlags...)
	if err != nil {
		return err
	}
	reportSkipped(cmd, res.Skipped, res.Malformed)
	return writeJSON(cmd.OutOrStdout(), res.Records)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := checkFormat(outputFormat); err != nil {
		return err
	}
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(contextOf(cmd))

	in, closeIn, err := openInput(cmd, args[0])
	if err != nil {
		return err
	}
	defer closeIn()

	var records []parser.FlatRecord
	if err := json.NewDecoder(in).Decode(&records); err != nil {
		return errors.Wrap(errors.NewInvalidRequestError("records must be a JSON array: %v", err), args[0])
	}

	suggestions, err := a.orchestrator.Analyze(contextOf(cmd), records, analyzeFlags...)
	if err != nil {
		return err
	}
	return writeSuggestions(cmd.OutOrStdout(), outputFormat, records, suggestions)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if err := checkFormat(outputFormat); err != nil {
		return err
	}
	a, err := newApp(appOptions{withStore: processPersist, dbPath: processDBPath})
	if err != nil {
		return err
	}
	defer a.Close(contextOf(cmd))

	in, closeIn, err := openInput(cmd, args[0])
	if err != nil {
		return err
	}
	defer closeIn()

	res, err := a.orchestrator.Process(contextOf(cmd), in, pipeline.ProcessOptions{
		SkipAnalysis: processSkip,
		Persist:      processPersist,
		ParseFlags:   parseFlags,
		AnalyzeFlags: analyzeFlags,
	})
	if err != nil {
		if res != nil {
			pterm.Warning.WithWriter(cmd.ErrOrStderr()).Printfln("Run %s stopped in state %s after %d records", res.RunID, res.State, res.ParsedCount)
		}
		return err
	}

	reportSkipped(cmd, res.Skipped, res.Malformed)
	if processPersist {
		pterm.Success.WithWriter(cmd.ErrOrStderr()).Printfln("Stored %d bookmarks in %s", res.Persisted, a.dbPath)
	}
	if processSkip {
		return writeJSON(cmd.OutOrStdout(), res.Records)
	}
	return writeSuggestions(cmd.OutOrStdout(), outputFormat, res.Records, res.Suggestions)
}

// openInput opens path for reading, with - meaning stdin.
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return f, func() { f.Close() }, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func checkFormat(format string) error {
	switch format {
	case formatJSON, formatCSV, formatText:
		return nil
	}
	return errors.NewInvalidRequestError("unsupported format: %s (supported: json, csv, text)", format)
}

func writeSuggestions(w io.Writer, format string, records []parser.FlatRecord, suggestions []analyzer.Suggestion) error {
	switch format {
	case formatCSV:
		return analyzer.WriteCSV(w, records, suggestions)
	case formatText:
		return analyzer.WriteText(w, records, suggestions)
	default:
		return writeJSON(w, suggestions)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

func reportSkipped(cmd *cobra.Command, skipped int, malformed []parser.Malformed) {
	if skipped == 0 && len(malformed) == 0 {
		return
	}
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "skipped %d leaves, %d malformed nodes\n", skipped, len(malformed))

	verbosity, _ := cmd.Flags().GetCount("verbose")
	if !logger.ShouldLogTrace(verbosity) {
		return
	}
	for _, m := range malformed {
		fmt.Fprintf(out, "  /%s: %s\n", strings.Join(m.Path, "/"), m.Reason)
	}
}
