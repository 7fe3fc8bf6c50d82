package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/shelf/cmd/shelf/commands"
	"github.com/teranos/shelf/logger"
)

var rootCmd = &cobra.Command{
	Use:   "shelf",
	Short: "shelf - bookmark import and classification",
	Long: `shelf - Import browser bookmark exports and suggest categories for them.

shelf flattens a bookmark tree (Netscape HTML, Chromium profile JSON or a
plain node array) into records, suggests categories for each record and
stores the result in a local SQLite database served over HTTP.

Available commands:
  am      - Manage shelf configuration ("I am")
  db      - Manage the bookmark database
  units   - Inspect registered processing units
  parse   - Flatten a bookmark export into records
  analyze - Suggest categories for parsed records
  process - Parse and analyze in one run
  server  - Start the HTTP API

Examples:
  shelf parse bookmarks.html            # Print flattened records as JSON
  shelf process bookmarks.html --persist
  shelf am show --format yaml
  shelf server -v`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.Debugw("Logger initialized", "verbosity", logger.LevelName(verbosity))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.UnitsCmd)
	rootCmd.AddCommand(commands.ParseCmd)
	rootCmd.AddCommand(commands.AnalyzeCmd)
	rootCmd.AddCommand(commands.ProcessCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
