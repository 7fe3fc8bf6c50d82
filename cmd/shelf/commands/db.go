package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/shelf/db"
	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/store"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the bookmark database",
	Long: `db - Manage the bookmark database

Examples:
  shelf db migrate              # Apply pending migrations
  shelf db status               # List migrations and whether they ran
  shelf db stats                # Bookmark, tag and category counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runDbMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they have been applied",
	Args:  cobra.NoArgs,
	RunE:  runDbStatus,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show bookmark statistics",
	Args:  cobra.NoArgs,
	RunE:  runDbStats,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatusCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, path, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer conn.Close()

	pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("Database %s is up to date", path)
	return nil
}

func runDbStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := dbPathFlag
	if path == "" {
		path = cfg.GetDatabasePath()
	}
	conn, err := db.Open(path, logger.ComponentLogger("db"))
	if err != nil {
		return errors.Wrapf(err, "failed to open database at %s", path)
	}
	defer conn.Close()

	migrations, err := db.Migrations(conn)
	if err != nil {
		return err
	}
	data := pterm.TableData{{"Version", "File", "Applied"}}
	for _, m := range migrations {
		data = append(data, []string{m.Version, m.File, strconv.FormatBool(m.Applied)})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, path, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer conn.Close()

	stats, err := store.New(conn, logger.ComponentLogger("store")).Stats(contextOf(cmd))
	if err != nil {
		return errors.Wrap(err, "failed to query bookmark stats")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Database Statistics")
	fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintf(out, "Database Path: %s\n", path)
	fmt.Fprintf(out, "Bookmarks:     %d\n", stats.Bookmarks)
	fmt.Fprintf(out, "Tags:          %d\n", stats.Tags)
	if len(stats.Categories) == 0 {
		return nil
	}

	categories := make([]string, 0, len(stats.Categories))
	for c := range stats.Categories {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	data := pterm.TableData{{"Category", "Bookmarks"}}
	for _, c := range categories {
		data = append(data, []string{c, strconv.Itoa(stats.Categories[c])})
	}
	fmt.Fprintln(out)
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}
