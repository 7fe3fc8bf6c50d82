package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/shelf/am"
	"github.com/teranos/shelf/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage shelf configuration",
	Long: `am - Manage shelf configuration ("I am")

Configuration sources (later overrides earlier):
1. Built-in defaults
2. System config (/etc/shelf/am.toml)
3. User config (~/.shelf/am.toml)
4. Project config (am.toml, searched upward from the working directory)
5. Environment variables (SHELF_* prefix)

Examples:
  shelf am show                          # Show current configuration
  shelf am show --format json
  shelf am get analyzer.max_candidates
  shelf am where server.port             # Which source set a key
  shelf am set upload.max_bytes 20971520 --user`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, parser.max_depth)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where [key]",
	Short: "Show where configuration is loaded from",
	Long: `Without a key, list the configuration files that exist and the source of
every effective setting. With a key, show only that setting.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmWhere,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a value to a config file",
	Long: `Write key = value into the project am.toml (./am.toml unless one is found
further up), or the user config with --user. The previous file is kept as a
rotating backup.`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var (
	configFormat string
	whereFormat  string
	amSetUser    bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amWhereCmd.Flags().StringVar(&whereFormat, "format", "table", "Output format: table, json, yaml")
	amSetCmd.Flags().BoolVar(&amSetUser, "user", false, "Write to ~/.shelf/am.toml instead of the project config")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amSetCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	settings := am.GetViper().AllSettings()
	out := cmd.OutOrStdout()

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# shelf configuration\n%s", data)

	case "toml":
		data, err := toml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# shelf configuration\n%s", data)

	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	key := args[0]
	if !am.IsSet(key) {
		return errors.NewNotFoundError("configuration key %q", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	var settings []am.SettingInfo
	var files []am.SourceInfo

	if len(args) == 1 {
		s, err := am.Where(args[0])
		if err != nil {
			return err
		}
		settings = []am.SettingInfo{s}
	} else {
		intro, err := am.GetConfigIntrospection()
		if err != nil {
			return errors.Wrap(err, "failed to get config introspection")
		}
		settings, files = intro.Settings, intro.Files
	}

	out := cmd.OutOrStdout()
	switch whereFormat {
	case "json":
		return writeJSON(out, am.ConfigIntrospection{Files: files, Settings: settings})
	case "yaml":
		return yaml.NewEncoder(out).Encode(am.ConfigIntrospection{Files: files, Settings: settings})
	case "table":
	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: table, json, yaml)", whereFormat)
	}

	if len(args) == 0 {
		fmt.Fprintln(out, "Configuration files (later overrides earlier):")
		if len(files) == 0 {
			fmt.Fprintln(out, "  (none, using defaults and environment)")
		}
		for _, f := range files {
			fmt.Fprintf(out, "  [%s] %s\n", f.Source, f.Path)
		}
		fmt.Fprintln(out)
	}

	data := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range settings {
		data = append(data, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}

func runAmSet(cmd *cobra.Command, args []string) error {
	path, err := setTarget(amSetUser)
	if err != nil {
		return err
	}
	if err := am.SetValue(path, args[0], args[1]); err != nil {
		return err
	}

	// report a write that leaves the cascade invalid
	am.Reset()
	if _, err := loadConfig(); err != nil {
		return errors.WithHint(err, fmt.Sprintf("%s was updated; a backup of the previous version is next to it", path))
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("Set %s = %s in %s", args[0], args[1], path)
	return nil
}

// setTarget picks the file am set writes to.
func setTarget(user bool) (string, error) {
	if user {
		return am.UserConfigPath()
	}
	for _, src := range am.ConfigPaths() {
		if src.Source == am.SourceProject {
			return src.Path, nil
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get working directory")
	}
	return filepath.Join(wd, "am.toml"), nil
}
