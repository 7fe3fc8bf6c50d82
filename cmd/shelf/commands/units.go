package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/shelf/unit"
)

// UnitsCmd inspects the unit registry
var UnitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Inspect registered processing units",
	Long: `List the units registered with the pipeline and describe their
configuration schema.

Examples:
  shelf units list
  shelf units describe analyzer`,
}

var unitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered units",
	Args:  cobra.NoArgs,
	RunE:  runUnitsList,
}

var unitsDescribeCmd = &cobra.Command{
	Use:   "describe <name>",
	Short: "Show a unit's descriptor and configuration schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnitsDescribe,
}

func init() {
	UnitsCmd.AddCommand(unitsListCmd)
	UnitsCmd.AddCommand(unitsDescribeCmd)
}

func runUnitsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(contextOf(cmd))

	data := pterm.TableData{{"Name", "Version", "Reentrant", "Description"}}
	for _, d := range a.registry.Status() {
		data = append(data, []string{d.Name, d.Version, strconv.FormatBool(d.Reentrant), d.Description})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
}

func runUnitsDescribe(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(contextOf(cmd))

	d, err := a.registry.Describe(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n%s\n", d.Name, d.Version, d.Description)
	if d.Requires != "" {
		fmt.Fprintf(out, "Requires host: %s\n", d.Requires)
	}

	u, _ := a.registry.Get(args[0])
	configurable, ok := u.(unit.Configurable)
	if !ok {
		return nil
	}
	schema := configurable.ConfigSchema()
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := pterm.TableData{{"Option", "Type", "Default", "Range", "Description"}}
	for _, k := range keys {
		f := schema[k]
		bounds := ""
		if f.MinValue != "" || f.MaxValue != "" {
			bounds = f.MinValue + ".." + f.MaxValue
		}
		data = append(data, []string{k, f.Type, f.DefaultValue, bounds, f.Description})
	}
	fmt.Fprintln(out)
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}
