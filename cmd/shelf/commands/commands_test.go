package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/shelf/am"
	"github.com/teranos/shelf/analyzer"
	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/parser"
)

const exportHTML = `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
<DL><p>
    <DT><H3>Dev</H3>
    <DL><p>
        <DT><H3>Go</H3>
        <DL><p>
            <DT><A HREF="https://go.dev/doc/" ADD_DATE="1700000000">Go Documentation</A>
        </DL><p>
        <DT><A HREF="https://github.com/spf13/cobra">Cobra CLI library</A>
    </DL><p>
    <DT><A HREF="javascript:void(0)">bookmarklet</A>
</DL><p>
`

// isolate runs the test in a temp dir with no config files in reach.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	chdir(t, dir)
	am.Reset()
	t.Cleanup(am.Reset)
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes cmd with args and returns stdout.
func run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
		cmd.SetIn(nil)
		am.Reset()
	})
	err := cmd.Execute()
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "bookmarks.html", exportHTML)

	out, err := run(t, ParseCmd, "", path)
	require.NoError(t, err)

	var records []parser.FlatRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "https://go.dev/doc/", records[0].URL)
	assert.Equal(t, []string{"Dev", "Go"}, records[0].Path)
	assert.Equal(t, []string{"Dev"}, records[1].Path)
	assert.Equal(t, "Cobra CLI library", records[1].Title)
}

func TestParseCommandMissingFile(t *testing.T) {
	isolate(t)
	_, err := run(t, ParseCmd, "", "does-not-exist.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open")
}

func TestAnalyzeCommandFromStdin(t *testing.T) {
	isolate(t)
	records := `[{"url":"https://go.dev/doc/","title":"Go Documentation","path":["Dev"]}]`

	out, err := run(t, AnalyzeCmd, records, "-", "--format", "json")
	require.NoError(t, err)

	var suggestions []analyzer.Suggestion
	require.NoError(t, json.Unmarshal([]byte(out), &suggestions))
	require.Len(t, suggestions, 1)
	assert.Equal(t, "https://go.dev/doc/", suggestions[0].URL)
	assert.NotEmpty(t, suggestions[0].Category)
	assert.NotEmpty(t, suggestions[0].AliasCandidates)

	_, err = run(t, AnalyzeCmd, "{not json", "-", "--format", "json")
	assert.True(t, errors.IsInvalidRequestError(err), "got %v", err)
}

func TestProcessCommandFormats(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "bookmarks.html", exportHTML)

	out, err := run(t, ProcessCmd, "", path, "--format", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "title,url,folder,alias"))

	out, err = run(t, ProcessCmd, "", path, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Go Documentation")

	_, err = run(t, ProcessCmd, "", path, "--format", "xml")
	assert.True(t, errors.IsInvalidRequestError(err), "got %v", err)
}

func TestProcessPersistAndStats(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "bookmarks.html", exportHTML)
	dbPath := filepath.Join(dir, "shelf.db")

	_, err := run(t, ProcessCmd, "", path, "--format", "json", "--persist", "--db-path", dbPath)
	require.NoError(t, err)
	processPersist = false
	processDBPath = ""

	out, err := run(t, DbCmd, "", "stats", "--db-path", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Bookmarks:     2")

	out, err = run(t, DbCmd, "", "status", "--db-path", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "001_create_bookmarks.sql")
	dbPathFlag = ""
}

func TestProcessHonorsProjectConfig(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, "am.toml", "[parser]\nmax_depth = 1\n")
	path := writeFile(t, dir, "bookmarks.html", exportHTML)

	// Dev/Go sits at depth 2
	_, err := run(t, ProcessCmd, "", path, "--format", "json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMaxDepthExceeded), "got %v", err)
}

func TestUnitsCommands(t *testing.T) {
	isolate(t)

	out, err := run(t, UnitsCmd, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, parser.Name)
	assert.Contains(t, out, analyzer.Name)

	out, err = run(t, UnitsCmd, "", "describe", parser.Name)
	require.NoError(t, err)
	assert.Contains(t, out, "max_depth")

	_, err = run(t, UnitsCmd, "", "describe", "nope")
	assert.True(t, errors.IsNotFoundError(err), "got %v", err)
}

func TestAmSetGetWhere(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, AmCmd, "", "set", "analyzer.max_candidates", "2")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "am.toml"))

	out, err = run(t, AmCmd, "", "get", "analyzer.max_candidates")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))

	out, err = run(t, AmCmd, "", "where", "analyzer.max_candidates", "--format", "json")
	require.NoError(t, err)
	var intro am.ConfigIntrospection
	require.NoError(t, json.Unmarshal([]byte(out), &intro))
	require.Len(t, intro.Settings, 1)
	assert.Equal(t, am.SourceProject, intro.Settings[0].Source)
	whereFormat = "table"

	_, err = run(t, AmCmd, "", "get", "analyzer.nope")
	assert.True(t, errors.IsNotFoundError(err), "got %v", err)
}

func TestAmSetRejectsInvalidValue(t *testing.T) {
	isolate(t)
	_, err := run(t, AmCmd, "", "set", "analyzer.min_score", "3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig), "got %v", err)
}

func TestAmShowFormats(t *testing.T) {
	isolate(t)
	for _, format := range []string{"toml", "json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			out, err := run(t, AmCmd, "", "show", "--format", format)
			require.NoError(t, err)
			assert.Contains(t, out, "max_candidates")
		})
	}
	_, err := run(t, AmCmd, "", "show", "--format", "ini")
	assert.Error(t, err)
	configFormat = "toml"
}

func TestActiveConfigFile(t *testing.T) {
	dir := isolate(t)
	assert.Empty(t, activeConfigFile())

	user := writeFile(t, dir, "user.toml", "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".shelf"), 0o755))
	require.NoError(t, os.Rename(user, filepath.Join(dir, ".shelf", "am.toml")))
	assert.Equal(t, filepath.Join(dir, ".shelf", "am.toml"), activeConfigFile())

	project := writeFile(t, dir, "am.toml", "")
	assert.Equal(t, project, activeConfigFile())
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, VersionCmd, "", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"go_version"`)
}
