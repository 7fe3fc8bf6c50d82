package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestConfigWatcher(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "am.toml")
	writeFile(t, path, "[analyzer]\nmax_candidates = 3\n")

	cw, err := NewConfigWatcher(path, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	cw.SetDebounce(10 * time.Millisecond)
	t.Cleanup(func() { cw.Stop() })

	reloaded := make(chan *Config, 4)
	cw.OnReload(func(c *Config) error {
		reloaded <- c
		return nil
	})
	cw.Start()

	require.NoError(t, os.WriteFile(path, []byte("[analyzer]\nmax_candidates = 2\n"), DefaultFilePermissions))
	select {
	case cfg := <-reloaded:
		assert.Equal(t, 2, cfg.Analyzer.MaxCandidates)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not picked up")
	}

	// invalid configs are not handed to callbacks
	require.NoError(t, os.WriteFile(path, []byte("[analyzer]\nmin_score = 4.0\n"), DefaultFilePermissions))
	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config delivered: %+v", cfg.Analyzer)
	case <-time.After(300 * time.Millisecond):
	}

	assert.NoError(t, cw.Stop())
	assert.NoError(t, cw.Stop())
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/x/am.toml.back2"))
	assert.False(t, isBackupFile("/x/am.toml"))
}
