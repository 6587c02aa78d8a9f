package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/opsframe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func TestConfigureCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		out, err := runCLI(t, "", "configure", "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "interactive configuration wizard")
	})

	t.Run("saves wizard answers", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("OPSFRAME_DATA_DIR", dir)
		path := filepath.Join(dir, "opsframe.json")

		input := "\n\n\n45\nsqlite\n\n"
		out, err := runCLI(t, input, "--config", path, "configure")
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration saved to: "+path)

		cfg, err := config.NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, 45, cfg.Approvals.TimeoutSeconds)
		assert.Equal(t, config.HistorySQLite, cfg.History.Backend)
		assert.Equal(t, dir, cfg.DataDir)
	})

	t.Run("input ends early", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "opsframe.json")

		_, err := runCLI(t, "", "--config", path, "configure")
		assert.ErrorContains(t, err, "configuration failed")
		assert.NoFileExists(t, path)
	})
}
