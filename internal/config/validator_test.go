package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level), level)
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
}

func TestValidateHistoryBackend(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateHistoryBackend("memory"))
	assert.NoError(t, v.ValidateHistoryBackend("sqlite"))
	assert.Error(t, v.ValidateHistoryBackend("redis"))
}

func TestValidateApprovalTimeout(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateApprovalTimeout(300))
	assert.Error(t, v.ValidateApprovalTimeout(0))
	assert.Error(t, v.ValidateApprovalTimeout(86401))
}

func TestValidateSchedule(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateSchedule(""))
	assert.NoError(t, v.ValidateSchedule("0 3 * * *"))
	assert.NoError(t, v.ValidateSchedule("@daily"))
	assert.Error(t, v.ValidateSchedule("every night"))
}

func TestValidateMatrixPath(t *testing.T) {
	v := NewValidator()
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	assert.NoError(t, v.ValidateMatrixPath(""))
	assert.NoError(t, v.ValidateMatrixPath(path))
	assert.Error(t, v.ValidateMatrixPath(dir))
	assert.Error(t, v.ValidateMatrixPath(filepath.Join(dir, "missing.yaml")))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("defaults are valid", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(DefaultConfig()))
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logging.Level = "loud"
		cfg.History.Backend = "redis"
		cfg.Audit.PurgeSchedule = "sometimes"
		cfg.Bus.HistorySize = 0
		cfg.Tools.Dirs = []string{" "}

		errs := v.ValidateConfig(cfg)
		require.Len(t, errs, 5)

		var joined []string
		for _, err := range errs {
			joined = append(joined, err.Error())
		}
		all := strings.Join(joined, "\n")
		assert.Contains(t, all, "invalid log level")
		assert.Contains(t, all, "tools.dirs[0]")
	})
}
