package cli

import (
	"bufio"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harun/opsframe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	path := writeConfig(t, nil)

	out, err := runCLI(t, "", "--config", path, "status")
	require.NoError(t, err)

	assert.Contains(t, out, "Tools: 3 (2 actions)")
	assert.Contains(t, out, "finance: 2")
	assert.Contains(t, out, "Approval timeout: 2s")
	assert.Contains(t, out, "History: memory")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}

func TestToolsCommands(t *testing.T) {
	path := writeConfig(t, nil)

	t.Run("list by domain", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "tools", "list", "--domain", "finance")
		require.NoError(t, err)

		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "payment_transfer")
		assert.Contains(t, out, "email_send")
		assert.NotContains(t, out, "hris_lookup")
	})

	t.Run("list by role", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "tools", "list", "--role", "hr_recruiter")
		require.NoError(t, err)

		assert.Contains(t, out, "hris_lookup")
		assert.NotContains(t, out, "payment_transfer")
	})

	t.Run("show", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "tools", "show", "hris_lookup")
		require.NoError(t, err)

		var manifest map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &manifest))
		assert.Equal(t, "hris_lookup", manifest["name"])
		assert.Contains(t, manifest, "input_schema")
	})

	t.Run("show unknown", func(t *testing.T) {
		_, err := runCLI(t, "", "--config", path, "tools", "show", "nope")
		assert.ErrorContains(t, err, "tool not found")
	})

	t.Run("stats", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "tools", "stats")
		require.NoError(t, err)

		var stats map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &stats))
		assert.Equal(t, float64(3), stats["total"])
		assert.Equal(t, float64(2), stats["actions"])
	})
}

func decodeResult(t *testing.T, out string) map[string]any {
	t.Helper()
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	return result
}

func TestExecCommand(t *testing.T) {
	path := writeConfig(t, nil)

	t.Run("success", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "exec", "hris_lookup",
			"--role", "hr_recruiter", "--domain", "hr", "--params", `{"employee_id":"E-1001"}`)
		require.NoError(t, err)

		result := decodeResult(t, out)
		assert.Equal(t, true, result["success"])
		assert.Contains(t, out, "Dana Whitfield")
	})

	t.Run("permission denied", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "exec", "payment_transfer",
			"--role", "viewer", "--domain", "finance", "--params", `{"recipient":"acme","amount_usd":5}`)
		require.Error(t, err)

		result := decodeResult(t, out)
		assert.Equal(t, false, result["success"])
		assert.Equal(t, "PermissionDenied", result["category"])
	})

	t.Run("role is required", func(t *testing.T) {
		_, err := runCLI(t, "", "--config", path, "exec", "hris_lookup")
		assert.ErrorContains(t, err, "role")
	})

	t.Run("invalid params", func(t *testing.T) {
		_, err := runCLI(t, "", "--config", path, "exec", "hris_lookup", "--role", "hr_recruiter", "--params", "{")
		assert.ErrorContains(t, err, "invalid --params")
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := runCLI(t, "", "--config", path, "exec", "hris_lookup", "--role", "ghost")
		assert.Error(t, err)
	})

	t.Run("approved on the terminal", func(t *testing.T) {
		out, err := runCLI(t, "y\n", "--config", path, "exec", "payment_transfer",
			"--role", "finance_manager", "--domain", "finance", "--interactive",
			"--params", `{"recipient":"acme","amount_usd":40}`)
		require.NoError(t, err)
		assert.Equal(t, true, decodeResult(t, out)["success"])
	})

	t.Run("declined on the terminal", func(t *testing.T) {
		out, err := runCLI(t, "n\n", "--config", path, "exec", "payment_transfer",
			"--role", "finance_manager", "--domain", "finance", "--interactive",
			"--params", `{"recipient":"acme","amount_usd":40}`)
		require.Error(t, err)
		assert.Equal(t, "Declined", decodeResult(t, out)["category"])
	})

	t.Run("dry run needs no approval", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "exec", "payment_transfer",
			"--role", "finance_manager", "--domain", "finance", "--dry-run",
			"--params", `{"recipient":"acme","amount_usd":40}`)
		require.NoError(t, err)
		assert.Equal(t, true, decodeResult(t, out)["success"])
	})
}

func TestHistoryAndRollback(t *testing.T) {
	path := writeConfig(t, func(cfg *config.Config) {
		cfg.History.Backend = config.HistorySQLite
		cfg.History.Path = filepath.Join(cfg.DataDir, "history.db")
	})

	out, err := runCLI(t, "", "--config", path, "exec", "payment_transfer",
		"--role", "finance_manager", "--domain", "finance", "--yes",
		"--params", `{"recipient":"acme","amount_usd":40}`)
	require.NoError(t, err)

	metadata, ok := decodeResult(t, out)["metadata"].(map[string]any)
	require.True(t, ok)
	executionID, ok := metadata["execution_id"].(string)
	require.True(t, ok)

	out, err = runCLI(t, "", "--config", path, "history", "--json")
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, executionID, entries[0]["execution_id"])

	out, err = runCLI(t, "", "--config", path, "history")
	require.NoError(t, err)
	assert.Contains(t, out, executionID)
	assert.Contains(t, out, "payment_transfer")

	out, err = runCLI(t, "", "--config", path, "rollback", "payment_transfer", executionID)
	require.NoError(t, err)
	assert.Contains(t, out, "Rolled back "+executionID)

	_, err = runCLI(t, "", "--config", path, "rollback", "payment_transfer", executionID)
	assert.Error(t, err, "an execution is rolled back at most once")

	_, err = runCLI(t, "", "--config", path, "rollback", "hris_lookup", executionID)
	assert.Error(t, err)
}

func TestAccessCommands(t *testing.T) {
	path := writeConfig(t, nil)

	t.Run("check", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "access", "check",
			"--role", "viewer", "--tool", "payment_transfer", "--domain", "finance")
		require.NoError(t, err)

		var decision map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &decision))
		assert.Equal(t, false, decision["allowed"])
		assert.NotEmpty(t, decision["missing_permissions"])
	})

	t.Run("perms", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "access", "perms", "--role", "hr_recruiter")
		require.NoError(t, err)
		assert.Contains(t, strings.Fields(out), "hris_read")
	})

	t.Run("perms unknown role", func(t *testing.T) {
		_, err := runCLI(t, "", "--config", path, "access", "perms", "--role", "ghost")
		assert.Error(t, err)
	})

	t.Run("roles", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "access", "roles")
		require.NoError(t, err)
		assert.Contains(t, out, "finance_manager")
		assert.Contains(t, out, "viewer")
	})

	t.Run("escalation", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "access", "escalation", "--role", "viewer")
		require.NoError(t, err)
		assert.Contains(t, out, "No escalation path for viewer")
	})
}

func TestAccessEscalationFromMatrix(t *testing.T) {
	matrix := filepath.Join(t.TempDir(), "matrix.yaml")
	require.NoError(t, writeFile(matrix, "escalation_paths:\n  viewer:\n    escalate_to: hr_manager\n    allowed_permissions: [hris_read]\n"))
	path := writeConfig(t, func(cfg *config.Config) {
		cfg.Permissions.MatrixPath = matrix
	})

	out, err := runCLI(t, "", "--config", path, "access", "escalation", "--role", "viewer")
	require.NoError(t, err)
	assert.Contains(t, out, `"escalate_to": "hr_manager"`)
}

func TestAuditCommands(t *testing.T) {
	path := writeConfig(t, nil)

	_, err := runCLI(t, "", "--config", path, "access", "check", "--role", "viewer", "--tool", "payment_transfer")
	require.NoError(t, err)
	_, err = runCLI(t, "", "--config", path, "exec", "hris_lookup",
		"--role", "hr_recruiter", "--domain", "hr", "--params", `{"employee_id":"E-1001"}`)
	require.NoError(t, err)

	t.Run("query", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "audit", "query")
		require.NoError(t, err)

		var lines int
		scanner := bufio.NewScanner(strings.NewReader(out))
		for scanner.Scan() {
			lines++
		}
		assert.Equal(t, 2, lines)
	})

	t.Run("query denied only", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "audit", "query", "--allowed", "false")
		require.NoError(t, err)

		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &ev))
		assert.Equal(t, "payment_transfer", ev["tool_name"])
		assert.Equal(t, "viewer", ev["role_id"])
	})

	t.Run("query bad allowed flag", func(t *testing.T) {
		_, err := runCLI(t, "", "--config", path, "audit", "query", "--allowed", "maybe")
		assert.ErrorContains(t, err, "invalid --allowed")
	})

	t.Run("stats", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "audit", "stats", "--since", "1h")
		require.NoError(t, err)

		var stats map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &stats))
		assert.Equal(t, float64(2), stats["total"])
		assert.Equal(t, float64(1), stats["denied"])
	})

	t.Run("purge uses configured retention", func(t *testing.T) {
		out, err := runCLI(t, "", "--config", path, "audit", "purge")
		require.NoError(t, err)
		assert.Contains(t, out, "Purged 0 audit events older than 90 days")
	})
}

func TestAuditPurgeWithoutRetention(t *testing.T) {
	path := writeConfig(t, func(cfg *config.Config) {
		cfg.Audit.RetentionDays = 0
	})

	_, err := runCLI(t, "", "--config", path, "audit", "purge")
	assert.ErrorContains(t, err, "pass --days")

	out, err := runCLI(t, "", "--config", path, "audit", "purge", "--days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0")
}

func TestServeCommand(t *testing.T) {
	path := writeConfig(t, nil)

	input := strings.Join([]string{
		`{"id":"1","method":"tools.list","params":{"domain":"hr"}}`,
		`{"id":"2","method":"access.check","params":{"role":"hr_recruiter","tool":"hris_lookup","domain":"hr"}}`,
	}, "\n") + "\n"

	out, err := runCLI(t, input, "--config", path, "serve")
	require.NoError(t, err)

	responses := map[string]map[string]any{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		var frame map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &frame))
		responses[frame["id"].(string)] = frame
	}

	require.Contains(t, responses, "1")
	tools, ok := responses["1"]["result"].([]any)
	require.True(t, ok)
	var names []string
	for _, m := range tools {
		names = append(names, m.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{"email_send", "hris_lookup"}, names)

	require.Contains(t, responses, "2")
	assert.Equal(t, true, responses["2"]["result"].(map[string]any)["allowed"])
}
