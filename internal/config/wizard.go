package config

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard starting from base.
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := DefaultConfig()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	validator := NewValidator()

	w.println("=== opsframe Configuration Wizard ===")
	w.println("")

	dataDir, err := w.ask("Data directory", cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dataDir

	toolsDefault := strings.Join(cfg.Tools.Dirs, ",")
	if toolsDefault == "" && cfg.DataDir != "" {
		toolsDefault = filepath.Join(cfg.DataDir, "tools")
	}
	dirs, err := w.ask("Tool directories (comma separated)", toolsDefault)
	if err != nil {
		return nil, err
	}
	cfg.Tools.Dirs = splitList(dirs)

	for {
		matrix, err := w.ask("Permission matrix file (empty for built-in roles)", cfg.Permissions.MatrixPath)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateMatrixPath(matrix); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.Permissions.MatrixPath = matrix
		break
	}

	for {
		raw, err := w.ask("Approval timeout in seconds", strconv.Itoa(cfg.Approvals.TimeoutSeconds))
		if err != nil {
			return nil, err
		}
		seconds, convErr := strconv.Atoi(raw)
		if convErr != nil {
			w.printf("Error: %q is not a number\n", raw)
			continue
		}
		if err := validator.ValidateApprovalTimeout(seconds); err != nil {
			w.printf("Error: %v\n", err)
			continue
		}
		cfg.Approvals.TimeoutSeconds = seconds
		break
	}

	backend, err := w.ask("Execution history backend (memory/sqlite)", cfg.History.Backend)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateHistoryBackend(backend); err != nil {
		w.printf("Warning: %v, using default (%s)\n", err, HistoryMemory)
		backend = HistoryMemory
	}
	cfg.History.Backend = backend
	if backend == HistorySQLite && cfg.History.Path == "" && cfg.DataDir != "" {
		cfg.History.Path = filepath.Join(cfg.DataDir, "history.db")
	}

	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		w.printf("Warning: %v, using default (info)\n", err)
		level = "info"
	}
	cfg.Logging.Level = level

	w.println("")
	w.println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) ask(prompt, def string) (string, error) {
	if def != "" {
		w.printf("%s [%s]: ", prompt, def)
	} else {
		w.printf("%s: ", prompt)
	}
	line, err := w.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (w *Wizard) println(s string) {
	fmt.Fprintln(w.out, s)
}

func (w *Wizard) printf(format string, args ...any) {
	fmt.Fprintf(w.out, format, args...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
