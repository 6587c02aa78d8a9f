package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/harun/opsframe/internal/config"
	"github.com/harun/opsframe/internal/logger"
	"github.com/harun/opsframe/internal/platform"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the opsframe command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "opsframe",
		Short: "Opsframe - governed tool execution for operations agents",
		Long: `Opsframe runs tools on behalf of agents under role-based permissions,
human approval for risky actions, and an append-only audit trail.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is $HOME/.opsframe/opsframe.json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	rootCmd.AddCommand(
		newConfigureCmd(opts),
		newStatusCmd(opts),
		newToolsCmd(opts),
		newExecCmd(opts),
		newAccessCmd(opts),
		newAuditCmd(opts),
		newHistoryCmd(opts),
		newRollbackCmd(opts),
		newServeCmd(opts),
	)
	return rootCmd
}

// Execute runs the root command. It is called by main.main.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(o.configPath).Load()
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// session is a loaded platform plus the logger behind it.
type session struct {
	platform *platform.Platform
	logger   *logger.Logger
}

func (s *session) Close(ctx context.Context) error {
	err := s.platform.Close(ctx)
	if cerr := s.logger.Close(); err == nil {
		err = cerr
	}
	return err
}

// openSession loads config and assembles the platform. Console logs go to
// the command's stderr so stdout stays clean for results.
func (o *globalOptions) openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg := logger.FromSettings(cfg.Logging)
	logCfg.Out = cmd.ErrOrStderr()
	logCfg.Pretty = false
	if o.logLevel == "" {
		logCfg.Console = false
	}
	l, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	p, err := platform.New(cmd.Context(), cfg, l.Zerolog())
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	return &session{platform: p, logger: l}, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
