package cli

import (
	"errors"
	"fmt"

	"github.com/harun/opsframe/internal/config"
	"github.com/spf13/cobra"
)

func newConfigureCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Run interactive configuration wizard",
		Long: `Run an interactive configuration wizard to set up opsframe.
The wizard asks for tool directories, the permission matrix, approval timeout,
history storage and log level. Existing values are offered as defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader := config.NewLoader(opts.configPath)

			base, err := loader.Load()
			if err != nil {
				return fmt.Errorf("failed to load current configuration: %w", err)
			}

			cfg, err := config.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout()).Run(base)
			if err != nil {
				return fmt.Errorf("configuration failed: %w", err)
			}

			if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
				return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
			}

			if err := loader.Save(cfg); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nConfiguration saved to: %s\n", loader.GetConfigPath())
			fmt.Fprintln(out, "You can now list tools with: opsframe tools list")
			return nil
		},
	}
}
