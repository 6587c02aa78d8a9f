package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToolsCmd(opts *globalOptions) *cobra.Command {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect registered tools",
	}
	toolsCmd.AddCommand(newToolsListCmd(opts), newToolsShowCmd(opts), newToolsStatsCmd(opts))
	return toolsCmd
}

func newToolsListCmd(opts *globalOptions) *cobra.Command {
	var domain, role string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tools, optionally filtered by domain and role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			manifests := s.platform.Tools(domain, role)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tDOMAINS\tROLES\tDESCRIPTION")
			for _, m := range manifests {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					m.Name, m.Version,
					strings.Join(m.Domains, ","),
					strings.Join(m.AllowedRoles, ","),
					m.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "only tools serving this domain")
	cmd.Flags().StringVar(&role, "role", "", "only tools this role may call")
	return cmd
}

func newToolsShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <tool>",
		Short: "Print a tool manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			manifest, ok := s.platform.Manifest(args[0])
			if !ok {
				return fmt.Errorf("tool not found: %s", args[0])
			}
			return printJSON(cmd.OutOrStdout(), manifest)
		},
	}
}

func newToolsStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count tools per domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			return printJSON(cmd.OutOrStdout(), s.platform.Registry().Statistics())
		},
	}
}
