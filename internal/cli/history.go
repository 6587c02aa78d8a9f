package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var actionName string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List executed actions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			entries, err := s.platform.History(cmd.Context(), actionName, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EXECUTION\tACTION\tCOST\tROLE\tWHEN\tROLLED BACK")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t$%.2f\t%s\t%s\t%t\n",
					e.ExecutionID, e.Action, e.CostUSD, e.RoleID, e.Timestamp.Format(time.RFC3339), e.RolledBack)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&actionName, "action", "", "only this action")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func newRollbackCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <tool> <execution-id>",
		Short: "Reverse an earlier action execution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			ok, err := s.platform.Rollback(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("rollback of %s was not performed", args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %s (%s)\n", args[1], args[0])
			return nil
		},
	}
}
