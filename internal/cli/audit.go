package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/harun/opsframe/pkg/audit"
	"github.com/spf13/cobra"
)

func newAuditCmd(opts *globalOptions) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and maintain the audit log",
	}
	auditCmd.AddCommand(newAuditQueryCmd(opts), newAuditStatsCmd(opts), newAuditPurgeCmd(opts))
	return auditCmd
}

// filterFlags binds the audit filter flags shared by query and stats.
type filterFlags struct {
	role    string
	tool    string
	domain  string
	kind    string
	allowed string
	window  time.Duration
	limit   int
}

func (f *filterFlags) register(cmd *cobra.Command, withLimit bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.role, "role", "", "only events for this role")
	flags.StringVar(&f.tool, "tool", "", "only events for this tool")
	flags.StringVar(&f.domain, "domain", "", "only events in this domain")
	flags.StringVar(&f.kind, "kind", "", "only events of this kind (access, execution, rollback)")
	flags.StringVar(&f.allowed, "allowed", "", "only granted (true) or denied (false) events")
	flags.DurationVar(&f.window, "since", 0, "only events within this trailing window, e.g. 24h")
	if withLimit {
		flags.IntVar(&f.limit, "limit", 50, "keep only the most recent N events (0 for all)")
	}
}

func (f *filterFlags) filter() (audit.Filter, error) {
	filter := audit.Filter{
		RoleID:   f.role,
		ToolName: f.tool,
		Domain:   f.domain,
		Kind:     f.kind,
		Window:   f.window,
		Limit:    f.limit,
	}
	if f.allowed != "" {
		allowed, err := strconv.ParseBool(f.allowed)
		if err != nil {
			return audit.Filter{}, fmt.Errorf("invalid --allowed value %q: %w", f.allowed, err)
		}
		filter.Allowed = audit.Granted(allowed)
	}
	return filter, nil
}

func newAuditQueryCmd(opts *globalOptions) *cobra.Command {
	f := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print matching audit events as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := f.filter()
			if err != nil {
				return err
			}

			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			events, err := s.platform.Audit().Query(filter)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}

	f.register(cmd, true)
	return cmd
}

func newAuditStatsCmd(opts *globalOptions) *cobra.Command {
	f := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := f.filter()
			if err != nil {
				return err
			}

			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			stats, err := s.platform.Audit().Stats(filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}

	f.register(cmd, false)
	return cmd
}

func newAuditPurgeCmd(opts *globalOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete audit events older than a number of days",
		Long: `Delete audit events older than --days. Without --days the configured
audit.retention_days is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			if days == 0 {
				days = s.platform.Config().Audit.RetentionDays
			}
			if days <= 0 {
				return fmt.Errorf("no retention configured; pass --days")
			}

			removed, err := s.platform.Audit().Purge(days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d audit events older than %d days\n", removed, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention in days")
	return cmd
}
