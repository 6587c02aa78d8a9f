package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/harun/opsframe/pkg/rbac"
	"github.com/spf13/cobra"
)

func newAccessCmd(opts *globalOptions) *cobra.Command {
	accessCmd := &cobra.Command{
		Use:   "access",
		Short: "Query the permission engine",
	}
	accessCmd.AddCommand(
		newAccessCheckCmd(opts),
		newAccessPermsCmd(opts),
		newAccessRolesCmd(opts),
		newAccessEscalationCmd(opts),
	)
	return accessCmd
}

func newAccessCheckCmd(opts *globalOptions) *cobra.Command {
	var req rbac.AccessRequest

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Decide whether a role may call a tool",
		Long:  `Decide whether a role may call a tool. The decision is written to the audit log.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			d := s.platform.CheckAccess(req)
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"role":                d.Role,
				"tool":                d.Tool,
				"domain":              d.Domain,
				"allowed":             d.Allowed,
				"reason":              d.Reason,
				"category":            d.Category,
				"missing_permissions": d.Missing,
				"permissions_checked": d.Checked,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.Role, "role", "", "role to check")
	flags.StringVar(&req.Tool, "tool", "", "tool to check")
	flags.StringVar(&req.Domain, "domain", "", "business domain")
	flags.StringVar(&req.MissionID, "mission", "cli", "mission id recorded in the audit trail")
	flags.StringVar(&req.UserID, "user", "", "user id recorded in the audit trail")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}

func newAccessPermsCmd(opts *globalOptions) *cobra.Command {
	var role, domain string

	cmd := &cobra.Command{
		Use:   "perms",
		Short: "List the effective permissions of a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			perms, err := s.platform.Checker().GetPermissions(role, domain)
			if err != nil {
				return err
			}
			for _, p := range perms.Strings() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "role to resolve")
	cmd.Flags().StringVar(&domain, "domain", "", "apply this domain's overlay")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newAccessRolesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List known roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLEVEL\tAPPROVER\tPERMISSIONS")
			for _, r := range s.platform.Checker().Roles() {
				fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", r.ID, r.Level, r.CanApprove, strings.Join(r.Permissions.Strings(), ","))
			}
			return w.Flush()
		},
	}
}

func newAccessEscalationCmd(opts *globalOptions) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "escalation",
		Short: "Show where a role escalates to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			path, ok := s.platform.Checker().Escalation(role)
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No escalation path for %s\n", role)
				return nil
			}

			perms := make([]string, len(path.Permissions))
			for i, p := range path.Permissions {
				perms[i] = string(p)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"from":        path.From,
				"escalate_to": path.EscalateTo,
				"permissions": perms,
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "role to look up")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
