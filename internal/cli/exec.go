package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type execOptions struct {
	role        string
	domain      string
	missionID   string
	userID      string
	params      string
	dryRun      bool
	maxCost     float64
	yes         bool
	interactive bool
}

func newExecCmd(opts *globalOptions) *cobra.Command {
	o := &execOptions{}

	cmd := &cobra.Command{
		Use:   "exec <tool>",
		Short: "Execute a tool as a role",
		Long: `Execute a tool through the full pipeline: permission check, parameter
validation, approval for risky actions, bounded execution and audit.

Approval requests are answered on this terminal when --interactive is set
or approvals.interactive is enabled in the config. --yes approves them
without prompting.`,
		Example: `  opsframe exec hris_lookup --role hr_recruiter --domain hr --params '{"employee_id":"E-1001"}'
  opsframe exec payment_transfer --role finance_manager --domain finance --params '{"recipient":"acme","amount_usd":40}' --interactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, opts, o, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.role, "role", "", "role the tool runs as")
	flags.StringVar(&o.domain, "domain", "", "business domain of the call")
	flags.StringVar(&o.missionID, "mission", "cli", "mission id recorded in the audit trail")
	flags.StringVar(&o.userID, "user", "", "user on whose behalf the tool runs")
	flags.StringVar(&o.params, "params", "{}", "tool parameters as a JSON object")
	flags.BoolVar(&o.dryRun, "dry-run", false, "validate and assess without side effects")
	flags.Float64Var(&o.maxCost, "max-cost", 0, "refuse actions estimated above this many USD (0 for no limit)")
	flags.BoolVarP(&o.yes, "yes", "y", false, "approve every approval request")
	flags.BoolVar(&o.interactive, "interactive", false, "prompt for approval requests")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func runExec(cmd *cobra.Command, opts *globalOptions, o *execOptions, toolName string) error {
	var params map[string]any
	if err := json.Unmarshal([]byte(o.params), &params); err != nil {
		return fmt.Errorf("invalid --params: %w", err)
	}

	s, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close(cmd.Context())
	p := s.platform

	if o.yes || o.interactive || p.Config().Approvals.Interactive {
		answer := ""
		if o.yes {
			answer = "yes"
		}
		approver := newTerminalApprover(cmd.InOrStdin(), cmd.ErrOrStderr(), answer)
		defer approver.attach(p.Bus())()
	}

	execCtx, err := p.ContextFor(o.role, o.domain, o.missionID)
	if err != nil {
		return err
	}
	execCtx.UserID = o.userID
	execCtx.DryRun = o.dryRun
	execCtx.MaxCostUSD = o.maxCost

	result := p.Execute(cmd.Context(), toolName, params, execCtx)
	if err := printJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%s failed (%s): %s", toolName, result.Category, result.Error)
	}
	return nil
}
