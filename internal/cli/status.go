package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/harun/opsframe/internal/config"
	"github.com/harun/opsframe/pkg/audit"
	"github.com/spf13/cobra"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and registry status",
		Long:  `Show where opsframe keeps its data, which tools are loaded and how much has been audited.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			p := s.platform
			cfg := p.Config()
			stats := p.Registry().Statistics()

			auditStats, err := p.Audit().Stats(audit.Filter{})
			if err != nil {
				return fmt.Errorf("failed to read audit log: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config: %s\n", config.NewLoader(opts.configPath).GetConfigPath())
			fmt.Fprintf(out, "Data dir: %s\n", cfg.DataDir)
			fmt.Fprintf(out, "Tools: %d (%d actions)\n", stats.Total, stats.Actions)

			domains := make([]string, 0, len(stats.ByDomain))
			for domain := range stats.ByDomain {
				domains = append(domains, domain)
			}
			sort.Strings(domains)
			for _, domain := range domains {
				fmt.Fprintf(out, "  %s: %d\n", domain, stats.ByDomain[domain])
			}

			fmt.Fprintf(out, "Approval timeout: %s\n", formatDuration(cfg.Approvals.Timeout()))
			fmt.Fprintf(out, "History: %s\n", cfg.History.Backend)
			fmt.Fprintf(out, "Audit: %s (%d events, %d denied)\n", cfg.Audit.Path, auditStats.Total, auditStats.Denied)
			return nil
		},
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
