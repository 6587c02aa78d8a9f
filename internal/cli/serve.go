package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/harun/opsframe/pkg/gateway"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var rpm, maxConcurrent int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve JSON-RPC over stdin and stdout",
		Long: `Serve line-delimited JSON-RPC 2.0 over stdin and stdout for an
orchestrator process. Approval requests are sent to the client as
"approval.request" events and answered with the approvals.respond method.
The server exits when stdin closes or on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := opts.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close(context.Background())

			p := s.platform
			if err := p.Start(); err != nil {
				return err
			}

			srv, err := gateway.NewServer(gateway.Config{
				Backend:           p,
				Bus:               p.Bus(),
				RequestsPerMinute: rpm,
				MaxConcurrent:     maxConcurrent,
				Logger:            s.logger.Zerolog(),
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			err = srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVar(&rpm, "rpm", 0, "requests per minute (0 for no limit)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 16, "requests handled at once (0 for no limit)")
	return cmd
}
