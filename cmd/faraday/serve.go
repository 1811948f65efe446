package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/faraday/faraday"
	"github.com/arthur-debert/faraday/internal/web"
)

func newServeCmd(app *cliApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the experiment API until interrupted.

Examples:
  faraday serve                         # listen on 127.0.0.1:8000
  faraday serve --listen 0.0.0.0:9000   # listen on all interfaces`,
		Args: cobra.NoArgs,
		RunE: app.withService(func(cmd *cobra.Command, args []string, svc *faraday.Service) error {
			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Handle shutdown signals
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					fmt.Fprintln(cmd.ErrOrStderr(), "\nShutting down...")
					cancel()
				case <-ctx.Done():
				}
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", svc.StorePath(), app.cfg.Listen)
			server := web.NewServer(svc, app.cfg.Listen, slog.Default())
			return server.Start(ctx)
		}),
	}
	cmd.Flags().String("listen", "", "address to listen on (default 127.0.0.1:8000)")
	_ = app.v.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	return cmd
}
