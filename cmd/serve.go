package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hupe1980/eduswarm/api"
	"github.com/spf13/cobra"
)

func newServeCmd(ro *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and event stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				ro.cfg.HTTP.Addr = addr
			}
			a, err := wireApp(ro.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.logger.Warn("serve.close", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go a.watchMemory(ctx, 30*time.Second)

			handler := api.New(a.orch, func(o *api.Options) {
				o.Health = a.health
				o.Logger = a.logger.WithComponent("api")
			}).Handler()
			srv := &http.Server{
				Addr:              ro.cfg.HTTP.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("serve.listen", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			a.logger.Info("serve.shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, ok := a.orch.Session(); ok {
				if _, err := a.orch.EndSession(shutdownCtx, "server shutdown"); err != nil {
					a.logger.Warn("serve.end_session", "error", err)
				}
			}
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}
