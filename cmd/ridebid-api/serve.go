// README: serve command; HTTP API plus the cleanup sweeper until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	httptransport "ridebid/internal/http"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the auction sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			gin.SetMode(gin.ReleaseMode)
			server := &http.Server{
				Addr: cfg.HTTP.Addr,
				Handler: httptransport.NewRouter(httptransport.RouterDeps{
					Auction: a.auction,
					Ride:    a.ride,
					Logger:  log,
				}),
				ReadHeaderTimeout: 5 * time.Second,
			}

			// the sweeper must be gone before the deferred close drains the workers
			sweepCtx, stopSweep := context.WithCancel(ctx)
			sweepDone := make(chan struct{})
			go func() {
				defer close(sweepDone)
				a.auction.RunSweeper(sweepCtx)
			}()
			defer func() {
				stopSweep()
				<-sweepDone
			}()

			errCh := make(chan error, 1)
			go func() {
				log.Info("http listening", "addr", cfg.HTTP.Addr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}
