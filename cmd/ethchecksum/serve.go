package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethchecksum/ethchecksum/internal/app"
	"github.com/ethchecksum/ethchecksum/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		addr        string
		connect     bool
		darkDefault bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the widget API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = ":" + cfg.Port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.Logger
			a, err := app.New(ctx, cfg, logger, app.Options{DarkFallback: darkDefault})
			if err != nil {
				return err
			}
			defer a.Close(shutdownTimeout)

			if connect {
				if err := a.ConnectLocalWallet(); err != nil {
					return err
				}
			}

			server := a.Server()
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	cmd.Flags().BoolVar(&connect, "connect", false, "connect the WALLET_PRIVATE_KEY wallet at startup")
	cmd.Flags().BoolVar(&darkDefault, "dark", false, "theme used when none was saved")
	return cmd
}
