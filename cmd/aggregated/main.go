// Command aggregated runs a local aggregate API for development. It accepts
// signed AGGREGATE messages, verifies them and serves the resulting
// aggregates the way a public API node does.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethchecksum/ethchecksum/aleph"
	"github.com/ethchecksum/ethchecksum/aleph/devserver"
	"github.com/ethchecksum/ethchecksum/internal/config"
	"github.com/ethchecksum/ethchecksum/internal/logging"
	"github.com/ethchecksum/ethchecksum/metrics"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr      string
		seed      string
		writeRate float64
		burst     int
	)

	cmd := &cobra.Command{
		Use:          "aggregated",
		Short:        "Run a local aggregate API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
			if addr == "" {
				addr = cfg.AggregateDevAddr
			}

			store := aleph.NewInMemoryStore(nil)
			if seed != "" {
				n, err := loadSeed(store, seed)
				if err != nil {
					return err
				}
				logging.Logger.Info("seeded aggregates", "file", seed, "count", n)
			}

			server := devserver.NewServer(store, devserver.Config{
				WriteRatePerSecond: writeRate,
				WriteBurst:         burst,
				Registry:           metrics.NewRegistry(),
				Logger:             logging.Logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $AGGREGATE_DEV_ADDR)")
	cmd.Flags().StringVar(&seed, "seed", "", `JSON file of {"<address>": {"<key>": <value>}} to preload`)
	cmd.Flags().Float64Var(&writeRate, "write-rate", 5, "message submissions per second per client (0 disables)")
	cmd.Flags().IntVar(&burst, "write-burst", 10, "message submission burst per client")
	return cmd
}

// loadSeed preloads aggregates from a JSON file and returns how many were stored
func loadSeed(store *aleph.InMemoryStore, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var accounts map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return 0, fmt.Errorf("invalid seed file %s: %w", path, err)
	}

	n := 0
	for account, keys := range accounts {
		for key, value := range keys {
			if err := store.Put(account, key, value); err != nil {
				return n, fmt.Errorf("invalid seed entry %s/%s: %w", account, key, err)
			}
			n++
		}
	}
	return n, nil
}
