package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	ethchecksum "github.com/ethchecksum/ethchecksum"
	"github.com/ethchecksum/ethchecksum/internal/app"
	"github.com/ethchecksum/ethchecksum/internal/logging"
)

const (
	approveSign    = "sign"
	approveDismiss = "dismiss"
	approveNone    = "none"
)

func connectCmd() *cobra.Command {
	var (
		approve string
		chain   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Run one scripted wallet session against the aggregate API",
		Long: `Connect the WALLET_PRIVATE_KEY wallet, let the login and profile checks
run, answer any prompt as --approve says, print the outcome and disconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch approve {
			case approveSign, approveDismiss, approveNone:
			default:
				return fmt.Errorf("--approve must be one of sign, dismiss, none")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := app.New(ctx, cfg, logging.Logger, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close(shutdownTimeout)

			if chain != "" {
				id, err := hexutil.DecodeBig(chain)
				if err != nil {
					return fmt.Errorf("invalid --chain %q: %w", chain, err)
				}
				if err := a.SwitchChain(id); err != nil {
					return err
				}
			}

			if err := a.ConnectLocalWallet(); err != nil {
				return err
			}
			a.Wait()

			for _, prompt := range a.Prompts() {
				switch approve {
				case approveSign:
					a.Toaster.Click(ctx, prompt.ID)
				case approveDismiss:
					a.Toaster.Close(ctx, prompt.ID)
				}
			}

			printSession(cmd.OutOrStdout(), a)
			return nil
		},
	}
	cmd.Flags().StringVar(&approve, "approve", approveSign, "how to answer prompts: sign, dismiss or none")
	cmd.Flags().StringVar(&chain, "chain", "", "hex chain id the wallet reports (default REQUIRED_CHAIN_ID)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall session timeout")
	return cmd
}

func printSession(w io.Writer, a *app.App) {
	account, _, connected := a.Session.Current()
	if !connected {
		fmt.Fprintln(w, "wallet: disconnected")
	} else {
		fmt.Fprintf(w, "wallet:  %s\n", account)
		fmt.Fprintf(w, "login:   %s\n", a.Login.Status(account))
		fmt.Fprintf(w, "profile: %s\n", a.Profile.Orchestrator().Status(account))
	}

	for _, t := range a.Toaster.Active() {
		line := fmt.Sprintf("[%s] %s", toastKind(t.Kind), t.Message)
		if t.Link != "" {
			line += " " + t.Link
		}
		fmt.Fprintln(w, line)
	}
}

func toastKind(kind ethchecksum.ToastKind) string {
	switch kind {
	case ethchecksum.ToastPrompt:
		return "prompt"
	case ethchecksum.ToastSuccess:
		return "ok"
	default:
		return "error"
	}
}
