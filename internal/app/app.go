// Package app assembles a widget instance from configuration: local
// settings, the wallet session, both orchestrated concerns, the toaster,
// metrics and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	ethchecksum "github.com/ethchecksum/ethchecksum"
	"github.com/ethchecksum/ethchecksum/aleph"
	api "github.com/ethchecksum/ethchecksum/http"
	"github.com/ethchecksum/ethchecksum/internal/config"
	"github.com/ethchecksum/ethchecksum/login"
	"github.com/ethchecksum/ethchecksum/metrics"
	"github.com/ethchecksum/ethchecksum/notify"
	"github.com/ethchecksum/ethchecksum/profile"
	"github.com/ethchecksum/ethchecksum/settings"
	"github.com/ethchecksum/ethchecksum/signers/evm"
	"github.com/ethchecksum/ethchecksum/wallet"
)

// ErrNoLocalWallet is returned when no WALLET_PRIVATE_KEY is configured
var ErrNoLocalWallet = errors.New("no local wallet configured")

// Options overrides parts of the assembly. Zero values use the config.
type Options struct {
	// Store replaces the Aleph API client
	Store ethchecksum.AggregateStore
	// KV replaces the file store under SETTINGS_DIR
	KV settings.KV
	// Clock drives settle delays, toast timers and profile timestamps
	Clock clockwork.Clock
	// DarkFallback is the theme used when none was persisted
	DarkFallback bool
	// Sink additionally receives every toast event
	Sink notify.Sink
}

// App is one assembled widget instance
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	State    *settings.State
	Session  *wallet.Session
	Toaster  *notify.Toaster
	Login    *ethchecksum.Orchestrator
	Profile  *profile.Synchronizer
	Registry *prometheus.Registry

	// Provider is the local development wallet, nil without WALLET_PRIVATE_KEY
	Provider *evm.LocalProvider

	binding *wallet.Binding
}

// New assembles an App and starts dispatching wallet events to both concerns
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	kv := opts.KV
	if kv == nil {
		fileKV, err := settings.NewFileKV(cfg.SettingsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open settings dir: %w", err)
		}
		kv = fileKV
	}
	state, err := settings.LoadState(settings.NewStore(kv, logger), opts.DarkFallback)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	store := opts.Store
	if store == nil {
		store = aleph.NewClient(&aleph.Config{
			URL:    cfg.AlephAPIURL,
			Clock:  clock,
			Logger: logger.With("component", "aleph"),
		})
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		State:    state,
		Session:  wallet.NewSession(logger),
		Registry: metrics.NewRegistry(),
	}
	a.Toaster = notify.NewToaster(
		notify.WithClock(clock),
		notify.WithLogger(logger),
		notify.WithSink(func(ev notify.Event) {
			logger.Info("toast", "event", string(ev.Type), "id", ev.Toast.ID, "message", ev.Toast.Message)
			if opts.Sink != nil {
				opts.Sink(ev)
			}
		}),
	)

	recorder := metrics.NewFlowMetrics(a.Registry)
	shared := []ethchecksum.OrchestratorOption{
		ethchecksum.WithClock(clock),
		ethchecksum.WithSettleDelay(cfg.SettleDelay),
		ethchecksum.WithRequiredChainID(cfg.RequiredChainID),
		ethchecksum.WithChannel(cfg.AlephChannel),
		ethchecksum.WithRecorder(recorder),
		ethchecksum.WithLogger(logger),
		ethchecksum.WithOnFlowFailureHook(func(fc ethchecksum.FlowFailureContext) error {
			logger.Warn("flow failed", "concern", fc.Concern, "account", fc.Account, "flow", fc.FlowID, "stage", fc.Stage, "code", fc.Code, "error", fc.Error)
			return nil
		}),
	}

	a.Login = login.NewTracker(store, a.Session, a.Toaster, shared...)
	a.Profile = profile.NewSynchronizer(state, store, a.Session, a.Toaster, clock, shared...)

	if cfg.WalletPrivateKey != "" {
		provider, err := evm.NewLocalProviderFromPrivateKey(cfg.WalletPrivateKey, cfg.ChainID())
		if err != nil {
			return nil, err
		}
		a.Provider = provider
	}

	a.binding = wallet.Bind(ctx, a.Session, a.Login, a.Profile)
	return a, nil
}

// ConnectLocalWallet connects the development wallet
func (a *App) ConnectLocalWallet() error {
	if a.Provider == nil {
		return ErrNoLocalWallet
	}
	a.Session.Connect(a.Provider.Address(), wallet.StaticConnector{Provider: a.Provider})
	return nil
}

// SwitchChain makes the development wallet report chainID
func (a *App) SwitchChain(chainID *big.Int) error {
	if a.Provider == nil {
		return ErrNoLocalWallet
	}
	a.Provider.SwitchChain(chainID)
	return nil
}

// Wait blocks until every started connect flow has returned
func (a *App) Wait() {
	a.binding.Wait()
}

// Prompts returns the pending prompts on screen
func (a *App) Prompts() []ethchecksum.Toast {
	var prompts []ethchecksum.Toast
	for _, t := range a.Toaster.Active() {
		if t.Kind == ethchecksum.ToastPrompt {
			prompts = append(prompts, t)
		}
	}
	return prompts
}

// Server builds the HTTP API for this instance
func (a *App) Server() *api.Server {
	cfg := api.Config{
		State:    a.State,
		Session:  a.Session,
		Toaster:  a.Toaster,
		Login:    a.Login,
		Profile:  a.Profile,
		Registry: a.Registry,
		Logger:   a.Logger.With("component", "http"),
	}
	if a.Provider != nil {
		cfg.Connector = wallet.StaticConnector{Provider: a.Provider}
		cfg.Account = a.Provider.Address()
	}
	return api.NewServer(cfg)
}

// Close disconnects the wallet and waits for in-flight flows
func (a *App) Close(timeout time.Duration) {
	a.Session.Disconnect()

	done := make(chan struct{})
	go func() {
		a.binding.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		a.Logger.Warn("timed out waiting for connect flows")
	}
}
