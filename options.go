package ethchecksum

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithGuard injects the tracking guard. Each concern must own its own guard.
//
// Default: a fresh, empty guard
func WithGuard(guard *Guard) OrchestratorOption {
	return func(o *Orchestrator) {
		if guard != nil {
			o.guard = guard
		}
	}
}

// WithClock sets the clock used for the settle window
func WithClock(clock clockwork.Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithSettleDelay sets how long a connect flow waits before its first read.
//
// Default: DefaultSettleDelay
func WithSettleDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.settleDelay = d
		}
	}
}

// WithRequiredChainID sets the hex chain id a wallet must report to write.
//
// Default: MainnetChainID
func WithRequiredChainID(chainID string) OrchestratorOption {
	return func(o *Orchestrator) {
		if chainID != "" {
			o.requiredChainID = chainID
		}
	}
}

// WithChannel sets the channel aggregates are written to.
//
// Default: DefaultChannel
func WithChannel(channel string) OrchestratorOption {
	return func(o *Orchestrator) {
		if channel != "" {
			o.channel = channel
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(recorder Recorder) OrchestratorOption {
	return func(o *Orchestrator) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}
