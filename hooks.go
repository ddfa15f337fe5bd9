package ethchecksum

import (
	"context"
	"time"
)

// ============================================================================
// Orchestrator Hook Context Types
// ============================================================================

// ConnectContext contains information passed to connect hooks
type ConnectContext struct {
	Ctx       context.Context
	Concern   string
	Account   string
	FlowID    string
	Timestamp time.Time
}

// SettleSource names the path that settled an account
type SettleSource string

const (
	SettledByRead    SettleSource = "read"
	SettledByWrite   SettleSource = "write"
	SettledByDismiss SettleSource = "dismiss"
)

// SettleResultContext contains a settle outcome and its context
type SettleResultContext struct {
	ConnectContext
	Source   SettleSource
	Duration time.Duration
}

// FlowFailureContext contains a classified flow failure and its context
type FlowFailureContext struct {
	ConnectContext
	Stage    string
	Code     string
	Error    error
	Duration time.Duration
}

// ============================================================================
// Orchestrator Hook Result Types
// ============================================================================

// BeforeHookResult represents the result of a "before" hook
// If Abort is true, the flow will not start and Reason is logged
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// ============================================================================
// Orchestrator Hook Function Types
// ============================================================================

// BeforeConnectHook is called before the guard is consulted for a connect
// If it returns a result with Abort=true, OnConnect returns OutcomeSkipped
type BeforeConnectHook func(ConnectContext) (*BeforeHookResult, error)

// AfterSettleHook is called after an account settled
// Any error returned will be logged but will not affect the flow
type AfterSettleHook func(SettleResultContext) error

// OnFlowFailureHook is called when a read, authorization or write fails
// Any error returned will be logged but will not affect the flow
type OnFlowFailureHook func(FlowFailureContext) error

// ============================================================================
// Orchestrator Hook Registration Options
// ============================================================================

// WithBeforeConnectHook registers a hook to execute before a connect flow starts
func WithBeforeConnectHook(hook BeforeConnectHook) OrchestratorOption {
	return func(o *Orchestrator) {
		o.beforeConnectHooks = append(o.beforeConnectHooks, hook)
	}
}

// WithAfterSettleHook registers a hook to execute after an account settles
func WithAfterSettleHook(hook AfterSettleHook) OrchestratorOption {
	return func(o *Orchestrator) {
		o.afterSettleHooks = append(o.afterSettleHooks, hook)
	}
}

// WithOnFlowFailureHook registers a hook to execute when a flow step fails
func WithOnFlowFailureHook(hook OnFlowFailureHook) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onFlowFailureHooks = append(o.onFlowFailureHooks, hook)
	}
}

func (o *Orchestrator) runBeforeConnect(cc ConnectContext) (bool, string) {
	for _, hook := range o.beforeConnectHooks {
		result, err := hook(cc)
		if err != nil {
			o.logger.Warn("before connect hook failed", "concern", cc.Concern, "account", cc.Account, "error", err)
			continue
		}
		if result != nil && result.Abort {
			return true, result.Reason
		}
	}
	return false, ""
}

func (o *Orchestrator) runAfterSettle(sc SettleResultContext) {
	for _, hook := range o.afterSettleHooks {
		if err := hook(sc); err != nil {
			o.logger.Warn("after settle hook failed", "concern", sc.Concern, "account", sc.Account, "error", err)
		}
	}
}

func (o *Orchestrator) runOnFailure(fc FlowFailureContext) {
	for _, hook := range o.onFlowFailureHooks {
		if err := hook(fc); err != nil {
			o.logger.Warn("flow failure hook failed", "concern", fc.Concern, "account", fc.Account, "error", err)
		}
	}
}
