package ethchecksum

import (
	"context"
	"encoding/json"
	"time"
)

// ============================================================================
// Remote Aggregate Store
// ============================================================================

// AggregateStore is an opaque key-value store keyed by (account, key).
//
// Read requires no authorization and returns ErrNotFound when no aggregate
// exists. Write overwrites the aggregate wholesale and needs a signature,
// which the store obtains by prompting the wallet through provider.
type AggregateStore interface {
	Read(ctx context.Context, account, key string) (json.RawMessage, error)
	Write(ctx context.Context, provider Provider, account, key string, content interface{}, channel string) error
}

// ============================================================================
// Wallet Session
// ============================================================================

// Provider is an EIP-1193 style request interface exposed by a wallet
type Provider interface {
	Request(ctx context.Context, args RequestArguments) (json.RawMessage, error)
}

// Connector yields the provider of the connected wallet
type Connector interface {
	GetProvider(ctx context.Context) (Provider, error)
}

// WalletSession reports the current wallet connection
type WalletSession interface {
	// Current returns the connected account and its connector.
	// connected is false when no wallet is connected.
	Current() (account string, connector Connector, connected bool)

	// Disconnect ends the wallet session
	Disconnect()
}

// ============================================================================
// Notification Surface
// ============================================================================

// Command is a continuation attached to a notification. It runs when the
// user acts on, or dismisses, the toast that carries it.
type Command interface {
	Execute(ctx context.Context)
}

// ToastKind selects how a notification is rendered
type ToastKind int

const (
	ToastPrompt ToastKind = iota
	ToastSuccess
	ToastError
)

// ToastAction is a labelled button on a toast
type ToastAction struct {
	Label   string
	Command Command
}

// Toast is a single notification. Duration 0 means it stays until
// dismissed.
type Toast struct {
	ID        string
	Kind      ToastKind
	Message   string
	Duration  time.Duration
	Link      string
	Action    *ToastAction
	OnDismiss Command
}

// Notifier shows de-duplicated toasts.
//
// Show with an ID already on screen replaces that toast rather than stacking
// a second one. Dismiss withdraws a toast without running its OnDismiss
// command; OnDismiss runs only when the user closes the toast.
// Implementations must not run commands from within Show or Dismiss.
type Notifier interface {
	Show(toast Toast)
	Dismiss(id string)
}

// ============================================================================
// Concern
// ============================================================================

// Concern is one tracked behaviour driven by an Orchestrator: what to read,
// what to write, and what to tell the user.
type Concern interface {
	// Name identifies the concern in prompt ids, logs and metrics
	Name() string

	// Key is the aggregate key read and written for each account
	Key() string

	Prompt() PromptSpec
	Messages() Messages
	DismissPolicy() DismissPolicy

	// Accept reports whether raw is a well-formed aggregate for the account.
	// It must not change local state.
	Accept(ctx context.Context, account string, raw json.RawMessage) (bool, error)

	// Apply takes over any local payload an accepted aggregate carries. It
	// runs only once the account has settled.
	Apply(ctx context.Context, account string, raw json.RawMessage) error

	// Payload builds the content written when the user authorizes
	Payload(ctx context.Context, account string) (interface{}, error)

	// Stored is called after a write for the account succeeded
	Stored(account string, payload interface{})
}

// Recorder receives flow and store measurements
type Recorder interface {
	FlowOutcome(concern, outcome string)
	FlowFailure(concern, code string)
	StoreCall(concern, op string, err error, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) FlowOutcome(string, string)                       {}
func (noopRecorder) FlowFailure(string, string)                       {}
func (noopRecorder) StoreCall(string, string, error, time.Duration) {}
