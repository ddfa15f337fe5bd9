// Package login tracks the first visit of every wallet account: on a
// miss it asks the user to sign once, and the signed aggregate marks the
// account as seen on every later visit.
package login

import (
	"context"
	"encoding/json"

	ethchecksum "github.com/ethchecksum/ethchecksum"
	"github.com/ethchecksum/ethchecksum/aleph"
)

const (
	// Name identifies the concern in prompt ids, logs and metrics
	Name = "login"

	// Key is the aggregate key of the login marker
	Key = "login"
)

// Record is the constant marker written for a recorded visit
type Record struct {
	Login int `json:"login"`
}

var recordSchema = aleph.MustSchema(`{
	"type": "object",
	"required": ["login"],
	"properties": {
		"login": {"type": "integer", "minimum": 1}
	}
}`)

// Concern is the login tracker concern
type Concern struct{}

// New creates the login concern
func New() *Concern {
	return &Concern{}
}

func (c *Concern) Name() string { return Name }
func (c *Concern) Key() string  { return Key }

func (c *Concern) Prompt() ethchecksum.PromptSpec {
	return ethchecksum.PromptSpec{
		Message:     "Welcome! Please sign a message to verify your first visit.",
		ActionLabel: "Sign",
	}
}

func (c *Concern) Messages() ethchecksum.Messages {
	return ethchecksum.Messages{
		Found:      "Welcome back!",
		Stored:     "Welcome! Your visit has been recorded.",
		WrongChain: "Please switch to Ethereum mainnet and try again.",
		Rejected:   "Signature rejected.",
		Failed:     "Signing failed. Please try reconnecting.",
	}
}

// DismissPolicy: dismissing the welcome prompt is an opt-out, so the
// wallet is disconnected
func (c *Concern) DismissPolicy() ethchecksum.DismissPolicy {
	return ethchecksum.DismissDisconnect
}

// Accept reports whether raw is a login marker
func (c *Concern) Accept(_ context.Context, _ string, raw json.RawMessage) (bool, error) {
	if err := recordSchema.Validate(raw).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Apply does nothing; the marker carries no local state
func (c *Concern) Apply(context.Context, string, json.RawMessage) error {
	return nil
}

func (c *Concern) Payload(context.Context, string) (interface{}, error) {
	return Record{Login: 1}, nil
}

func (c *Concern) Stored(string, interface{}) {}

// NewTracker creates the orchestrator that drives the login concern
func NewTracker(store ethchecksum.AggregateStore, wallet ethchecksum.WalletSession, notifier ethchecksum.Notifier, opts ...ethchecksum.OrchestratorOption) *ethchecksum.Orchestrator {
	return ethchecksum.NewOrchestrator(New(), store, wallet, notifier, opts...)
}

var _ ethchecksum.Concern = (*Concern)(nil)
