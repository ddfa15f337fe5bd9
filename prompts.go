package ethchecksum

import (
	"context"
	"time"
)

// CommandKind selects what a prompt continuation does when it runs
type CommandKind int

const (
	// CommandAuthorize requests a signature and writes the aggregate
	CommandAuthorize CommandKind = iota
	// CommandDismiss handles an explicit dismissal of the prompt
	CommandDismiss
)

// PromptCommand is the continuation stored alongside a pending prompt.
//
// It carries only the prompt id and the generation it was issued for; the
// orchestrator resolves it against the registry when it runs. A command
// whose prompt was withdrawn or re-armed since it was issued does nothing.
type PromptCommand struct {
	PromptID   string
	Generation uint64
	Kind       CommandKind

	orchestrator *Orchestrator
}

// Execute resolves the command against its orchestrator
func (c PromptCommand) Execute(ctx context.Context) {
	if c.orchestrator == nil {
		return
	}
	c.orchestrator.Resolve(ctx, c)
}

// pendingPrompt is the single outstanding prompt for one account.
// All fields are guarded by Orchestrator.mu.
type pendingPrompt struct {
	id          string
	account     string
	generation  uint64
	connector   Connector
	authorizing bool
	connect     ConnectContext
	armedAt     time.Time
}

// PromptID returns the stable notification id for (concern, account)
func PromptID(concern, account string) string {
	return concern + ":" + account
}
