package ethchecksum

import (
	"fmt"
	"time"
)

const (
	// DefaultChannel groups this application's aggregates on the network
	DefaultChannel = "ETH_CHECKSUM"

	// MainnetChainID is the hex chain id the wallet must report before a write
	MainnetChainID = "0x1"

	// DefaultSettleDelay lets the wallet transport stabilise after connect
	// before the first read. Tunable; it is not a correctness guarantee.
	DefaultSettleDelay = 1500 * time.Millisecond

	// ErrorToastDuration and SuccessToastDuration bound transient notices
	ErrorToastDuration   = 5 * time.Second
	SuccessToastDuration = 4 * time.Second
)

// ============================================================================
// Flow State
// ============================================================================

// Outcome is the result of a single OnConnect call
type Outcome int

const (
	// OutcomeSkipped means the account was already active or settled
	OutcomeSkipped Outcome = iota
	// OutcomeAborted means the flow was cancelled by a race or a read failure
	OutcomeAborted
	// OutcomeSettled means remote state already reflected the account
	OutcomeSettled
	// OutcomePrompted means a prompt is now waiting for the user
	OutcomePrompted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeAborted:
		return "aborted"
	case OutcomeSettled:
		return "settled"
	case OutcomePrompted:
		return "prompted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// State is the per-account, per-concern position in the flow state machine:
// Idle -> Checking -> {Settled | AwaitingAuthorization} -> {Settled | Idle}
type State int

const (
	StateIdle State = iota
	StateChecking
	StateAwaitingAuthorization
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateAwaitingAuthorization:
		return "awaiting_authorization"
	case StateSettled:
		return "settled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DismissPolicy decides what an explicit prompt dismissal means for a concern
type DismissPolicy int

const (
	// DismissDisconnect treats dismissal as an opt-out and ends the wallet session
	DismissDisconnect DismissPolicy = iota
	// DismissSettle treats dismissal as "asked and declined" for this session
	DismissSettle
)

// ============================================================================
// Concern Description
// ============================================================================

// PromptSpec describes the pending prompt a concern shows on a miss
type PromptSpec struct {
	Message     string
	ActionLabel string
}

// Messages holds the notifications a concern emits. An empty message
// suppresses that notification.
type Messages struct {
	Found      string
	Stored     string
	WrongChain string
	Rejected   string
	Failed     string

	// ExplorerURL, when set, is formatted with the account and attached
	// as a link to success notifications.
	ExplorerURL string
}

// Link returns the explorer link for an account, or "" when none is configured
func (m Messages) Link(account string) string {
	if m.ExplorerURL == "" {
		return ""
	}
	return fmt.Sprintf(m.ExplorerURL, account)
}

// RequestArguments is an EIP-1193 request
type RequestArguments struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params,omitempty"`
}

