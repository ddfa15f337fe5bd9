package ethchecksum

import "sync"

// GuardStatus represents the result of checking the guard.
type GuardStatus int

const (
	// GuardAcquired means the caller now owns the flow for the account.
	GuardAcquired GuardStatus = iota
	// GuardActive means a flow for the account is already running.
	GuardActive
	// GuardSettled means the account already reached a terminal outcome.
	GuardSettled
)

func (s GuardStatus) String() string {
	switch s {
	case GuardAcquired:
		return "acquired"
	case GuardActive:
		return "active"
	case GuardSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Guard is the tracking state of one concern: the account currently
// mid-flow and the accounts that must not be prompted again.
//
// At most one account is active at a time, and a settled account is never
// the active one. Each Orchestrator owns one Guard; tests construct fresh
// ones so no state leaks between them.
type Guard struct {
	mu      sync.Mutex
	active  string
	settled map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{
		settled: make(map[string]struct{}),
	}
}

// CheckAndMark atomically checks the guard and marks account active if needed.
//
// Returns:
//   - GuardSettled if the account already settled (no-op for the caller)
//   - GuardActive if a flow for the account is in progress (no-op for the caller)
//   - GuardAcquired if the caller should proceed; superseded names the
//     previously active account, if another one was displaced
func (g *Guard) CheckAndMark(account string) (status GuardStatus, superseded string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.settled[account]; ok {
		return GuardSettled, ""
	}
	if g.active == account {
		return GuardActive, ""
	}

	superseded = g.active
	g.active = account
	return GuardAcquired, superseded
}

// IsActive reports whether account owns the running flow.
func (g *Guard) IsActive(account string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return account != "" && g.active == account
}

// IsSettled reports whether account reached a terminal outcome.
func (g *Guard) IsSettled(account string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.settled[account]
	return ok
}

// Active returns the account currently mid-flow, or "".
func (g *Guard) Active() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Settle records a terminal outcome for account and ends its flow.
// Only the active account can settle; a flow whose guard was cleared by a
// disconnect in the meantime reports false and changes nothing.
func (g *Guard) Settle(account string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if account == "" || g.active != account {
		return false
	}
	g.settled[account] = struct{}{}
	g.active = ""
	return true
}

// Release ends the flow for account without settling it, allowing
// the next connect to start over. It reports whether account was active.
func (g *Guard) Release(account string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != account {
		return false
	}
	g.active = ""
	return true
}

// Forget drops everything known about account, so that a reconnect
// re-runs the full check.
func (g *Guard) Forget(account string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.settled, account)
	if g.active == account {
		g.active = ""
	}
}
