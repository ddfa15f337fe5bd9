// Package wallet observes the wallet connection and fans connect and
// disconnect transitions out to the orchestrators that track them.
package wallet

import (
	"context"
	"log/slog"
	"sync"

	ethchecksum "github.com/ethchecksum/ethchecksum"
)

// EventType is a wallet transition
type EventType int

const (
	Connected EventType = iota
	Disconnected
)

func (t EventType) String() string {
	if t == Connected {
		return "connected"
	}
	return "disconnected"
}

// Event is delivered to listeners on every transition. For Disconnected,
// Account is the account that was connected.
type Event struct {
	Type      EventType
	Account   string
	Connector ethchecksum.Connector
}

// Listener receives wallet events
type Listener func(Event)

// Session holds the current wallet connection.
//
// Listeners run synchronously, in subscription order, on the goroutine that
// caused the transition and without the session lock held.
type Session struct {
	mu        sync.Mutex
	account   string
	connector ethchecksum.Connector
	connected bool

	listeners map[int]Listener
	order     []int
	nextID    int

	logger *slog.Logger
}

// NewSession creates a disconnected session
func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// Current returns the connected account and connector
func (s *Session) Current() (string, ethchecksum.Connector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account, s.connector, s.connected
}

// Connect records a connection to account. Switching accounts while
// connected emits a Connected event for the new account only, the way
// wallet libraries report an account change.
func (s *Session) Connect(account string, connector ethchecksum.Connector) {
	s.mu.Lock()
	s.account = account
	s.connector = connector
	s.connected = true
	listeners := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("wallet connected", "account", account)
	s.emit(listeners, Event{Type: Connected, Account: account, Connector: connector})
}

// Disconnect ends the session. It is a no-op when nothing is connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	account := s.account
	s.account = ""
	s.connector = nil
	s.connected = false
	listeners := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("wallet disconnected", "account", account)
	s.emit(listeners, Event{Type: Disconnected, Account: account})
}

// Subscribe registers l and returns a function that removes it
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.order = append(s.order, id)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

func (s *Session) snapshotLocked() []Listener {
	listeners := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		listeners = append(listeners, s.listeners[id])
	}
	return listeners
}

func (s *Session) emit(listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ev)
	}
}

var _ ethchecksum.WalletSession = (*Session)(nil)

// ============================================================================
// Connectors
// ============================================================================

// StaticConnector is a connector that always yields the same provider
type StaticConnector struct {
	Provider ethchecksum.Provider
}

// GetProvider returns the wrapped provider
func (c StaticConnector) GetProvider(ctx context.Context) (ethchecksum.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Provider == nil {
		return nil, ethchecksum.ErrNoProvider
	}
	return c.Provider, nil
}
