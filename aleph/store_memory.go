package aleph

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	ethchecksum "github.com/ethchecksum/ethchecksum"
	"github.com/ethchecksum/ethchecksum/checksum"
)

// InMemoryStore provides an in-memory implementation of AggregateStore.
//
// Writes go through the same signing path as the HTTP client: a message is
// built, signed by the provider, verified and then applied. This makes it
// suitable for the local aggregate server and for offline sessions.
//
// Features:
//   - Thread-safe with mutex protection
//   - Signature verification on every write
//   - Per-account message history, newest last
type InMemoryStore struct {
	mu         sync.Mutex
	aggregates map[string]map[string]json.RawMessage
	messages   map[string][]*Message
	clock      clockwork.Clock
}

// NewInMemoryStore creates an empty store
func NewInMemoryStore(clock clockwork.Clock) *InMemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryStore{
		aggregates: make(map[string]map[string]json.RawMessage),
		messages:   make(map[string][]*Message),
		clock:      clock,
	}
}

// Read returns the value of key for account, or ethchecksum.ErrNotFound
func (s *InMemoryStore) Read(ctx context.Context, account, key string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr, err := checksum.Normalize(account)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.aggregates[addr][key]
	if !ok {
		return nil, ethchecksum.ErrNotFound
	}
	return append(json.RawMessage(nil), value...), nil
}

// Write signs an AGGREGATE message with provider and applies it
func (s *InMemoryStore) Write(ctx context.Context, provider ethchecksum.Provider, account, key string, content interface{}, channel string) error {
	now := float64(s.clock.Now().UnixMilli()) / 1000
	msg, err := NewAggregateMessage(account, key, content, channel, now)
	if err != nil {
		return err
	}
	if err := Sign(ctx, provider, msg); err != nil {
		return err
	}
	return s.Apply(msg)
}

// Apply verifies a signed message and replaces the aggregate key it names
func (s *InMemoryStore) Apply(msg *Message) error {
	content, err := msg.Verify()
	if err != nil {
		return err
	}

	addr, err := checksum.Normalize(msg.Sender)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aggregates[addr] == nil {
		s.aggregates[addr] = make(map[string]json.RawMessage)
	}
	s.aggregates[addr][content.Key] = append(json.RawMessage(nil), content.Content...)
	s.messages[addr] = append(s.messages[addr], msg)
	return nil
}

// Put stores value without a signed message, for seeding fixtures
func (s *InMemoryStore) Put(account, key string, value json.RawMessage) error {
	addr, err := checksum.Normalize(account)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aggregates[addr] == nil {
		s.aggregates[addr] = make(map[string]json.RawMessage)
	}
	s.aggregates[addr][key] = append(json.RawMessage(nil), value...)
	return nil
}

// Aggregate returns every key stored for account, optionally filtered
func (s *InMemoryStore) Aggregate(account string, keys ...string) (map[string]json.RawMessage, bool) {
	addr, err := checksum.Normalize(account)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.aggregates[addr]
	if !ok {
		return nil, false
	}

	out := make(map[string]json.RawMessage)
	if len(keys) == 0 {
		for k, v := range stored {
			out[k] = v
		}
		return out, true
	}
	for _, k := range keys {
		if v, ok := stored[k]; ok {
			out[k] = v
		}
	}
	return out, len(out) > 0
}

// Messages returns the applied messages of account, oldest first
func (s *InMemoryStore) Messages(account string) []*Message {
	addr, err := checksum.Normalize(account)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]*Message(nil), s.messages[addr]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

var _ ethchecksum.AggregateStore = (*InMemoryStore)(nil)
