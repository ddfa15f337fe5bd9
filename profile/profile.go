// Package profile synchronizes the widget settings with a per-account
// profile aggregate. A found profile overwrites the local settings; on a
// miss the user is offered to save the current ones.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	ethchecksum "github.com/ethchecksum/ethchecksum"
	"github.com/ethchecksum/ethchecksum/aleph"
	"github.com/ethchecksum/ethchecksum/settings"
)

const (
	// Name identifies the concern in prompt ids, logs and metrics
	Name = "profile"

	// Key is the aggregate key of the profile record
	Key = "profile"

	// ExplorerURL links a sender's aggregate messages on the explorer
	ExplorerURL = "https://explorer.aleph.cloud/messages?showAdvancedFilters=1&channels=ETH_CHECKSUM&type=AGGREGATE&page=1&sender=%s"
)

var (
	ErrNotConnected   = errors.New("wallet not connected")
	ErrSaveInProgress = errors.New("save already in progress")
)

// Record is the profile aggregate. Version is the settings version the
// enclosed settings were written at; UpdatedAt is unix milliseconds and
// increases with every write from this process.
type Record struct {
	Version   int             `json:"version"`
	UpdatedAt int64           `json:"updatedAt"`
	Settings  json.RawMessage `json:"settings"`
	IsDark    bool            `json:"isDark"`
}

var recordSchema = aleph.MustSchema(`{
	"type": "object",
	"required": ["version", "updatedAt", "settings", "isDark"],
	"properties": {
		"version": {"type": "integer", "minimum": 0},
		"updatedAt": {"type": "integer", "minimum": 0},
		"settings": {"type": "object"},
		"isDark": {"type": "boolean"}
	}
}`)

// Decode validates raw and migrates the enclosed settings to the current
// version
func Decode(raw json.RawMessage) (Record, settings.Settings, error) {
	if err := recordSchema.Validate(raw).Err(); err != nil {
		return Record{}, settings.Settings{}, err
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, settings.Settings{}, fmt.Errorf("%w: %v", aleph.ErrMalformedRecord, err)
	}

	migrated, err := settings.Migrate(record.Version, record.Settings)
	if err != nil {
		return Record{}, settings.Settings{}, fmt.Errorf("%w: %v", aleph.ErrMalformedRecord, err)
	}
	return record, migrated, nil
}

// ============================================================================
// Synchronizer
// ============================================================================

// Synchronizer is the profile concern together with the orchestrator that
// drives it and the loading, saving and has-profile state the settings
// panel shows.
type Synchronizer struct {
	orchestrator *ethchecksum.Orchestrator
	state        *settings.State
	wallet       ethchecksum.WalletSession
	clock        clockwork.Clock

	mu          sync.Mutex
	loading     int
	saving      bool
	hasProfile  bool
	lastUpdated int64
}

// NewSynchronizer creates a synchronizer applying profiles to state
func NewSynchronizer(state *settings.State, store ethchecksum.AggregateStore, wallet ethchecksum.WalletSession, notifier ethchecksum.Notifier, clock clockwork.Clock, opts ...ethchecksum.OrchestratorOption) *Synchronizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Synchronizer{
		state:  state,
		wallet: wallet,
		clock:  clock,
	}
	opts = append([]ethchecksum.OrchestratorOption{ethchecksum.WithClock(clock)}, opts...)
	s.orchestrator = ethchecksum.NewOrchestrator(&concern{owner: s}, store, wallet, notifier, opts...)
	return s
}

// Orchestrator returns the orchestrator driving the profile concern
func (s *Synchronizer) Orchestrator() *ethchecksum.Orchestrator {
	return s.orchestrator
}

// OnConnect runs the profile check for account; IsLoading reports true
// while it runs
func (s *Synchronizer) OnConnect(ctx context.Context, account string, connector ethchecksum.Connector) ethchecksum.Outcome {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}()

	return s.orchestrator.OnConnect(ctx, account, connector)
}

// OnDisconnect withdraws the save prompt and forgets the loaded profile
func (s *Synchronizer) OnDisconnect(account string) {
	s.orchestrator.OnDisconnect(account)

	s.mu.Lock()
	s.hasProfile = false
	s.mu.Unlock()
}

// SaveToCloud writes the current settings as the connected account's
// profile. Concurrent calls collapse: while one save runs, others return
// ErrSaveInProgress without prompting the wallet.
func (s *Synchronizer) SaveToCloud(ctx context.Context) error {
	account, connector, connected := s.wallet.Current()
	if !connected || connector == nil {
		return ErrNotConnected
	}

	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInProgress
	}
	s.saving = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.saving = false
		s.mu.Unlock()
	}()

	return s.orchestrator.Save(ctx, account, connector)
}

// HasProfile reports whether the connected account has a profile
func (s *Synchronizer) HasProfile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasProfile
}

// IsLoading reports whether a profile check is running
func (s *Synchronizer) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

// IsSaving reports whether a manual save is running
func (s *Synchronizer) IsSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

// nextUpdatedAt returns the wall clock in milliseconds, bumped past the
// last value handed out so that updatedAt never goes backwards
func (s *Synchronizer) nextUpdatedAt() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UnixMilli()
	if now <= s.lastUpdated {
		now = s.lastUpdated + 1
	}
	s.lastUpdated = now
	return now
}

func (s *Synchronizer) setHasProfile(v bool) {
	s.mu.Lock()
	s.hasProfile = v
	s.mu.Unlock()
}

// ============================================================================
// Concern
// ============================================================================

type concern struct {
	owner *Synchronizer
}

func (c *concern) Name() string { return Name }
func (c *concern) Key() string  { return Key }

func (c *concern) Prompt() ethchecksum.PromptSpec {
	return ethchecksum.PromptSpec{
		Message:     "Save your settings to Aleph Cloud?",
		ActionLabel: "Save",
	}
}

func (c *concern) Messages() ethchecksum.Messages {
	return ethchecksum.Messages{
		Found:       "Settings loaded from Aleph Cloud!",
		Stored:      "Settings saved to Aleph Cloud!",
		WrongChain:  "Please switch to Ethereum mainnet to save.",
		Rejected:    "Signature rejected.",
		Failed:      "Failed to save settings.",
		ExplorerURL: ExplorerURL,
	}
}

// DismissPolicy: a declined save is not asked again this session
func (c *concern) DismissPolicy() ethchecksum.DismissPolicy {
	return ethchecksum.DismissSettle
}

// Accept reports whether raw decodes to a profile with valid settings
func (c *concern) Accept(_ context.Context, _ string, raw json.RawMessage) (bool, error) {
	_, migrated, err := Decode(raw)
	if err != nil {
		return false, err
	}
	if err := migrated.Validate(); err != nil {
		return false, err
	}
	return true, nil
}

// Apply overwrites the local settings with the settled profile
func (c *concern) Apply(_ context.Context, _ string, raw json.RawMessage) error {
	record, migrated, err := Decode(raw)
	if err != nil {
		return err
	}
	if err := c.owner.state.ApplyProfile(migrated, record.IsDark); err != nil {
		return err
	}

	c.owner.mu.Lock()
	c.owner.hasProfile = true
	if record.UpdatedAt > c.owner.lastUpdated {
		c.owner.lastUpdated = record.UpdatedAt
	}
	c.owner.mu.Unlock()
	return nil
}

// Payload snapshots the full local settings and theme
func (c *concern) Payload(context.Context, string) (interface{}, error) {
	current, isDark := c.owner.state.Snapshot()
	encoded, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	return Record{
		Version:   settings.CurrentVersion,
		UpdatedAt: c.owner.nextUpdatedAt(),
		Settings:  encoded,
		IsDark:    isDark,
	}, nil
}

func (c *concern) Stored(string, interface{}) {
	c.owner.setHasProfile(true)
}

var _ ethchecksum.Concern = (*concern)(nil)
