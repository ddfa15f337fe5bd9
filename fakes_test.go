package ethchecksum

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Aggregate store
// ============================================================================

type fakeStore struct {
	mu       sync.Mutex
	records  map[string]json.RawMessage
	readErr  error
	writeErr error

	// block, when set, holds every write until it is closed
	block chan struct{}

	reads         atomic.Int32
	writesStarted atomic.Int32
	writes        atomic.Int32
	channels      []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]json.RawMessage)}
}

func (s *fakeStore) put(account, key, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[account+"/"+key] = json.RawMessage(raw)
}

func (s *fakeStore) setReadErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func (s *fakeStore) setWriteErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *fakeStore) Read(ctx context.Context, account, key string) (json.RawMessage, error) {
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	raw, ok := s.records[account+"/"+key]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

func (s *fakeStore) Write(ctx context.Context, provider Provider, account, key string, content interface{}, channel string) error {
	s.writesStarted.Add(1)
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	s.records[account+"/"+key] = raw
	s.channels = append(s.channels, channel)
	s.writes.Add(1)
	return nil
}

// ============================================================================
// Wallet
// ============================================================================

type fakeProvider struct {
	mu       sync.Mutex
	chainID  string
	chainErr error
	block    chan struct{}
	requests atomic.Int32
}

func newFakeProvider(chainID string) *fakeProvider {
	return &fakeProvider{chainID: chainID}
}

func (p *fakeProvider) setChain(chainID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chainID = chainID
}

func (p *fakeProvider) Request(ctx context.Context, args RequestArguments) (json.RawMessage, error) {
	p.requests.Add(1)
	p.mu.Lock()
	block := p.block
	p.mu.Unlock()
	if block != nil {
		<-block
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if args.Method != "eth_chainId" {
		return nil, &ProviderRPCError{Code: 4200, Message: "unsupported"}
	}
	if p.chainErr != nil {
		return nil, p.chainErr
	}
	return json.Marshal(p.chainID)
}

type fakeConnector struct {
	provider Provider
	err      error
}

func (c *fakeConnector) GetProvider(ctx context.Context) (Provider, error) {
	return c.provider, c.err
}

type fakeWallet struct {
	mu          sync.Mutex
	account     string
	connector   Connector
	connected   bool
	disconnects int
}

func (w *fakeWallet) connect(account string, connector Connector) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.account = account
	w.connector = connector
	w.connected = true
}

func (w *fakeWallet) Current() (string, Connector, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.account, w.connector, w.connected
}

func (w *fakeWallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
	w.account = ""
	w.disconnects++
}

func (w *fakeWallet) disconnectCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disconnects
}

// ============================================================================
// Notifier
// ============================================================================

type fakeNotifier struct {
	mu        sync.Mutex
	active    map[string]Toast
	shown     []Toast
	dismissed []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{active: make(map[string]Toast)}
}

func (n *fakeNotifier) Show(toast Toast) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.active[toast.ID] = toast
	n.shown = append(n.shown, toast)
}

func (n *fakeNotifier) Dismiss(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.active, id)
	n.dismissed = append(n.dismissed, id)
}

func (n *fakeNotifier) get(id string) (Toast, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.active[id]
	return t, ok
}

// showCount counts how often a toast with id was shown
func (n *fakeNotifier) showCount(id string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, t := range n.shown {
		if t.ID == id {
			count++
		}
	}
	return count
}

func (n *fakeNotifier) messages(kind ToastKind) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, t := range n.shown {
		if t.Kind == kind {
			out = append(out, t.Message)
		}
	}
	return out
}

// click runs the action of the toast with id, as the user pressing its button
func (n *fakeNotifier) click(ctx context.Context, id string) bool {
	toast, ok := n.get(id)
	if !ok || toast.Action == nil {
		return false
	}
	toast.Action.Command.Execute(ctx)
	return true
}

// close removes the toast and runs its dismiss command, as the user
// closing it
func (n *fakeNotifier) close(ctx context.Context, id string) bool {
	n.mu.Lock()
	toast, ok := n.active[id]
	delete(n.active, id)
	n.mu.Unlock()
	if !ok {
		return false
	}
	if toast.OnDismiss != nil {
		toast.OnDismiss.Execute(ctx)
	}
	return true
}

// ============================================================================
// Concern
// ============================================================================

type testConcern struct {
	name   string
	policy DismissPolicy

	mu       sync.Mutex
	applied  []string
	onAccept func(account string)
	stored   []string
	reject   bool
}

func newTestConcern(name string, policy DismissPolicy) *testConcern {
	return &testConcern{name: name, policy: policy}
}

func (c *testConcern) Name() string { return c.name }
func (c *testConcern) Key() string  { return c.name }

func (c *testConcern) Prompt() PromptSpec {
	return PromptSpec{Message: c.name + " prompt", ActionLabel: "Sign"}
}

func (c *testConcern) Messages() Messages {
	return Messages{
		Found:       "found",
		Stored:      "stored",
		WrongChain:  "wrong chain",
		Rejected:    "rejected",
		Failed:      "failed",
		ExplorerURL: "https://explorer.test/%s",
	}
}

func (c *testConcern) DismissPolicy() DismissPolicy { return c.policy }

func (c *testConcern) Accept(_ context.Context, account string, raw json.RawMessage) (bool, error) {
	c.mu.Lock()
	onAccept := c.onAccept
	c.mu.Unlock()
	if onAccept != nil {
		onAccept(account)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reject {
		return false, nil
	}
	var v map[string]interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, err
	}
	return true, nil
}

func (c *testConcern) Apply(_ context.Context, account string, _ json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, account)
	return nil
}

func (c *testConcern) Payload(context.Context, string) (interface{}, error) {
	return map[string]int{c.name: 1}, nil
}

func (c *testConcern) Stored(account string, _ interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = append(c.stored, account)
}

// ============================================================================
// Recorder
// ============================================================================

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	failures map[string]int
	calls    map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		outcomes: make(map[string]int),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (r *fakeRecorder) FlowOutcome(concern, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *fakeRecorder) FlowFailure(concern, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[code]++
}

func (r *fakeRecorder) StoreCall(concern, op string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[op]++
}
