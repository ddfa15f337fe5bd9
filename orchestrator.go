package ethchecksum

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ethchecksum/ethchecksum/checksum"
)

// Orchestrator drives one concern for every account the wallet connects.
//
// For each account it reads the remote aggregate at most once per process
// lifetime and, on a miss, arms exactly one prompt whose action requests a
// wallet signature and writes the aggregate. Duplicate OnConnect calls for
// the same account are no-ops while a flow is running or after it settled.
// A disconnect withdraws the prompt and makes the account eligible again.
type Orchestrator struct {
	concern  Concern
	store    AggregateStore
	wallet   WalletSession
	notifier Notifier

	guard           *Guard
	clock           clockwork.Clock
	settleDelay     time.Duration
	requiredChainID string
	channel         string
	logger          *slog.Logger
	recorder        Recorder

	// mu guards prompts and generation, and orders prompt registry changes
	// with the Show/Dismiss calls that mirror them on the notifier.
	mu         sync.Mutex
	prompts    map[string]*pendingPrompt
	generation uint64

	beforeConnectHooks []BeforeConnectHook
	afterSettleHooks   []AfterSettleHook
	onFlowFailureHooks []OnFlowFailureHook
}

// NewOrchestrator creates an orchestrator for concern
func NewOrchestrator(concern Concern, store AggregateStore, wallet WalletSession, notifier Notifier, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		concern:         concern,
		store:           store,
		wallet:          wallet,
		notifier:        notifier,
		guard:           NewGuard(),
		clock:           clockwork.NewRealClock(),
		settleDelay:     DefaultSettleDelay,
		requiredChainID: MainnetChainID,
		channel:         DefaultChannel,
		logger:          slog.Default(),
		recorder:        noopRecorder{},
		prompts:         make(map[string]*pendingPrompt),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.logger = o.logger.With("concern", concern.Name())
	return o
}

// Concern returns the concern this orchestrator drives
func (o *Orchestrator) Concern() Concern {
	return o.concern
}

// Guard returns the tracking guard of this orchestrator
func (o *Orchestrator) Guard() *Guard {
	return o.guard
}

// ============================================================================
// Connect Flow
// ============================================================================

// OnConnect runs the connect flow for account.
//
// The guard is checked and set before the first suspension point, so a
// concurrent duplicate call for the same account returns OutcomeSkipped.
// After the settle window and after the read, the flow re-validates that the
// wallet is still connected to account and that the guard still names it;
// otherwise it aborts without touching state a disconnect already reset.
func (o *Orchestrator) OnConnect(ctx context.Context, account string, connector Connector) Outcome {
	addr, err := checksum.Normalize(account)
	if err != nil || connector == nil {
		o.logger.Debug("connect ignored", "account", account, "has_connector", connector != nil)
		return o.record(OutcomeSkipped)
	}

	cc := ConnectContext{
		Ctx:       ctx,
		Concern:   o.concern.Name(),
		Account:   addr,
		FlowID:    uuid.NewString(),
		Timestamp: o.clock.Now(),
	}

	if abort, reason := o.runBeforeConnect(cc); abort {
		o.logger.Info("connect aborted by hook", "account", addr, "reason", reason)
		return o.record(OutcomeSkipped)
	}

	status, superseded := o.guard.CheckAndMark(addr)
	if status != GuardAcquired {
		o.logger.Debug("connect skipped", "account", addr, "guard", status.String())
		return o.record(OutcomeSkipped)
	}
	if superseded != "" {
		o.withdraw(superseded)
		o.logger.Info("flow superseded", "account", superseded, "by", addr)
	}

	log := o.logger.With("account", addr, "flow", cc.FlowID)
	log.Debug("connect flow started", "settle_delay", o.settleDelay)

	if o.settleDelay > 0 {
		select {
		case <-o.clock.After(o.settleDelay):
		case <-ctx.Done():
			o.guard.Release(addr)
			log.Debug("connect flow cancelled during settle window")
			return o.record(OutcomeAborted)
		}
	}

	if !o.stillCurrent(addr) {
		log.Debug("connect flow aborted after settle window")
		return o.record(OutcomeAborted)
	}

	start := o.clock.Now()
	raw, err := o.store.Read(ctx, addr, o.concern.Key())
	readErr := err
	if errors.Is(err, ErrNotFound) {
		readErr = nil
	}
	o.recorder.StoreCall(cc.Concern, "read", readErr, o.clock.Since(start))

	if readErr != nil {
		// A failed read releases the guard so the next connect retries at once.
		o.guard.Release(addr)
		o.fail(cc, "read", readErr)
		return o.record(OutcomeAborted)
	}

	if !o.stillCurrent(addr) {
		log.Debug("connect flow aborted after read")
		return o.record(OutcomeAborted)
	}

	if err == nil {
		accepted, acceptErr := o.concern.Accept(ctx, addr, raw)
		if acceptErr != nil {
			log.Warn("malformed aggregate", "error", acceptErr)
		}
		if accepted && o.guard.Settle(addr) {
			log.Info("aggregate found")
			if err := o.concern.Apply(ctx, addr, raw); err != nil {
				log.Warn("failed to apply aggregate", "error", err)
			}
			o.showSuccess(addr, o.concern.Messages().Found)
			o.runAfterSettle(SettleResultContext{
				ConnectContext: cc,
				Source:         SettledByRead,
				Duration:       o.clock.Since(cc.Timestamp),
			})
			return o.record(OutcomeSettled)
		}
		if accepted {
			return o.record(OutcomeAborted)
		}
	}

	if !o.arm(cc, connector) {
		log.Debug("connect flow aborted before prompt")
		return o.record(OutcomeAborted)
	}
	log.Info("prompt armed")
	return o.record(OutcomePrompted)
}

// OnDisconnect withdraws any prompt pending for account and forgets the
// account, so that a reconnect re-runs the full check.
func (o *Orchestrator) OnDisconnect(account string) {
	addr, err := checksum.Normalize(account)
	if err != nil {
		addr = account
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	id := PromptID(o.concern.Name(), addr)
	if _, ok := o.prompts[id]; ok {
		delete(o.prompts, id)
		o.notifier.Dismiss(id)
	}
	o.guard.Forget(addr)
	o.logger.Debug("account disconnected", "account", addr)
}

// Status reports where account stands in the flow state machine
func (o *Orchestrator) Status(account string) State {
	addr, err := checksum.Normalize(account)
	if err != nil {
		return StateIdle
	}
	if o.guard.IsSettled(addr) {
		return StateSettled
	}

	o.mu.Lock()
	_, pending := o.prompts[PromptID(o.concern.Name(), addr)]
	o.mu.Unlock()

	if pending {
		return StateAwaitingAuthorization
	}
	if o.guard.IsActive(addr) {
		return StateChecking
	}
	return StateIdle
}

func (o *Orchestrator) stillCurrent(addr string) bool {
	account, _, connected := o.wallet.Current()
	if !connected || !checksum.Equal(account, addr) {
		return false
	}
	return o.guard.IsActive(addr)
}

// ============================================================================
// Pending Prompt
// ============================================================================

func (o *Orchestrator) arm(cc ConnectContext, connector Connector) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.guard.IsActive(cc.Account) {
		return false
	}

	o.generation++
	p := &pendingPrompt{
		id:         PromptID(cc.Concern, cc.Account),
		account:    cc.Account,
		generation: o.generation,
		connector:  connector,
		connect:    cc,
		armedAt:    o.clock.Now(),
	}
	o.prompts[p.id] = p
	o.notifier.Show(o.promptToast(p))
	return true
}

func (o *Orchestrator) promptToast(p *pendingPrompt) Toast {
	spec := o.concern.Prompt()
	return Toast{
		ID:      p.id,
		Kind:    ToastPrompt,
		Message: spec.Message,
		Action: &ToastAction{
			Label:   spec.ActionLabel,
			Command: o.command(p, CommandAuthorize),
		},
		OnDismiss: o.command(p, CommandDismiss),
	}
}

func (o *Orchestrator) command(p *pendingPrompt, kind CommandKind) PromptCommand {
	return PromptCommand{
		PromptID:     p.id,
		Generation:   p.generation,
		Kind:         kind,
		orchestrator: o,
	}
}

// withdraw removes the prompt of a superseded account
func (o *Orchestrator) withdraw(account string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := PromptID(o.concern.Name(), account)
	if _, ok := o.prompts[id]; ok {
		delete(o.prompts, id)
		o.notifier.Dismiss(id)
	}
}

// Resolve runs a prompt continuation. Commands for a prompt that was
// withdrawn or re-armed since they were issued are ignored. While an
// authorization is in flight, a second authorize and a dismiss are ignored.
func (o *Orchestrator) Resolve(ctx context.Context, cmd PromptCommand) {
	o.mu.Lock()
	p, ok := o.prompts[cmd.PromptID]
	if !ok || p.generation != cmd.Generation {
		o.mu.Unlock()
		o.logger.Debug("stale prompt command ignored", "prompt", cmd.PromptID, "generation", cmd.Generation)
		return
	}

	switch cmd.Kind {
	case CommandDismiss:
		if p.authorizing {
			// The signature is already requested; the write decides the outcome.
			o.mu.Unlock()
			o.logger.Debug("dismiss ignored during authorization", "prompt", p.id)
			return
		}
		delete(o.prompts, p.id)
		o.mu.Unlock()
		o.dismissed(ctx, p)
	case CommandAuthorize:
		if p.authorizing {
			o.mu.Unlock()
			return
		}
		p.authorizing = true
		o.mu.Unlock()
		o.authorize(ctx, p)
	default:
		o.mu.Unlock()
	}
}

func (o *Orchestrator) authorize(ctx context.Context, p *pendingPrompt) {
	cc := p.connect
	cc.Ctx = ctx
	msgs := o.concern.Messages()
	log := o.logger.With("account", p.account, "flow", cc.FlowID)

	payload, err := o.commit(ctx, p.account, p.connector)
	code := Classify(err)

	o.mu.Lock()
	if current, ok := o.prompts[p.id]; !ok || current != p {
		o.mu.Unlock()
		log.Info("prompt withdrawn during authorization", "error", err)
		return
	}

	if code == ErrCodeWrongChain {
		// The prompt stays up and the flow stays active for a retry. It is
		// shown again in case the user closed it while the wallet was busy.
		p.authorizing = false
		toast := o.promptToast(p)
		o.mu.Unlock()
		o.notifier.Show(toast)
		o.showError(p.account, msgs.WrongChain)
		o.fail(cc, "authorize", err)
		return
	}

	delete(o.prompts, p.id)
	o.notifier.Dismiss(p.id)
	settled := false
	if err == nil {
		settled = o.guard.Settle(p.account)
	} else {
		o.guard.Release(p.account)
	}
	o.mu.Unlock()

	if err != nil {
		if code == ErrCodeUserRejected {
			o.showError(p.account, msgs.Rejected)
		} else {
			o.showError(p.account, msgs.Failed)
		}
		o.fail(cc, "write", err)
		return
	}

	o.concern.Stored(p.account, payload)
	o.showSuccess(p.account, msgs.Stored)
	log.Info("aggregate written")
	if settled {
		o.runAfterSettle(SettleResultContext{
			ConnectContext: cc,
			Source:         SettledByWrite,
			Duration:       o.clock.Since(p.armedAt),
		})
	}
}

func (o *Orchestrator) dismissed(ctx context.Context, p *pendingPrompt) {
	cc := p.connect
	cc.Ctx = ctx

	switch o.concern.DismissPolicy() {
	case DismissSettle:
		if o.guard.Settle(p.account) {
			o.logger.Info("prompt declined", "account", p.account)
			o.runAfterSettle(SettleResultContext{
				ConnectContext: cc,
				Source:         SettledByDismiss,
				Duration:       o.clock.Since(p.armedAt),
			})
		}
	default:
		o.guard.Release(p.account)
		o.logger.Info("prompt dismissed, disconnecting wallet", "account", p.account)
		o.wallet.Disconnect()
	}
}

// ============================================================================
// Authorization and Write
// ============================================================================

// Save writes the concern's payload for account outside the prompt flow,
// notifying the user of the result. It does not change the guard.
func (o *Orchestrator) Save(ctx context.Context, account string, connector Connector) error {
	addr, err := checksum.Normalize(account)
	if err != nil {
		return NewFlowError(ErrCodeInvalidAddress, o.concern.Name(), account, err)
	}
	if connector == nil {
		return NewFlowError(ErrCodeTransportFailure, o.concern.Name(), addr, ErrNoProvider)
	}

	msgs := o.concern.Messages()
	payload, err := o.commit(ctx, addr, connector)
	if err != nil {
		switch Classify(err) {
		case ErrCodeWrongChain:
			o.showError(addr, msgs.WrongChain)
		case ErrCodeUserRejected:
			o.showError(addr, msgs.Rejected)
		default:
			o.showError(addr, msgs.Failed)
		}
		o.recorder.FlowFailure(o.concern.Name(), Classify(err))
		return err
	}

	o.concern.Stored(addr, payload)
	o.showSuccess(addr, msgs.Stored)
	return nil
}

// commit obtains a fresh authorization from the wallet and writes the
// concern's payload. Errors come back as *FlowError with a taxonomy code.
func (o *Orchestrator) commit(ctx context.Context, account string, connector Connector) (interface{}, error) {
	name := o.concern.Name()

	provider, err := connector.GetProvider(ctx)
	if err != nil {
		return nil, NewFlowError(Classify(err), name, account, err)
	}
	if provider == nil {
		return nil, NewFlowError(ErrCodeTransportFailure, name, account, ErrNoProvider)
	}

	if err := o.checkChain(ctx, provider); err != nil {
		return nil, NewFlowError(Classify(err), name, account, err)
	}

	payload, err := o.concern.Payload(ctx, account)
	if err != nil {
		return nil, NewFlowError(ErrCodeTransportFailure, name, account, err)
	}

	start := o.clock.Now()
	err = o.store.Write(ctx, provider, account, o.concern.Key(), payload, o.channel)
	o.recorder.StoreCall(name, "write", err, o.clock.Since(start))
	if err != nil {
		return nil, NewFlowError(Classify(err), name, account, err)
	}
	return payload, nil
}

func (o *Orchestrator) checkChain(ctx context.Context, provider Provider) error {
	raw, err := provider.Request(ctx, RequestArguments{Method: "eth_chainId"})
	if err != nil {
		return err
	}

	var chainID string
	if err := json.Unmarshal(raw, &chainID); err != nil {
		return errors.Join(ErrTransport, err)
	}
	if !sameChain(chainID, o.requiredChainID) {
		return &WrongChainError{Want: o.requiredChainID, Got: chainID}
	}
	return nil
}

func sameChain(a, b string) bool {
	x, okA := parseChainID(a)
	y, okB := parseChainID(b)
	if !okA || !okB {
		return strings.EqualFold(a, b)
	}
	return x.Cmp(y) == 0
}

// parseChainID accepts canonical quantities as well as the zero-padded
// hex some wallets report
func parseChainID(s string) (*big.Int, bool) {
	if v, err := hexutil.DecodeBig(s); err == nil {
		return v, true
	}
	digits := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if digits == "" {
		return nil, false
	}
	return new(big.Int).SetString(digits, 16)
}

// ============================================================================
// Notifications and Bookkeeping
// ============================================================================

func (o *Orchestrator) showSuccess(account, message string) {
	if message == "" {
		return
	}
	o.notifier.Show(Toast{
		ID:       PromptID(o.concern.Name(), account) + ":success",
		Kind:     ToastSuccess,
		Message:  message,
		Duration: SuccessToastDuration,
		Link:     o.concern.Messages().Link(account),
	})
}

func (o *Orchestrator) showError(account, message string) {
	if message == "" {
		return
	}
	o.notifier.Show(Toast{
		ID:       PromptID(o.concern.Name(), account) + ":error",
		Kind:     ToastError,
		Message:  message,
		Duration: ErrorToastDuration,
	})
}

func (o *Orchestrator) fail(cc ConnectContext, stage string, err error) {
	code := Classify(err)
	o.logger.Warn("flow step failed", "account", cc.Account, "flow", cc.FlowID, "stage", stage, "code", code, "error", err)
	o.recorder.FlowFailure(cc.Concern, code)
	o.runOnFailure(FlowFailureContext{
		ConnectContext: cc,
		Stage:          stage,
		Code:           code,
		Error:          err,
		Duration:       o.clock.Since(cc.Timestamp),
	})
}

func (o *Orchestrator) record(outcome Outcome) Outcome {
	o.recorder.FlowOutcome(o.concern.Name(), outcome.String())
	return outcome
}
