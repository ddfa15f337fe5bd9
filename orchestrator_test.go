package ethchecksum

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store     *fakeStore
	wallet    *fakeWallet
	notifier  *fakeNotifier
	provider  *fakeProvider
	connector *fakeConnector
	concern   *testConcern
	recorder  *fakeRecorder
	orch      *Orchestrator
}

func newHarness(t *testing.T, policy DismissPolicy, opts ...OrchestratorOption) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(),
		wallet:   &fakeWallet{},
		notifier: newFakeNotifier(),
		provider: newFakeProvider(MainnetChainID),
		concern:  newTestConcern("login", policy),
		recorder: newFakeRecorder(),
	}
	h.connector = &fakeConnector{provider: h.provider}
	opts = append([]OrchestratorOption{WithSettleDelay(0), WithRecorder(h.recorder)}, opts...)
	h.orch = NewOrchestrator(h.concern, h.store, h.wallet, h.notifier, opts...)
	return h
}

// connect simulates the wallet connecting account and runs the flow
func (h *harness) connect(account string) Outcome {
	h.wallet.connect(account, h.connector)
	return h.orch.OnConnect(context.Background(), account, h.connector)
}

// disconnect simulates the wallet disconnecting account
func (h *harness) disconnect(account string) {
	h.wallet.Disconnect()
	h.orch.OnDisconnect(account)
}

func promptID(account string) string {
	return PromptID("login", account)
}

func TestOrchestrator_FoundSettles(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.store.put(accountA, "login", `{"login":1}`)

	outcome := h.connect(accountA)

	assert.Equal(t, OutcomeSettled, outcome)
	assert.Equal(t, StateSettled, h.orch.Status(accountA))
	assert.True(t, h.orch.Guard().IsSettled(accountA))
	assert.Equal(t, "", h.orch.Guard().Active())

	success, ok := h.notifier.get(promptID(accountA) + ":success")
	require.True(t, ok)
	assert.Equal(t, "found", success.Message)
	assert.Equal(t, SuccessToastDuration, success.Duration)
	assert.Equal(t, "https://explorer.test/"+accountA, success.Link)

	_, prompted := h.notifier.get(promptID(accountA))
	assert.False(t, prompted)

	h.concern.mu.Lock()
	assert.Equal(t, []string{accountA}, h.concern.applied)
	h.concern.mu.Unlock()
}

func TestOrchestrator_DisconnectBeforeSettleSkipsApply(t *testing.T) {
	h := newHarness(t, DismissSettle)
	h.store.put(accountA, "login", `{"login":1}`)
	h.concern.onAccept = func(account string) {
		h.disconnect(account)
	}

	assert.Equal(t, OutcomeAborted, h.connect(accountA))
	assert.False(t, h.orch.Guard().IsSettled(accountA))
	assert.Empty(t, h.notifier.messages(ToastSuccess))

	h.concern.mu.Lock()
	assert.Empty(t, h.concern.applied, "a disconnected account's record must not reach local state")
	h.concern.mu.Unlock()
}

func TestOrchestrator_MissArmsPrompt(t *testing.T) {
	h := newHarness(t, DismissDisconnect)

	outcome := h.connect(accountA)

	assert.Equal(t, OutcomePrompted, outcome)
	assert.Equal(t, StateAwaitingAuthorization, h.orch.Status(accountA))
	assert.True(t, h.orch.Guard().IsActive(accountA))

	prompt, ok := h.notifier.get(promptID(accountA))
	require.True(t, ok)
	assert.Equal(t, ToastPrompt, prompt.Kind)
	assert.Equal(t, time.Duration(0), prompt.Duration, "prompts never expire")
	require.NotNil(t, prompt.Action)
	assert.Equal(t, "Sign", prompt.Action.Label)
	assert.NotNil(t, prompt.OnDismiss)
}

func TestOrchestrator_MalformedRecordPrompts(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.store.put(accountA, "login", `"garbage"`)

	assert.Equal(t, OutcomePrompted, h.connect(accountA))
	assert.False(t, h.orch.Guard().IsSettled(accountA))
}

func TestOrchestrator_InvalidAccountSkipped(t *testing.T) {
	h := newHarness(t, DismissDisconnect)

	assert.Equal(t, OutcomeSkipped, h.orch.OnConnect(context.Background(), "0xzzz", h.connector))
	assert.Equal(t, OutcomeSkipped, h.orch.OnConnect(context.Background(), accountA, nil))
	assert.Zero(t, h.store.reads.Load())
}

// Duplicate connects issued before the first resolves produce one read,
// one prompt and, however often the action runs, one write.
func TestOrchestrator_DuplicateConnects_AtMostOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newHarness(t, DismissDisconnect, WithClock(clock), WithSettleDelay(DefaultSettleDelay))
	h.wallet.connect(accountA, h.connector)

	const n = 8
	outcomes := make(chan Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- h.orch.OnConnect(context.Background(), accountA, h.connector)
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(DefaultSettleDelay)
	wg.Wait()
	close(outcomes)

	counts := map[Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, 1, counts[OutcomePrompted])
	assert.Equal(t, n-1, counts[OutcomeSkipped])
	assert.Equal(t, int32(1), h.store.reads.Load())
	assert.Equal(t, 1, h.notifier.showCount(promptID(accountA)))

	// hold the first write so the second click lands while it is in flight
	block := make(chan struct{})
	h.store.mu.Lock()
	h.store.block = block
	h.store.mu.Unlock()

	prompt, ok := h.notifier.get(promptID(accountA))
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		prompt.Action.Command.Execute(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return h.store.writesStarted.Load() == 1 }, time.Second, time.Millisecond)

	prompt.Action.Command.Execute(context.Background())
	close(block)
	<-done
	prompt.Action.Command.Execute(context.Background())

	assert.Equal(t, int32(1), h.store.writesStarted.Load())
	assert.Equal(t, int32(1), h.store.writes.Load())
	assert.True(t, h.orch.Guard().IsSettled(accountA))
}

func TestOrchestrator_SettledIsNoop(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.store.put(accountA, "login", `{"login":1}`)

	require.Equal(t, OutcomeSettled, h.connect(accountA))
	shown := len(h.notifier.shown)

	for i := 0; i < 3; i++ {
		assert.Equal(t, OutcomeSkipped, h.orch.OnConnect(context.Background(), accountA, h.connector))
	}
	assert.Equal(t, int32(1), h.store.reads.Load())
	assert.Len(t, h.notifier.shown, shown)
}

func TestOrchestrator_DisconnectResetsEligibility(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.store.put(accountA, "login", `{"login":1}`)

	require.Equal(t, OutcomeSettled, h.connect(accountA))
	h.disconnect(accountA)
	assert.Equal(t, StateIdle, h.orch.Status(accountA))

	assert.Equal(t, OutcomeSettled, h.connect(accountA))
	assert.Equal(t, int32(2), h.store.reads.Load())
}

func TestOrchestrator_WrongChainRetry(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.provider.setChain("0x5")

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	require.True(t, h.notifier.click(context.Background(), promptID(accountA)))

	_, stillPrompted := h.notifier.get(promptID(accountA))
	assert.True(t, stillPrompted, "prompt stays up for a retry")
	assert.Equal(t, StateAwaitingAuthorization, h.orch.Status(accountA))
	assert.False(t, h.orch.Guard().IsSettled(accountA))
	assert.Zero(t, h.store.writesStarted.Load())

	errToast, ok := h.notifier.get(promptID(accountA) + ":error")
	require.True(t, ok)
	assert.Equal(t, "wrong chain", errToast.Message)
	assert.Equal(t, ErrorToastDuration, errToast.Duration)

	h.provider.setChain("0x01")
	require.True(t, h.notifier.click(context.Background(), promptID(accountA)))

	assert.Equal(t, int32(1), h.store.writes.Load())
	assert.True(t, h.orch.Guard().IsSettled(accountA))
	assert.Contains(t, h.notifier.messages(ToastSuccess), "stored")
	assert.Equal(t, 1, h.recorder.failures[ErrCodeWrongChain])
}

func TestOrchestrator_WrongChainRestoresClosedPrompt(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.provider.setChain("0x5")
	require.Equal(t, OutcomePrompted, h.connect(accountA))

	block := make(chan struct{})
	h.provider.mu.Lock()
	h.provider.block = block
	h.provider.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.notifier.click(context.Background(), promptID(accountA))
		close(done)
	}()
	require.Eventually(t, func() bool { return h.provider.requests.Load() == 1 }, time.Second, time.Millisecond)

	require.True(t, h.notifier.close(context.Background(), promptID(accountA)))
	close(block)
	<-done

	_, prompted := h.notifier.get(promptID(accountA))
	assert.True(t, prompted, "the prompt comes back so the user can retry")
	assert.Zero(t, h.wallet.disconnectCount())
	assert.Equal(t, StateAwaitingAuthorization, h.orch.Status(accountA))
}

func TestOrchestrator_RejectionIsNonTerminal(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.store.setWriteErr(&ProviderRPCError{Code: ProviderErrUserRejected, Message: "User rejected the request."})

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	require.True(t, h.notifier.click(context.Background(), promptID(accountA)))

	_, prompted := h.notifier.get(promptID(accountA))
	assert.False(t, prompted)
	assert.Equal(t, []string{"rejected"}, h.notifier.messages(ToastError))
	assert.Equal(t, StateIdle, h.orch.Status(accountA))
	assert.False(t, h.orch.Guard().IsSettled(accountA))

	h.disconnect(accountA)
	h.store.setWriteErr(nil)
	assert.Equal(t, OutcomePrompted, h.connect(accountA))
	assert.Equal(t, 2, h.notifier.showCount(promptID(accountA)))
}

func TestOrchestrator_RejectionByMessage(t *testing.T) {
	h := newHarness(t, DismissSettle)
	h.store.setWriteErr(errors.New("MetaMask Tx Signature: User denied message signature."))

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	h.notifier.click(context.Background(), promptID(accountA))

	assert.Equal(t, []string{"rejected"}, h.notifier.messages(ToastError))
}

func TestOrchestrator_WriteTransportFailure(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.store.setWriteErr(errors.Join(ErrTransport, errors.New("connection reset")))

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	h.notifier.click(context.Background(), promptID(accountA))

	assert.Equal(t, []string{"failed"}, h.notifier.messages(ToastError))
	assert.Equal(t, StateIdle, h.orch.Status(accountA))
	assert.False(t, h.orch.Guard().IsSettled(accountA))
	assert.Equal(t, 1, h.recorder.failures[ErrCodeTransportFailure])
}

func TestOrchestrator_ReadFailureReleases(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.store.setReadErr(errors.Join(ErrTransport, errors.New("502")))

	assert.Equal(t, OutcomeAborted, h.connect(accountA))
	assert.Empty(t, h.notifier.shown, "read failures are silent")
	assert.Equal(t, StateIdle, h.orch.Status(accountA))

	// the next connect retries at once
	h.store.setReadErr(nil)
	assert.Equal(t, OutcomePrompted, h.orch.OnConnect(context.Background(), accountA, h.connector))
	assert.Equal(t, int32(2), h.store.reads.Load())
}

func TestOrchestrator_DisconnectDuringSettleWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newHarness(t, DismissDisconnect, WithClock(clock), WithSettleDelay(DefaultSettleDelay))
	h.wallet.connect(accountA, h.connector)

	outcome := make(chan Outcome, 1)
	go func() {
		outcome <- h.orch.OnConnect(context.Background(), accountA, h.connector)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	h.disconnect(accountA)
	clock.Advance(DefaultSettleDelay)

	assert.Equal(t, OutcomeAborted, <-outcome)
	assert.Zero(t, h.store.reads.Load())
	assert.Empty(t, h.notifier.shown)
}

func TestOrchestrator_ContextCancelledDuringSettleWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := newHarness(t, DismissDisconnect, WithClock(clock), WithSettleDelay(DefaultSettleDelay))
	h.wallet.connect(accountA, h.connector)

	ctx, cancel := context.WithCancel(context.Background())
	outcome := make(chan Outcome, 1)
	go func() {
		outcome <- h.orch.OnConnect(ctx, accountA, h.connector)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	assert.Equal(t, OutcomeAborted, <-outcome)
	assert.Equal(t, "", h.orch.Guard().Active())
}

func TestOrchestrator_DisconnectWithdrawsPrompt(t *testing.T) {
	h := newHarness(t, DismissDisconnect)

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	prompt, _ := h.notifier.get(promptID(accountA))

	h.disconnect(accountA)

	_, prompted := h.notifier.get(promptID(accountA))
	assert.False(t, prompted)
	assert.Contains(t, h.notifier.dismissed, promptID(accountA))

	// the withdrawn prompt's continuation is inert
	prompt.Action.Command.Execute(context.Background())
	prompt.OnDismiss.Execute(context.Background())
	assert.Zero(t, h.store.writesStarted.Load())
	assert.Equal(t, 1, h.wallet.disconnectCount())
}

func TestOrchestrator_StaleCommandAfterRearm(t *testing.T) {
	h := newHarness(t, DismissDisconnect)

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	stale, _ := h.notifier.get(promptID(accountA))

	h.disconnect(accountA)
	require.Equal(t, OutcomePrompted, h.connect(accountA))
	fresh, _ := h.notifier.get(promptID(accountA))

	staleCmd := stale.Action.Command.(PromptCommand)
	freshCmd := fresh.Action.Command.(PromptCommand)
	assert.Equal(t, staleCmd.PromptID, freshCmd.PromptID)
	assert.Less(t, staleCmd.Generation, freshCmd.Generation)

	stale.Action.Command.Execute(context.Background())
	assert.Zero(t, h.store.writesStarted.Load())

	fresh.Action.Command.Execute(context.Background())
	assert.Equal(t, int32(1), h.store.writes.Load())
}

func TestOrchestrator_DisconnectDuringAuthorization(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	require.Equal(t, OutcomePrompted, h.connect(accountA))

	block := make(chan struct{})
	h.store.mu.Lock()
	h.store.block = block
	h.store.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.notifier.click(context.Background(), promptID(accountA))
		close(done)
	}()
	require.Eventually(t, func() bool { return h.store.writesStarted.Load() == 1 }, time.Second, time.Millisecond)

	h.disconnect(accountA)
	close(block)
	<-done

	assert.False(t, h.orch.Guard().IsSettled(accountA), "a disconnect mid-write must not leave the account settled")
	assert.Empty(t, h.notifier.messages(ToastSuccess))
	assert.Equal(t, StateIdle, h.orch.Status(accountA))
}

func TestOrchestrator_CloseDuringAuthorization(t *testing.T) {
	for _, policy := range []DismissPolicy{DismissDisconnect, DismissSettle} {
		h := newHarness(t, policy)
		require.Equal(t, OutcomePrompted, h.connect(accountA))

		block := make(chan struct{})
		h.store.mu.Lock()
		h.store.block = block
		h.store.mu.Unlock()

		done := make(chan struct{})
		go func() {
			h.notifier.click(context.Background(), promptID(accountA))
			close(done)
		}()
		require.Eventually(t, func() bool { return h.store.writesStarted.Load() == 1 }, time.Second, time.Millisecond)

		require.True(t, h.notifier.close(context.Background(), promptID(accountA)))
		assert.Zero(t, h.wallet.disconnectCount(), "closing mid-signature must not end the session")

		close(block)
		<-done

		assert.True(t, h.orch.Guard().IsSettled(accountA))
		assert.Equal(t, []string{"stored"}, h.notifier.messages(ToastSuccess))
		h.concern.mu.Lock()
		assert.Equal(t, []string{accountA}, h.concern.stored)
		h.concern.mu.Unlock()
		assert.Equal(t, int32(1), h.store.writesStarted.Load())
	}
}

func TestOrchestrator_Supersede(t *testing.T) {
	h := newHarness(t, DismissDisconnect)

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	require.Equal(t, OutcomePrompted, h.connect(accountB))

	_, promptedA := h.notifier.get(promptID(accountA))
	assert.False(t, promptedA, "the superseded prompt is withdrawn")
	_, promptedB := h.notifier.get(promptID(accountB))
	assert.True(t, promptedB)

	assert.Equal(t, StateIdle, h.orch.Status(accountA))
	assert.Equal(t, accountB, h.orch.Guard().Active())
}

func TestOrchestrator_LoginDismissDisconnects(t *testing.T) {
	h := newHarness(t, DismissDisconnect)

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	require.True(t, h.notifier.close(context.Background(), promptID(accountA)))

	assert.Equal(t, 1, h.wallet.disconnectCount())
	assert.False(t, h.orch.Guard().IsSettled(accountA))
	assert.Equal(t, StateIdle, h.orch.Status(accountA))
	assert.Zero(t, h.store.writesStarted.Load())
}

func TestOrchestrator_ProfileDismissSettles(t *testing.T) {
	h := newHarness(t, DismissSettle)

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	require.True(t, h.notifier.close(context.Background(), promptID(accountA)))

	assert.Zero(t, h.wallet.disconnectCount())
	assert.True(t, h.orch.Guard().IsSettled(accountA))
	assert.Equal(t, OutcomeSkipped, h.orch.OnConnect(context.Background(), accountA, h.connector))
	assert.Equal(t, int32(1), h.store.reads.Load())
}

func TestOrchestrator_BeforeConnectHookAborts(t *testing.T) {
	h := newHarness(t, DismissDisconnect, WithBeforeConnectHook(func(cc ConnectContext) (*BeforeHookResult, error) {
		return &BeforeHookResult{Abort: true, Reason: "maintenance"}, nil
	}))

	assert.Equal(t, OutcomeSkipped, h.connect(accountA))
	assert.Zero(t, h.store.reads.Load())
	assert.Equal(t, "", h.orch.Guard().Active())
}

func TestOrchestrator_AfterSettleHook(t *testing.T) {
	var mu sync.Mutex
	var sources []SettleSource
	hook := func(sc SettleResultContext) error {
		mu.Lock()
		defer mu.Unlock()
		sources = append(sources, sc.Source)
		return errors.New("hook errors are logged, not propagated")
	}

	h := newHarness(t, DismissSettle, WithAfterSettleHook(hook))
	h.store.put(accountA, "login", `{"login":1}`)

	require.Equal(t, OutcomeSettled, h.connect(accountA))
	require.Equal(t, OutcomePrompted, h.connect(accountB))
	h.notifier.click(context.Background(), promptID(accountB))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []SettleSource{SettledByRead, SettledByWrite}, sources)
}

func TestOrchestrator_FailureHookSeesCode(t *testing.T) {
	var codes []string
	h := newHarness(t, DismissDisconnect, WithOnFlowFailureHook(func(fc FlowFailureContext) error {
		codes = append(codes, fc.Code)
		return nil
	}))
	h.provider.setChain("0xaa36a7")

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	h.notifier.click(context.Background(), promptID(accountA))

	assert.Equal(t, []string{ErrCodeWrongChain}, codes)
}

func TestOrchestrator_SaveLeavesGuard(t *testing.T) {
	h := newHarness(t, DismissSettle, WithChannel("TEST_CHANNEL"))
	h.wallet.connect(accountA, h.connector)

	require.NoError(t, h.orch.Save(context.Background(), accountA, h.connector))
	assert.Equal(t, int32(1), h.store.writes.Load())
	assert.Equal(t, []string{"TEST_CHANNEL"}, h.store.channels)
	assert.Equal(t, []string{"stored"}, h.notifier.messages(ToastSuccess))
	assert.Equal(t, StateIdle, h.orch.Status(accountA))

	h.provider.setChain("0x89")
	err := h.orch.Save(context.Background(), accountA, h.connector)
	require.Error(t, err)
	assert.Equal(t, ErrCodeWrongChain, Classify(err))
	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, "login", flowErr.Concern)
}

func TestOrchestrator_NoProvider(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.connector.provider = nil

	require.Equal(t, OutcomePrompted, h.connect(accountA))
	h.notifier.click(context.Background(), promptID(accountA))

	assert.Equal(t, []string{"failed"}, h.notifier.messages(ToastError))
	assert.Equal(t, StateIdle, h.orch.Status(accountA))
}

func TestOrchestrator_RecordsOutcomes(t *testing.T) {
	h := newHarness(t, DismissDisconnect)
	h.store.put(accountA, "login", `{"login":1}`)

	h.connect(accountA)
	h.orch.OnConnect(context.Background(), accountA, h.connector)

	assert.Equal(t, 1, h.recorder.outcomes["settled"])
	assert.Equal(t, 1, h.recorder.outcomes["skipped"])
	assert.Equal(t, 1, h.recorder.calls["read"])
}
