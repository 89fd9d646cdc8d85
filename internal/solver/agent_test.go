package solver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openintents/solverd/internal/chain"
	"github.com/openintents/solverd/internal/config"
	"github.com/openintents/solverd/internal/domain"
)

type fakeMonitor struct {
	ch   chan domain.Intent
	once sync.Once
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{ch: make(chan domain.Intent, 16)}
}

func (m *fakeMonitor) Start(ctx context.Context)     {}
func (m *fakeMonitor) Stop()                         { m.once.Do(func() { close(m.ch) }) }
func (m *fakeMonitor) Intents() <-chan domain.Intent { return m.ch }

type fakeEngine struct {
	res domain.EvaluationResult
	err error
}

func (e *fakeEngine) Evaluate(ctx context.Context, intent domain.Intent) (domain.EvaluationResult, error) {
	return e.res, e.err
}

type fakeLedger struct {
	mu    sync.Mutex
	has   bool
	fills int
}

func (l *fakeLedger) HasLiquidity(chainID uint64, token string, amount *big.Int) bool {
	return l.has
}

func (l *fakeLedger) RecordFill(chainID uint64, token string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fills++
}

func (l *fakeLedger) fillCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fills
}

type fakeExec struct {
	mu          sync.Mutex
	canSign     bool
	gasPrice    *big.Int
	isFilled    bool
	isFilledErr error
	outcome     chain.FillOutcome
	fillErr     error
	fillCalls   int

	fillStarted chan struct{}
	fillRelease chan struct{}
}

func (e *fakeExec) CanSign(chainID uint64) bool { return e.canSign }

func (e *fakeExec) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	return e.gasPrice, nil
}

func (e *fakeExec) IsFilled(ctx context.Context, chainID uint64, orderID string) (bool, error) {
	return e.isFilled, e.isFilledErr
}

func (e *fakeExec) Fill(ctx context.Context, intent domain.Intent) (chain.FillOutcome, error) {
	e.mu.Lock()
	e.fillCalls++
	e.mu.Unlock()
	if e.fillStarted != nil {
		e.fillStarted <- struct{}{}
	}
	if e.fillRelease != nil {
		<-e.fillRelease
	}
	return e.outcome, e.fillErr
}

func (e *fakeExec) fillCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fillCalls
}

type statusUpdate struct {
	status domain.IntentStatus
	reason string
}

type fakeIntentStore struct {
	mu       sync.Mutex
	statuses map[string][]statusUpdate
}

func newFakeIntentStore() *fakeIntentStore {
	return &fakeIntentStore{statuses: make(map[string][]statusUpdate)}
}

func (s *fakeIntentStore) Create(ctx context.Context, intent domain.Intent) error { return nil }

func (s *fakeIntentStore) UpdateStatus(ctx context.Context, orderID string, status domain.IntentStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[orderID] = append(s.statuses[orderID], statusUpdate{status, reason})
	return nil
}

func (s *fakeIntentStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Intent, error) {
	return nil, nil
}

func (s *fakeIntentStore) last(orderID string) (statusUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ups := s.statuses[orderID]
	if len(ups) == 0 {
		return statusUpdate{}, false
	}
	return ups[len(ups)-1], true
}

type fakeFillStore struct {
	mu      sync.Mutex
	records []domain.FillRecord
}

func (s *fakeFillStore) Create(ctx context.Context, fill domain.FillRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, fill)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(ctx context.Context, event, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type fakeLocks struct{ err error }

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

func profitableResult() domain.EvaluationResult {
	return domain.EvaluationResult{
		Profitable:        true,
		ExpectedProfitBps: 98,
		GasEstimate:       big.NewInt(150_000),
	}
}

func newTestAgent(t *testing.T, deps Deps, observeOnly bool) *Agent {
	t.Helper()
	cfg := config.SolverConfig{
		MinProfitBps:   10,
		MaxGasPriceWei: "100000000000",
		MaxIntentSize:  "1000000000000",
		FillGasUnits:   150_000,
	}
	agent, err := NewAgent(deps, cfg, observeOnly, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return agent
}

func liveIntent(orderID string) domain.Intent {
	return domain.Intent{
		OrderID:          orderID,
		User:             "0x1111111111111111111111111111111111111111",
		Recipient:        "0x2222222222222222222222222222222222222222",
		SourceChain:      1,
		DestinationChain: 10,
		InputToken:       "0x3333333333333333333333333333333333333333",
		InputAmount:      big.NewInt(1_000_000),
		OutputToken:      "0x4444444444444444444444444444444444444444",
		OutputAmount:     big.NewInt(990_000),
		Deadline:         time.Now().Add(time.Hour).Unix(),
	}
}

func baseDeps(store *fakeIntentStore, exec *fakeExec, ledger *fakeLedger) Deps {
	return Deps{
		Monitor: newFakeMonitor(),
		Engine:  &fakeEngine{res: profitableResult()},
		Ledger:  ledger,
		Exec:    exec,
		Intents: store,
	}
}

func TestSuccessfulFill(t *testing.T) {
	store := newFakeIntentStore()
	fills := &fakeFillStore{}
	notifier := &fakeNotifier{}
	exec := &fakeExec{
		canSign:  true,
		gasPrice: big.NewInt(1),
		outcome:  chain.FillOutcome{TxHash: "0xf111"},
	}
	ledger := &fakeLedger{has: true}

	deps := baseDeps(store, exec, ledger)
	deps.Fills = fills
	deps.Notifier = notifier
	agent := newTestAgent(t, deps, false)

	agent.process(context.Background(), liveIntent("0xaa"))

	assert.Equal(t, 1, exec.fillCount())
	assert.Equal(t, 1, ledger.fillCount())

	last, ok := store.last("0xaa")
	require.True(t, ok)
	assert.Equal(t, domain.IntentStatusFilled, last.status)

	require.Len(t, fills.records, 1)
	assert.Equal(t, "0xf111", fills.records[0].TxHash)
	assert.Equal(t, 98, fills.records[0].ProfitBps)
	assert.Equal(t, []string{"intent_filled"}, notifier.events)
	assert.Equal(t, 0, agent.pending.Len())
}

func TestUnprofitableIntentRejected(t *testing.T) {
	store := newFakeIntentStore()
	exec := &fakeExec{canSign: true, gasPrice: big.NewInt(1)}
	ledger := &fakeLedger{has: true}

	deps := baseDeps(store, exec, ledger)
	deps.Engine = &fakeEngine{res: domain.EvaluationResult{Profitable: false, Reason: "no fee"}}
	agent := newTestAgent(t, deps, false)

	agent.process(context.Background(), liveIntent("0xaa"))

	assert.Equal(t, 0, exec.fillCount())
	last, ok := store.last("0xaa")
	require.True(t, ok)
	assert.Equal(t, domain.IntentStatusRejected, last.status)
	assert.Equal(t, "no fee", last.reason)
}

func TestAlreadyFilledSkipped(t *testing.T) {
	store := newFakeIntentStore()
	exec := &fakeExec{canSign: true, gasPrice: big.NewInt(1), isFilled: true}
	ledger := &fakeLedger{has: true}
	agent := newTestAgent(t, baseDeps(store, exec, ledger), false)

	agent.process(context.Background(), liveIntent("0xaa"))

	assert.Equal(t, 0, exec.fillCount())
	last, _ := store.last("0xaa")
	assert.Equal(t, domain.IntentStatusRejected, last.status)
}

func TestPreCheckErrorDoesNotBlockFill(t *testing.T) {
	exec := &fakeExec{
		canSign:     true,
		gasPrice:    big.NewInt(1),
		isFilledErr: errors.New("rpc down"),
		outcome:     chain.FillOutcome{TxHash: "0xf111"},
	}
	ledger := &fakeLedger{has: true}
	agent := newTestAgent(t, baseDeps(newFakeIntentStore(), exec, ledger), false)

	agent.process(context.Background(), liveIntent("0xaa"))

	assert.Equal(t, 1, exec.fillCount())
}

func TestExpiredIntentRejected(t *testing.T) {
	store := newFakeIntentStore()
	exec := &fakeExec{canSign: true, gasPrice: big.NewInt(1)}
	agent := newTestAgent(t, baseDeps(store, exec, &fakeLedger{has: true}), false)

	intent := liveIntent("0xaa")
	intent.Deadline = time.Now().Add(-time.Minute).Unix()
	agent.process(context.Background(), intent)

	assert.Equal(t, 0, exec.fillCount())
	last, _ := store.last("0xaa")
	assert.Equal(t, domain.IntentStatusRejected, last.status)
}

func TestInsufficientLiquidityRejected(t *testing.T) {
	store := newFakeIntentStore()
	exec := &fakeExec{canSign: true, gasPrice: big.NewInt(1)}
	ledger := &fakeLedger{has: false}
	agent := newTestAgent(t, baseDeps(store, exec, ledger), false)

	agent.process(context.Background(), liveIntent("0xaa"))

	assert.Equal(t, 0, exec.fillCount())
	last, _ := store.last("0xaa")
	assert.Equal(t, domain.IntentStatusRejected, last.status)
	assert.Equal(t, "insufficient liquidity", last.reason)
}

func TestObserveOnlyNeverFills(t *testing.T) {
	exec := &fakeExec{canSign: true, gasPrice: big.NewInt(1)}
	agent := newTestAgent(t, baseDeps(newFakeIntentStore(), exec, &fakeLedger{has: true}), true)

	agent.process(context.Background(), liveIntent("0xaa"))

	assert.Equal(t, 0, exec.fillCount())
}

func TestGasRecheckAbortsFill(t *testing.T) {
	store := newFakeIntentStore()
	exec := &fakeExec{canSign: true, gasPrice: big.NewInt(200_000_000_000)}
	ledger := &fakeLedger{has: true}
	agent := newTestAgent(t, baseDeps(store, exec, ledger), false)

	agent.process(context.Background(), liveIntent("0xaa"))

	assert.Equal(t, 0, exec.fillCount())
	assert.Equal(t, 0, ledger.fillCount())
	last, _ := store.last("0xaa")
	assert.Equal(t, domain.IntentStatusRejected, last.status)
	assert.Equal(t, "gas too high at fill time", last.reason)
}

func TestLockContentionRejects(t *testing.T) {
	exec := &fakeExec{canSign: true, gasPrice: big.NewInt(1)}
	deps := baseDeps(newFakeIntentStore(), exec, &fakeLedger{has: true})
	deps.Locks = &fakeLocks{err: domain.ErrLockHeld}
	agent := newTestAgent(t, deps, false)

	agent.process(context.Background(), liveIntent("0xaa"))

	assert.Equal(t, 0, exec.fillCount())
}

func TestRevertedFillLeavesLedgerUntouched(t *testing.T) {
	store := newFakeIntentStore()
	fills := &fakeFillStore{}
	notifier := &fakeNotifier{}
	exec := &fakeExec{
		canSign:  true,
		gasPrice: big.NewInt(1),
		outcome:  chain.FillOutcome{TxHash: "0xdead", Reverted: true},
	}
	ledger := &fakeLedger{has: true}

	deps := baseDeps(store, exec, ledger)
	deps.Fills = fills
	deps.Notifier = notifier
	agent := newTestAgent(t, deps, false)

	agent.process(context.Background(), liveIntent("0xaa"))

	assert.Equal(t, 1, exec.fillCount())
	assert.Equal(t, 0, ledger.fillCount())

	last, _ := store.last("0xaa")
	assert.Equal(t, domain.IntentStatusFailed, last.status)
	require.Len(t, fills.records, 1)
	assert.Equal(t, domain.IntentStatusFailed, fills.records[0].Status)
	assert.Equal(t, []string{"fill_failed"}, notifier.events)
}

func TestAtMostOnceFillUnderDuplicateDelivery(t *testing.T) {
	mon := newFakeMonitor()
	exec := &fakeExec{
		canSign:     true,
		gasPrice:    big.NewInt(1),
		outcome:     chain.FillOutcome{TxHash: "0xf111"},
		fillStarted: make(chan struct{}, 1),
		fillRelease: make(chan struct{}),
	}
	ledger := &fakeLedger{has: true}

	deps := baseDeps(newFakeIntentStore(), exec, ledger)
	deps.Monitor = mon
	agent := newTestAgent(t, deps, false)
	agent.Start(context.Background())

	intent := liveIntent("0xaa")
	mon.ch <- intent
	<-exec.fillStarted

	// Concurrent re-deliveries of the same order while the first fill is
	// still in flight must be dropped by the pending set.
	mon.ch <- intent
	mon.ch <- intent

	done := make(chan struct{})
	go func() {
		agent.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned while a fill was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(exec.fillRelease)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the fill completed")
	}

	assert.Equal(t, 1, exec.fillCount())
	assert.Equal(t, 1, ledger.fillCount())
	assert.Equal(t, 0, agent.pending.Len())
}

func TestStopDrainsInFlightFill(t *testing.T) {
	mon := newFakeMonitor()
	store := newFakeIntentStore()
	exec := &fakeExec{
		canSign:     true,
		gasPrice:    big.NewInt(1),
		outcome:     chain.FillOutcome{TxHash: "0xf111"},
		fillStarted: make(chan struct{}, 1),
		fillRelease: make(chan struct{}),
	}
	deps := baseDeps(store, exec, &fakeLedger{has: true})
	deps.Monitor = mon
	agent := newTestAgent(t, deps, false)
	agent.Start(context.Background())

	mon.ch <- liveIntent("0xaa")
	<-exec.fillStarted

	done := make(chan struct{})
	go func() {
		agent.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned before the in-flight order reached a terminal state")
	case <-time.After(50 * time.Millisecond):
	}

	close(exec.fillRelease)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	last, ok := store.last("0xaa")
	require.True(t, ok)
	assert.Equal(t, domain.IntentStatusFilled, last.status)
}
