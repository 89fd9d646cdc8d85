package solver

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openintents/solverd/internal/chain"
	"github.com/openintents/solverd/internal/config"
	"github.com/openintents/solverd/internal/domain"
)

// IntentSource feeds normalized intents to the agent. Satisfied by
// monitor.Monitor.
type IntentSource interface {
	Start(ctx context.Context)
	Stop()
	Intents() <-chan domain.Intent
}

// Evaluator decides intent profitability. Satisfied by strategy.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, intent domain.Intent) (domain.EvaluationResult, error)
}

// Liquidity guards and tracks solver balances. Satisfied by liquidity.Ledger.
type Liquidity interface {
	HasLiquidity(chainID uint64, token string, amount *big.Int) bool
	RecordFill(chainID uint64, token string, amount *big.Int)
}

// Executor runs destination-chain operations. Satisfied by chain.Executor.
type Executor interface {
	CanSign(chainID uint64) bool
	GasPrice(ctx context.Context, chainID uint64) (*big.Int, error)
	IsFilled(ctx context.Context, chainID uint64, orderID string) (bool, error)
	Fill(ctx context.Context, intent domain.Intent) (chain.FillOutcome, error)
}

// Notifier pushes solver lifecycle events to external channels. Satisfied by
// notify.Manager.
type Notifier interface {
	Notify(ctx context.Context, event, message string)
}

// Deps bundles the agent's collaborators. Intents, Fills, Locks, and Notifier
// are optional; a nil value disables that surface.
type Deps struct {
	Monitor  IntentSource
	Engine   Evaluator
	Ledger   Liquidity
	Exec     Executor
	Intents  domain.IntentStore
	Fills    domain.FillStore
	Locks    domain.LockManager
	Notifier Notifier
}

// Agent consumes intents and drives each through the evaluation and fill
// pipeline. Every order runs in its own goroutine; the PendingSet guarantees
// at most one pipeline per order id at a time.
type Agent struct {
	deps    Deps
	pending *PendingSet
	logger  *slog.Logger

	maxGasPrice *big.Int
	lockTTL     time.Duration
	observeOnly bool

	wg sync.WaitGroup
}

// NewAgent builds the orchestrator. observeOnly evaluates and logs but never
// submits transactions, matching a deployment without a signing credential.
func NewAgent(deps Deps, cfg config.SolverConfig, observeOnly bool, logger *slog.Logger) (*Agent, error) {
	maxGas, ok := cfg.MaxGasPrice()
	if !ok {
		return nil, fmt.Errorf("solver: max_gas_price_wei %q is not an integer", cfg.MaxGasPriceWei)
	}
	return &Agent{
		deps:        deps,
		pending:     NewPendingSet(),
		logger:      logger.With(slog.String("component", "solver")),
		maxGasPrice: maxGas,
		lockTTL:     cfg.FillLockTTL.Duration,
		observeOnly: observeOnly,
	}, nil
}

// Start begins monitoring and consuming intents. Processing uses a context
// detached from cancellation so that in-flight fills reach their receipts
// during shutdown; Stop provides the drain guarantee.
func (a *Agent) Start(ctx context.Context) {
	a.deps.Monitor.Start(ctx)

	procCtx := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go a.consume(procCtx)
}

// Stop halts intent emission, then waits for every in-flight order to reach a
// terminal state. The caller may wrap this with its own deadline.
func (a *Agent) Stop() {
	a.deps.Monitor.Stop()
	a.wg.Wait()
}

func (a *Agent) consume(ctx context.Context) {
	defer a.wg.Done()

	for intent := range a.deps.Monitor.Intents() {
		if !a.pending.TryAdd(intent.OrderID) {
			a.logger.Info("duplicate delivery dropped",
				slog.String("order_id", intent.OrderID),
			)
			continue
		}
		a.wg.Add(1)
		go func(in domain.Intent) {
			defer a.wg.Done()
			a.process(ctx, in)
		}(intent)
	}
}

// process drives one order through the full state machine. The PendingSet
// removal is deferred so no outcome, normal or panic-free error path, can
// strand the order id and block a later legitimate retry delivery.
func (a *Agent) process(ctx context.Context, intent domain.Intent) {
	defer a.pending.Remove(intent.OrderID)

	log := a.logger.With(
		slog.String("order_id", intent.OrderID),
		slog.Uint64("source_chain", intent.SourceChain),
		slog.Uint64("destination_chain", intent.DestinationChain),
	)
	a.persistIntent(ctx, intent)

	if intent.Expired(time.Now()) {
		a.reject(ctx, log, intent, "fill deadline passed")
		return
	}

	if filled, err := a.deps.Exec.IsFilled(ctx, intent.DestinationChain, intent.OrderID); err != nil {
		// Pre-check is an optimization; proceed and let the fill itself fail.
		log.Warn("fill status pre-check failed", slog.String("error", err.Error()))
	} else if filled {
		a.reject(ctx, log, intent, "already filled by another solver")
		return
	}

	res, err := a.deps.Engine.Evaluate(ctx, intent)
	if err != nil {
		a.reject(ctx, log, intent, fmt.Sprintf("evaluation failed: %v", err))
		return
	}
	if !res.Profitable {
		a.reject(ctx, log, intent, res.Reason)
		return
	}
	log.Info("intent evaluated profitable",
		slog.Int("expected_profit_bps", res.ExpectedProfitBps),
	)

	if a.observeOnly || !a.deps.Exec.CanSign(intent.DestinationChain) {
		a.reject(ctx, log, intent, "observe only, no signer for destination chain")
		return
	}

	if !a.deps.Ledger.HasLiquidity(intent.DestinationChain, intent.OutputToken, intent.OutputAmount) {
		a.reject(ctx, log, intent, "insufficient liquidity")
		return
	}

	if a.deps.Locks != nil {
		unlock, err := a.deps.Locks.Acquire(ctx, "fill:"+intent.OrderID, a.lockTTL)
		if err != nil {
			a.reject(ctx, log, intent, fmt.Sprintf("fill lock not acquired: %v", err))
			return
		}
		defer unlock()
	}

	// Gas may have moved since evaluation; re-check the ceiling before
	// committing capital.
	gasPrice, err := a.deps.Exec.GasPrice(ctx, intent.DestinationChain)
	if err != nil {
		a.reject(ctx, log, intent, fmt.Sprintf("gas re-check failed: %v", err))
		return
	}
	if gasPrice.Cmp(a.maxGasPrice) > 0 {
		a.reject(ctx, log, intent, "gas too high at fill time")
		return
	}

	a.updateStatus(ctx, intent.OrderID, domain.IntentStatusFilling, "")
	log.Info("submitting fill",
		slog.String("token", intent.OutputToken),
		slog.String("amount", intent.OutputAmount.String()),
	)

	outcome, err := a.deps.Exec.Fill(ctx, intent)
	if err != nil {
		a.fail(ctx, log, intent, res, outcome.TxHash, fmt.Sprintf("fill submission failed: %v", err))
		return
	}
	if outcome.Reverted {
		a.fail(ctx, log, intent, res, outcome.TxHash, "fill transaction reverted")
		return
	}

	a.deps.Ledger.RecordFill(intent.DestinationChain, intent.OutputToken, intent.OutputAmount)
	a.updateStatus(ctx, intent.OrderID, domain.IntentStatusFilled, "")
	a.persistFill(ctx, intent, res, outcome.TxHash, domain.IntentStatusFilled)
	log.Info("intent filled",
		slog.String("tx_hash", outcome.TxHash),
		slog.Int("profit_bps", res.ExpectedProfitBps),
	)
	a.notify(ctx, "intent_filled", fmt.Sprintf(
		"filled order %s on chain %d for %s (profit %d bps, tx %s)",
		intent.OrderID, intent.DestinationChain, intent.OutputAmount, res.ExpectedProfitBps, outcome.TxHash,
	))
}

func (a *Agent) reject(ctx context.Context, log *slog.Logger, intent domain.Intent, reason string) {
	log.Info("intent rejected", slog.String("reason", reason))
	a.updateStatus(ctx, intent.OrderID, domain.IntentStatusRejected, reason)
}

// fail records a terminal failure. The ledger is deliberately left untouched:
// a reverted fill spent gas but moved no tokens.
func (a *Agent) fail(ctx context.Context, log *slog.Logger, intent domain.Intent, res domain.EvaluationResult, txHash, reason string) {
	log.Error("intent fill failed",
		slog.String("reason", reason),
		slog.String("tx_hash", txHash),
	)
	a.updateStatus(ctx, intent.OrderID, domain.IntentStatusFailed, reason)
	a.persistFill(ctx, intent, res, txHash, domain.IntentStatusFailed)
	a.notify(ctx, "fill_failed", fmt.Sprintf(
		"fill failed for order %s on chain %d: %s (tx %s)",
		intent.OrderID, intent.DestinationChain, reason, txHash,
	))
}

// Persistence is audit-only and must never affect order processing.

func (a *Agent) persistIntent(ctx context.Context, intent domain.Intent) {
	if a.deps.Intents == nil {
		return
	}
	if err := a.deps.Intents.Create(ctx, intent); err != nil {
		a.logger.Warn("intent persist failed",
			slog.String("order_id", intent.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (a *Agent) updateStatus(ctx context.Context, orderID string, status domain.IntentStatus, reason string) {
	if a.deps.Intents == nil {
		return
	}
	if err := a.deps.Intents.UpdateStatus(ctx, orderID, status, reason); err != nil {
		a.logger.Warn("intent status persist failed",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}
}

func (a *Agent) persistFill(ctx context.Context, intent domain.Intent, res domain.EvaluationResult, txHash string, status domain.IntentStatus) {
	if a.deps.Fills == nil {
		return
	}
	rec := domain.FillRecord{
		ID:        uuid.NewString(),
		OrderID:   intent.OrderID,
		ChainID:   intent.DestinationChain,
		Token:     intent.OutputToken,
		Amount:    intent.OutputAmount,
		TxHash:    txHash,
		Status:    status,
		ProfitBps: res.ExpectedProfitBps,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.deps.Fills.Create(ctx, rec); err != nil {
		a.logger.Warn("fill record persist failed",
			slog.String("order_id", intent.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (a *Agent) notify(ctx context.Context, event, message string) {
	if a.deps.Notifier == nil {
		return
	}
	a.deps.Notifier.Notify(ctx, event, message)
}
