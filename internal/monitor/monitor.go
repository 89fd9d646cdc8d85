// Package monitor watches the settler contract on every configured source
// chain and turns valid Open events into normalized intents on a channel.
package monitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/openintents/solverd/internal/chain"
	"github.com/openintents/solverd/internal/domain"
)

// Monitor runs one subscription goroutine per source chain. Malformed events
// are logged and dropped at this boundary; subscription failures degrade that
// chain's monitoring without affecting the others.
type Monitor struct {
	handles map[uint64]*chain.Handle
	out     chan domain.Intent
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor over the given client set. The buffer size bounds how
// many intents can queue before emission applies back-pressure to the
// subscription goroutines.
func New(set *chain.ClientSet, buffer int, logger *slog.Logger) *Monitor {
	if buffer <= 0 {
		buffer = 64
	}
	return &Monitor{
		handles: set.Handles(),
		out:     make(chan domain.Intent, buffer),
		logger:  logger.With(slog.String("component", "monitor")),
	}
}

// Intents returns the channel of normalized intents. It is closed by Stop
// after all subscription goroutines have exited.
func (m *Monitor) Intents() <-chan domain.Intent {
	return m.out
}

// Start subscribes to the Open event on every chain with a resolved settler
// address. Chains without one are skipped with a log line.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	subCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, h := range m.handles {
		if !h.HasSettler {
			m.logger.Info("skipping chain without settler",
				slog.Uint64("chain_id", h.ChainID),
				slog.String("chain", h.Name),
			)
			continue
		}
		m.wg.Add(1)
		go m.watchChain(subCtx, h)
	}
}

// Stop cancels all subscriptions and returns once every subscription
// goroutine has acknowledged cancellation. The intent channel is closed so
// consumers observe end-of-stream.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	close(m.out)
}

// watchChain holds one chain's log subscription until the context is
// cancelled or the subscription errors out. Reconnection is the chain
// client's concern, not reimplemented here; a dropped subscription degrades
// this chain only.
func (m *Monitor) watchChain(ctx context.Context, h *chain.Handle) {
	defer m.wg.Done()

	log := m.logger.With(
		slog.Uint64("chain_id", h.ChainID),
		slog.String("chain", h.Name),
	)

	query := ethereum.FilterQuery{
		Addresses: []common.Address{h.Settler},
		Topics:    [][]common.Hash{{chain.OpenTopic}},
	}
	logs := make(chan types.Log, 64)

	sub, err := h.Client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		log.Error("subscribe failed, chain monitoring disabled",
			slog.String("error", err.Error()),
		)
		return
	}
	defer sub.Unsubscribe()

	log.Info("watching settler", slog.String("settler", h.Settler.Hex()))

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				log.Error("subscription dropped",
					slog.String("error", err.Error()),
				)
			}
			return
		case lg := <-logs:
			if lg.Removed {
				// Reorged-out log; the replacement will arrive on its own.
				continue
			}
			intent, ok := m.normalize(h, lg, log)
			if !ok {
				continue
			}
			select {
			case m.out <- intent:
				log.Info("intent observed",
					slog.String("order_id", intent.OrderID),
					slog.Uint64("destination_chain", intent.DestinationChain),
					slog.String("tx_hash", intent.TxHash),
				)
			case <-ctx.Done():
				return
			}
		}
	}
}

// normalize validates the raw Open log and converts it into an Intent.
// Validation failures are warnings, never errors: a malformed event must not
// crash the monitor or reach downstream components.
func (m *Monitor) normalize(h *chain.Handle, lg types.Log, log *slog.Logger) (domain.Intent, bool) {
	resolved, err := chain.ParseOpenLog(lg)
	if err != nil {
		log.Warn("dropping undecodable event",
			slog.String("tx_hash", lg.TxHash.Hex()),
			slog.String("error", err.Error()),
		)
		return domain.Intent{}, false
	}

	drop := func(reason string) (domain.Intent, bool) {
		log.Warn("dropping malformed intent",
			slog.String("order_id", common.Hash(resolved.OrderId).Hex()),
			slog.String("tx_hash", lg.TxHash.Hex()),
			slog.String("reason", reason),
		)
		return domain.Intent{}, false
	}

	if resolved.OrderId == ([32]byte{}) {
		return drop("zero order id")
	}
	if len(resolved.MaxSpent) == 0 {
		return drop("empty maxSpent")
	}
	if len(resolved.MinReceived) == 0 {
		return drop("empty minReceived")
	}

	// Output leg: what the solver must deliver on the destination chain.
	out := resolved.MaxSpent[0]
	// Input leg: what the user escrowed for the solver on the source chain.
	in := resolved.MinReceived[0]

	if out.Amount == nil || out.Amount.Sign() <= 0 {
		return drop("non-positive output amount")
	}
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return drop("non-positive input amount")
	}

	outToken, ok := chain.AddressFromBytes32(out.Token)
	if !ok {
		return drop("output token is not an address")
	}
	recipient, ok := chain.AddressFromBytes32(out.Recipient)
	if !ok {
		return drop("recipient is not an address")
	}
	inToken, ok := chain.AddressFromBytes32(in.Token)
	if !ok {
		return drop("input token is not an address")
	}
	if out.ChainId == nil || !out.ChainId.IsUint64() || out.ChainId.Uint64() == 0 {
		return drop("invalid destination chain id")
	}

	return domain.Intent{
		OrderID:          common.Hash(resolved.OrderId).Hex(),
		User:             strings.ToLower(resolved.User.Hex()),
		Recipient:        strings.ToLower(recipient.Hex()),
		SourceChain:      h.ChainID,
		DestinationChain: out.ChainId.Uint64(),
		InputToken:       strings.ToLower(inToken.Hex()),
		InputAmount:      in.Amount,
		OutputToken:      strings.ToLower(outToken.Hex()),
		OutputAmount:     out.Amount,
		Deadline:         int64(resolved.FillDeadline),
		BlockNumber:      lg.BlockNumber,
		TxHash:           lg.TxHash.Hex(),
	}, true
}
