package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/openintents/solverd/internal/domain"
)

// FillOutcome reports how a submitted fill ended. Reverted means the
// transaction mined with a failed status; TxHash is set whenever a
// transaction reached the chain.
type FillOutcome struct {
	TxHash   string
	Reverted bool
}

// Executor runs fill-side chain operations for the solver agent, binding
// settler contracts lazily per destination chain.
type Executor struct {
	set *ClientSet

	mu       sync.Mutex
	settlers map[uint64]*Settler
}

// NewExecutor wraps a dialed client set.
func NewExecutor(set *ClientSet) *Executor {
	return &Executor{set: set, settlers: make(map[uint64]*Settler)}
}

// CanSign reports whether fills can be signed on the given chain.
func (e *Executor) CanSign(chainID uint64) bool {
	h, ok := e.set.Handle(chainID)
	return ok && h.HasSettler && h.CanSign()
}

// GasPrice reads the current gas price on the given chain.
func (e *Executor) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	return e.set.GasPrice(ctx, chainID)
}

// IsFilled probes the destination settler for an existing fill of orderID.
func (e *Executor) IsFilled(ctx context.Context, chainID uint64, orderID string) (bool, error) {
	s, err := e.settler(chainID)
	if err != nil {
		return false, err
	}
	return s.IsFilled(ctx, orderIDBytes(orderID))
}

// Fill executes the output leg of the intent on its destination chain: an
// ERC-20 output gets an approval first, a native output rides the amount as
// transaction value. A mined-but-reverted approval or fill is reported in the
// outcome, not as an error.
func (e *Executor) Fill(ctx context.Context, intent domain.Intent) (FillOutcome, error) {
	s, err := e.settler(intent.DestinationChain)
	if err != nil {
		return FillOutcome{}, err
	}

	orderID := orderIDBytes(intent.OrderID)
	token := common.HexToAddress(intent.OutputToken)
	recipient := common.HexToAddress(intent.Recipient)
	native := strings.EqualFold(intent.OutputToken, NativeToken)

	if !native {
		receipt, err := s.Approve(ctx, token, intent.OutputAmount)
		if err != nil {
			return FillOutcome{}, fmt.Errorf("chain: approve for order %s: %w", intent.OrderID, err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return FillOutcome{TxHash: receipt.TxHash.Hex(), Reverted: true}, nil
		}
	}

	receipt, err := s.Fill(ctx, orderID, recipient, token, intent.OutputAmount, native)
	if err != nil {
		return FillOutcome{}, fmt.Errorf("chain: fill order %s: %w", intent.OrderID, err)
	}
	return FillOutcome{
		TxHash:   receipt.TxHash.Hex(),
		Reverted: receipt.Status != types.ReceiptStatusSuccessful,
	}, nil
}

func (e *Executor) settler(chainID uint64) (*Settler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.settlers[chainID]; ok {
		return s, nil
	}

	h, ok := e.set.Handle(chainID)
	if !ok {
		return nil, fmt.Errorf("chain %d: not configured", chainID)
	}
	s, err := NewSettler(h)
	if err != nil {
		return nil, err
	}
	e.settlers[chainID] = s
	return s, nil
}

func orderIDBytes(orderID string) [32]byte {
	return [32]byte(common.HexToHash(orderID))
}
