package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/openintents/solverd/internal/domain"
)

// Settler binds the output settler contract on one chain. Read methods work
// without a signer; Fill and Approve require one.
type Settler struct {
	handle *Handle
	bound  *bind.BoundContract
}

// NewSettler binds the settler contract at the handle's resolved address. It
// returns domain.ErrNoSettler when the chain has no settler configured.
func NewSettler(h *Handle) (*Settler, error) {
	if !h.HasSettler {
		return nil, fmt.Errorf("chain %d: %w", h.ChainID, domain.ErrNoSettler)
	}
	return &Settler{
		handle: h,
		bound:  bind.NewBoundContract(h.Settler, settlerABI, h.Client, h.Client, h.Client),
	}, nil
}

// IsFilled probes whether an order has already been filled on this settler.
func (s *Settler) IsFilled(ctx context.Context, orderID [32]byte) (bool, error) {
	var out []interface{}
	if err := s.bound.Call(&bind.CallOpts{Context: ctx}, &out, "isFilled", orderID); err != nil {
		return false, fmt.Errorf("chain %d: isFilled: %w", s.handle.ChainID, err)
	}
	filled, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("chain %d: isFilled returned unexpected type %T", s.handle.ChainID, out[0])
	}
	return filled, nil
}

// Fill submits the fill transaction and waits for its receipt. For native
// fills the amount rides as transaction value; for ERC-20 fills the settler
// pulls the tokens via a prior approval. The returned receipt may carry a
// failed status; the caller decides how to record it.
func (s *Settler) Fill(ctx context.Context, orderID [32]byte, recipient, token common.Address, amount *big.Int, native bool) (*types.Receipt, error) {
	opts, err := s.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	if native {
		opts.Value = amount
	}

	tx, err := s.bound.Transact(opts, "fill", orderID, recipient, token, amount)
	if err != nil {
		return nil, fmt.Errorf("chain %d: submit fill: %w", s.handle.ChainID, err)
	}

	receipt, err := bind.WaitMined(ctx, s.handle.Client, tx)
	if err != nil {
		return nil, fmt.Errorf("chain %d: wait fill receipt %s: %w", s.handle.ChainID, tx.Hash(), err)
	}
	return receipt, nil
}

// Approve grants the settler an ERC-20 allowance for amount and waits for
// the approval receipt.
func (s *Settler) Approve(ctx context.Context, token common.Address, amount *big.Int) (*types.Receipt, error) {
	opts, err := s.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	erc20 := bind.NewBoundContract(token, erc20ABI, s.handle.Client, s.handle.Client, s.handle.Client)
	tx, err := erc20.Transact(opts, "approve", s.handle.Settler, amount)
	if err != nil {
		return nil, fmt.Errorf("chain %d: submit approve: %w", s.handle.ChainID, err)
	}

	receipt, err := bind.WaitMined(ctx, s.handle.Client, tx)
	if err != nil {
		return nil, fmt.Errorf("chain %d: wait approve receipt %s: %w", s.handle.ChainID, tx.Hash(), err)
	}
	return receipt, nil
}

func (s *Settler) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if !s.handle.CanSign() {
		return nil, fmt.Errorf("chain %d: %w", s.handle.ChainID, domain.ErrNoSigner)
	}
	opts, err := s.handle.Signer().TransactOpts(new(big.Int).SetUint64(s.handle.ChainID))
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// ParseOpenLog decodes a raw settler log into the resolved order it carries.
// The indexed orderId topic is authoritative; the copy inside the struct is
// overwritten with it so downstream code sees a single value.
func ParseOpenLog(lg types.Log) (*ResolvedCrossChainOrder, error) {
	if len(lg.Topics) < 2 || lg.Topics[0] != OpenTopic {
		return nil, fmt.Errorf("chain: log is not an Open event (topics=%d)", len(lg.Topics))
	}

	out, err := settlerABI.Unpack("Open", lg.Data)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack Open data: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("chain: Open unpacked %d values, want 1", len(out))
	}

	resolved := abi.ConvertType(out[0], new(ResolvedCrossChainOrder)).(*ResolvedCrossChainOrder)
	resolved.OrderId = [32]byte(lg.Topics[1])
	return resolved, nil
}
