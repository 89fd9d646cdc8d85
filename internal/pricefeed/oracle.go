package pricefeed

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"

	"github.com/openintents/solverd/internal/chain"
)

var aggregatorABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(chain.AggregatorABI))
	if err != nil {
		panic(fmt.Sprintf("pricefeed: parsing aggregator ABI: %v", err))
	}
	return parsed
}()

// Oracle reads the reference price from a Chainlink-style aggregator contract.
type Oracle struct {
	chainID uint64
	bound   *bind.BoundContract

	mu       sync.Mutex
	decimals int32 // -1 until read from the contract
}

// NewOracle binds the aggregator configured on the handle. It fails when the
// chain has no price feed address.
func NewOracle(h *chain.Handle) (*Oracle, error) {
	if !h.HasPriceFeed {
		return nil, fmt.Errorf("pricefeed: chain %d has no price feed address", h.ChainID)
	}
	return &Oracle{
		chainID:  h.ChainID,
		bound:    bind.NewBoundContract(h.PriceFeed, aggregatorABI, h.Client, h.Client, h.Client),
		decimals: -1,
	}, nil
}

func (o *Oracle) Name() string {
	return fmt.Sprintf("oracle(chain %d)", o.chainID)
}

// FetchPrice reads latestRoundData and scales the answer by the feed's
// decimals. The decimals value is read once and cached since it is immutable
// on deployed aggregators.
func (o *Oracle) FetchPrice(ctx context.Context) (float64, error) {
	dec, err := o.feedDecimals(ctx)
	if err != nil {
		return 0, err
	}

	var out []interface{}
	if err := o.bound.Call(&bind.CallOpts{Context: ctx}, &out, "latestRoundData"); err != nil {
		return 0, fmt.Errorf("pricefeed: latestRoundData on chain %d: %w", o.chainID, err)
	}
	if len(out) < 2 {
		return 0, fmt.Errorf("pricefeed: latestRoundData returned %d values", len(out))
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("pricefeed: latestRoundData answer has unexpected type %T", out[1])
	}
	if answer.Sign() <= 0 {
		return 0, fmt.Errorf("pricefeed: aggregator on chain %d reported non-positive answer %s", o.chainID, answer)
	}

	scaled, _ := new(big.Float).Quo(
		new(big.Float).SetInt(answer),
		big.NewFloat(math.Pow10(int(dec))),
	).Float64()
	return scaled, nil
}

func (o *Oracle) feedDecimals(ctx context.Context) (int32, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.decimals >= 0 {
		return o.decimals, nil
	}

	var out []interface{}
	if err := o.bound.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("pricefeed: decimals on chain %d: %w", o.chainID, err)
	}
	dec, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("pricefeed: decimals returned unexpected type %T", out[0])
	}
	o.decimals = int32(dec)
	return o.decimals, nil
}
