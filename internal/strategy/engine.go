package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/openintents/solverd/internal/config"
	"github.com/openintents/solverd/internal/domain"
)

// GasPricer reads the current gas price on a chain. Satisfied by
// chain.ClientSet.
type GasPricer interface {
	GasPrice(ctx context.Context, chainID uint64) (*big.Int, error)
}

var tenThousand = big.NewInt(10_000)

// Engine evaluates intents against the configured economic thresholds. All
// profitability arithmetic is integer big.Int math in raw token units; the
// reference price is used only for USD-denominated reporting.
type Engine struct {
	gas    GasPricer
	prices *PriceState
	logger *slog.Logger

	minProfitBps int
	maxGasPrice  *big.Int
	maxSize      *big.Int
	fillGasUnits *big.Int
}

// NewEngine builds an Engine from the solver thresholds. The price state may
// be nil, which disables USD reporting.
func NewEngine(gas GasPricer, prices *PriceState, cfg config.SolverConfig, logger *slog.Logger) (*Engine, error) {
	maxGas, ok := cfg.MaxGasPrice()
	if !ok {
		return nil, fmt.Errorf("strategy: max_gas_price_wei %q is not an integer", cfg.MaxGasPriceWei)
	}
	maxSize, ok := cfg.MaxSize()
	if !ok {
		return nil, fmt.Errorf("strategy: max_intent_size %q is not an integer", cfg.MaxIntentSize)
	}
	return &Engine{
		gas:          gas,
		prices:       prices,
		logger:       logger.With(slog.String("component", "strategy")),
		minProfitBps: cfg.MinProfitBps,
		maxGasPrice:  maxGas,
		maxSize:      maxSize,
		fillGasUnits: new(big.Int).SetUint64(cfg.FillGasUnits),
	}, nil
}

// Evaluate decides whether the intent is worth filling. An unprofitable
// intent is a normal outcome carried in the result; the error return is
// reserved for infrastructure failures such as an unreachable RPC.
func (e *Engine) Evaluate(ctx context.Context, intent domain.Intent) (domain.EvaluationResult, error) {
	if intent.InputAmount.Cmp(e.maxSize) > 0 {
		return reject("exceeds max size"), nil
	}

	fee := new(big.Int).Sub(intent.InputAmount, intent.OutputAmount)
	if fee.Sign() <= 0 {
		return reject("no fee"), nil
	}

	gasPrice, err := e.gas.GasPrice(ctx, intent.DestinationChain)
	if err != nil {
		return domain.EvaluationResult{}, fmt.Errorf("strategy: gas price for chain %d: %w", intent.DestinationChain, err)
	}
	if gasPrice.Cmp(e.maxGasPrice) > 0 {
		return reject("gas too high"), nil
	}

	gasCost := new(big.Int).Mul(gasPrice, e.fillGasUnits)
	netProfit := new(big.Int).Sub(fee, gasCost)
	if netProfit.Sign() <= 0 {
		res := reject("gas exceeds fee")
		res.GasEstimate = gasCost
		return res, nil
	}

	// floor(netProfit * 10000 / inputAmount), all integer math. Token
	// amounts overflow float64 precision well before they overflow big.Int.
	profitBps := new(big.Int).Div(new(big.Int).Mul(netProfit, tenThousand), intent.InputAmount)
	if profitBps.Cmp(big.NewInt(int64(e.minProfitBps))) < 0 {
		res := reject(fmt.Sprintf("profit %d bps below minimum %d bps", profitBps, e.minProfitBps))
		res.ExpectedProfitBps = int(profitBps.Int64())
		res.GasEstimate = gasCost
		return res, nil
	}

	e.logUSDProfit(ctx, intent, netProfit)

	return domain.EvaluationResult{
		Profitable:        true,
		ExpectedProfitBps: int(profitBps.Int64()),
		GasEstimate:       gasCost,
	}, nil
}

// logUSDProfit reports the expected profit in USD terms when a fresh
// reference price is available. The fill decision never depends on it, so a
// stale or unavailable price only downgrades the log line.
func (e *Engine) logUSDProfit(ctx context.Context, intent domain.Intent, netProfit *big.Int) {
	if e.prices == nil {
		return
	}
	price, err := e.prices.Current(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPriceUnavailable) {
			e.logger.Warn("price feed unavailable, skipping usd reporting",
				slog.String("order_id", intent.OrderID),
			)
		}
		return
	}

	profit, _ := new(big.Float).SetInt(netProfit).Float64()
	e.logger.Info("expected profit",
		slog.String("order_id", intent.OrderID),
		slog.String("net_profit_raw", netProfit.String()),
		slog.Float64("reference_price", price),
		slog.Float64("profit_usd_at_unit_scale", profit*price),
	)
}

func reject(reason string) domain.EvaluationResult {
	return domain.EvaluationResult{Profitable: false, Reason: reason}
}
