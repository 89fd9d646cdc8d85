// Package liquidity tracks the solver's own balances per (chain, token). The
// ledger is decremented optimistically after each fill and periodically
// overwritten with the authoritative on-chain balance.
package liquidity

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openintents/solverd/internal/chain"
)

// BalanceReader reads a token balance on a chain. Satisfied by
// chain.ClientSet; the chain.NativeToken sentinel reads the native asset.
type BalanceReader interface {
	TokenBalance(ctx context.Context, chainID uint64, token string, owner common.Address) (*big.Int, error)
}

type entryKey struct {
	chainID uint64
	token   string
}

// entry serializes read-then-decrement per (chain, token) so concurrent fills
// on the same pair cannot lose updates. Locking is per entry; fills on
// different pairs never contend.
type entry struct {
	mu        sync.Mutex
	available *big.Int
}

// Ledger tracks available solver balances. Missing entries are treated as
// zero balance so an unknown (chain, token) pair can never pass the liquidity
// check.
type Ledger struct {
	reader BalanceReader
	owner  common.Address
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[entryKey]*entry
	tracked []entryKey
}

// New creates an empty Ledger for the given solver address.
func New(reader BalanceReader, owner common.Address, logger *slog.Logger) *Ledger {
	return &Ledger{
		reader:  reader,
		owner:   owner,
		logger:  logger.With(slog.String("component", "liquidity")),
		entries: make(map[entryKey]*entry),
	}
}

// Initialize registers the native asset plus every configured token on every
// chain and seeds the ledger from on-chain balances. A failed read leaves
// that pair absent, which fails closed until the next refresh succeeds.
func (l *Ledger) Initialize(ctx context.Context, handles map[uint64]*chain.Handle) {
	for _, h := range handles {
		l.track(h.ChainID, chain.NativeToken)
		for _, tok := range h.Tokens {
			l.track(h.ChainID, strings.ToLower(tok.Hex()))
		}
	}
	l.Refresh(ctx)
}

func (l *Ledger) track(chainID uint64, token string) {
	k := entryKey{chainID: chainID, token: strings.ToLower(token)}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.tracked {
		if t == k {
			return
		}
	}
	l.tracked = append(l.tracked, k)
}

// HasLiquidity reports whether the tracked balance covers amount. An
// untracked or never-seeded pair reports false with a warning.
func (l *Ledger) HasLiquidity(chainID uint64, token string, amount *big.Int) bool {
	e, ok := l.entryFor(chainID, token)
	if !ok {
		l.logger.Warn("no ledger entry, treating as zero balance",
			slog.Uint64("chain_id", chainID),
			slog.String("token", token),
		)
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available.Cmp(amount) >= 0
}

// RecordFill decrements the tracked balance after a successful fill. A
// decrement that would push the balance negative indicates the ledger
// desynced from chain state; it is logged as an inconsistency and the balance
// clamps to zero until the next refresh re-reads the truth.
func (l *Ledger) RecordFill(chainID uint64, token string, amount *big.Int) {
	e, ok := l.entryFor(chainID, token)
	if !ok {
		l.logger.Error("fill recorded against untracked pair",
			slog.Uint64("chain_id", chainID),
			slog.String("token", token),
			slog.String("amount", amount.String()),
		)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.available.Cmp(amount) < 0 {
		l.logger.Error("ledger inconsistency: fill exceeds tracked balance",
			slog.Uint64("chain_id", chainID),
			slog.String("token", token),
			slog.String("available", e.available.String()),
			slog.String("amount", amount.String()),
		)
		e.available = new(big.Int)
		return
	}
	e.available = new(big.Int).Sub(e.available, amount)
}

// Refresh overwrites every tracked balance with the on-chain value, healing
// any drift from optimistic decrements. Failed reads keep the previous value.
func (l *Ledger) Refresh(ctx context.Context) {
	l.mu.RLock()
	tracked := make([]entryKey, len(l.tracked))
	copy(tracked, l.tracked)
	l.mu.RUnlock()

	for _, k := range tracked {
		bal, err := l.reader.TokenBalance(ctx, k.chainID, k.token, l.owner)
		if err != nil {
			l.logger.Warn("balance refresh failed",
				slog.Uint64("chain_id", k.chainID),
				slog.String("token", k.token),
				slog.String("error", err.Error()),
			)
			continue
		}
		l.setBalance(k, bal)
	}
}

// Run refreshes the ledger on the given interval until the context is
// cancelled.
func (l *Ledger) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Refresh(ctx)
		}
	}
}

func (l *Ledger) entryFor(chainID uint64, token string) (*entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[entryKey{chainID: chainID, token: strings.ToLower(token)}]
	return e, ok
}

func (l *Ledger) setBalance(k entryKey, bal *big.Int) {
	l.mu.Lock()
	e, ok := l.entries[k]
	if !ok {
		e = &entry{available: new(big.Int)}
		l.entries[k] = e
	}
	l.mu.Unlock()

	e.mu.Lock()
	e.available = bal
	e.mu.Unlock()
}
