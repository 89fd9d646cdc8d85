// Package strategy decides whether filling an intent is economically
// worthwhile and maintains the reference price used for USD reporting.
package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openintents/solverd/internal/domain"
	"github.com/openintents/solverd/internal/pricefeed"
)

// PriceState holds the shared reference price. It is refreshed on a fixed
// interval from the primary on-chain oracle, falling back to the HTTP source,
// and mirrors every good value into the price cache so a restarted solver
// warms up instead of starting cold.
type PriceState struct {
	symbol   string
	primary  pricefeed.Source
	fallback pricefeed.Source
	cache    domain.PriceCache
	maxAge   time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	price     float64
	updatedAt time.Time
}

// NewPriceState wires the price sources. Either source and the cache may be
// nil; a state with no working source fails closed on use.
func NewPriceState(symbol string, primary, fallback pricefeed.Source, cache domain.PriceCache, maxAge time.Duration, logger *slog.Logger) *PriceState {
	return &PriceState{
		symbol:   symbol,
		primary:  primary,
		fallback: fallback,
		cache:    cache,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "pricestate")),
	}
}

// Get returns the last observed price and when it was observed. A zero
// timestamp means no price has ever been observed.
func (p *PriceState) Get() (float64, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.price, p.updatedAt
}

// IsStale reports whether the held price is older than the configured maximum
// age at now. A never-refreshed state is stale.
func (p *PriceState) IsStale(now time.Time) bool {
	_, at := p.Get()
	return at.IsZero() || now.Sub(at) > p.maxAge
}

// Refresh fetches a fresh price, trying the primary source first and the
// fallback second. On success the value is stored and mirrored into the cache
// best-effort.
func (p *PriceState) Refresh(ctx context.Context) error {
	var lastErr error = domain.ErrPriceUnavailable

	for _, src := range []pricefeed.Source{p.primary, p.fallback} {
		if src == nil {
			continue
		}
		price, err := src.FetchPrice(ctx)
		if err != nil {
			p.logger.Warn("price source failed",
				slog.String("source", src.Name()),
				slog.String("symbol", p.symbol),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}
		p.store(ctx, price, time.Now())
		return nil
	}
	return lastErr
}

// Warm seeds the state from the cache's last known good price if it is still
// within the maximum age. Used at startup before the first refresh lands.
func (p *PriceState) Warm(ctx context.Context) {
	if p.cache == nil {
		return
	}
	price, ts, err := p.cache.GetPrice(ctx, p.symbol)
	if err != nil {
		p.logger.Debug("no cached price for warm start",
			slog.String("symbol", p.symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	if time.Since(ts) > p.maxAge {
		return
	}

	p.mu.Lock()
	p.price = price
	p.updatedAt = ts
	p.mu.Unlock()
	p.logger.Info("price warmed from cache",
		slog.String("symbol", p.symbol),
		slog.Float64("price", price),
	)
}

// Current returns a price guaranteed to be within the maximum age: a stale
// state forces an immediate refresh, and if that refresh fails the call fails
// closed with domain.ErrPriceUnavailable rather than serving stale data.
func (p *PriceState) Current(ctx context.Context) (float64, error) {
	if !p.IsStale(time.Now()) {
		price, _ := p.Get()
		return price, nil
	}
	if err := p.Refresh(ctx); err != nil {
		return 0, domain.ErrPriceUnavailable
	}
	price, _ := p.Get()
	return price, nil
}

// Run refreshes the price on the given interval until the context is
// cancelled. Refresh failures are logged and retried on the next tick.
func (p *PriceState) Run(ctx context.Context, interval time.Duration) {
	p.Warm(ctx)
	if err := p.Refresh(ctx); err != nil {
		p.logger.Warn("initial price refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.logger.Warn("price refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (p *PriceState) store(ctx context.Context, price float64, at time.Time) {
	p.mu.Lock()
	p.price = price
	p.updatedAt = at
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.SetPrice(ctx, p.symbol, price, at); err != nil {
			p.logger.Debug("price cache write failed", slog.String("error", err.Error()))
		}
	}
}
