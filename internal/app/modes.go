package app

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SolveMode runs the full fill pipeline: price refresh, ledger refresh, and
// the solver agent.
func (a *App) SolveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting solve mode")
	return a.runCore(ctx, deps, true, false)
}

// ObserveMode evaluates and logs intents without ever submitting a
// transaction. No ledger refresh is needed since fills never happen.
func (a *App) ObserveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting observe mode")
	return a.runCore(ctx, deps, false, false)
}

// FullMode runs solve mode plus the terminal-intent archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runCore(ctx, deps, true, true)
}

// runCore supervises the background loops and the agent. On cancellation the
// agent is drained before returning so no in-flight fill is abandoned between
// submission and receipt.
func (a *App) runCore(ctx context.Context, deps *Dependencies, withLedger, withArchiver bool) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		deps.Prices.Run(gctx, a.cfg.PriceFeed.RefreshInterval.Duration)
		return nil
	})

	if withLedger {
		deps.Ledger.Initialize(gctx, deps.Clients.Handles())
		g.Go(func() error {
			deps.Ledger.Run(gctx, a.cfg.Solver.BalanceRefreshInterval.Duration)
			return nil
		})
	}

	if withArchiver && deps.Archiver != nil {
		g.Go(func() error {
			deps.Archiver.Run(gctx, a.cfg.Archive.Interval.Duration)
			return nil
		})
	}

	deps.Agent.Start(gctx)
	<-gctx.Done()

	a.logger.Info("draining in-flight orders")
	deps.Agent.Stop()
	_ = g.Wait()
	return ctx.Err()
}
