// Package pricefeed provides the reference price sources: a Chainlink-style
// on-chain aggregator as the primary and a plain HTTP endpoint as fallback.
package pricefeed

import "context"

// Source produces the current reference price for one symbol.
type Source interface {
	Name() string
	FetchPrice(ctx context.Context) (float64, error)
}
