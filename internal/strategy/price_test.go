package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openintents/solverd/internal/domain"
	"github.com/openintents/solverd/internal/pricefeed"
)

type fakeSource struct {
	name  string
	price float64
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchPrice(ctx context.Context) (float64, error) {
	f.calls++
	return f.price, f.err
}

type fakeCache struct {
	price float64
	ts    time.Time
	sets  int
}

func (c *fakeCache) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	c.price, c.ts = price, ts
	c.sets++
	return nil
}

func (c *fakeCache) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	if c.ts.IsZero() {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return c.price, c.ts, nil
}

func newTestState(primary, fallback *fakeSource, cache domain.PriceCache) *PriceState {
	// Assign through typed nils carefully: a nil *fakeSource must become a
	// nil interface so PriceState skips the source entirely.
	var p, f pricefeed.Source
	if primary != nil {
		p = primary
	}
	if fallback != nil {
		f = fallback
	}
	return NewPriceState("ETH-USD", p, f, cache, 300*time.Second, discardLogger())
}

func TestRefreshFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &fakeSource{name: "oracle", err: errors.New("rpc down")}
	fallback := &fakeSource{name: "http", price: 3100.5}
	ps := newTestState(primary, fallback, nil)

	require.NoError(t, ps.Refresh(context.Background()))

	price, at := ps.Get()
	assert.Equal(t, 3100.5, price)
	assert.False(t, at.IsZero())
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestCurrentUsesFreshPriceWithoutFetching(t *testing.T) {
	primary := &fakeSource{name: "oracle", price: 3000}
	ps := newTestState(primary, nil, nil)
	ps.store(context.Background(), 2950, time.Now())

	price, err := ps.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2950.0, price)
	assert.Equal(t, 0, primary.calls)
}

func TestCurrentRefreshesStalePrice(t *testing.T) {
	primary := &fakeSource{name: "oracle", price: 3000}
	ps := newTestState(primary, nil, nil)
	// 301 seconds old against a 300 second threshold.
	ps.store(context.Background(), 2950, time.Now().Add(-301*time.Second))

	require.True(t, ps.IsStale(time.Now()))

	price, err := ps.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3000.0, price)
	assert.Equal(t, 1, primary.calls)
}

func TestCurrentFailsClosedWhenRefreshFails(t *testing.T) {
	primary := &fakeSource{name: "oracle", err: errors.New("rpc down")}
	fallback := &fakeSource{name: "http", err: errors.New("504")}
	ps := newTestState(primary, fallback, nil)
	ps.store(context.Background(), 2950, time.Now().Add(-301*time.Second))

	_, err := ps.Current(context.Background())
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestCurrentFailsClosedWithNoSources(t *testing.T) {
	ps := newTestState(nil, nil, nil)

	_, err := ps.Current(context.Background())
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestRefreshMirrorsIntoCache(t *testing.T) {
	cache := &fakeCache{}
	primary := &fakeSource{name: "oracle", price: 3000}
	ps := newTestState(primary, nil, cache)

	require.NoError(t, ps.Refresh(context.Background()))
	assert.Equal(t, 3000.0, cache.price)
	assert.Equal(t, 1, cache.sets)
}

func TestWarmLoadsRecentCachedPrice(t *testing.T) {
	cache := &fakeCache{price: 2800, ts: time.Now().Add(-30 * time.Second)}
	ps := newTestState(nil, nil, cache)

	ps.Warm(context.Background())

	price, at := ps.Get()
	assert.Equal(t, 2800.0, price)
	assert.False(t, at.IsZero())
}

func TestWarmIgnoresExpiredCachedPrice(t *testing.T) {
	cache := &fakeCache{price: 2800, ts: time.Now().Add(-10 * time.Minute)}
	ps := newTestState(nil, nil, cache)

	ps.Warm(context.Background())

	_, at := ps.Get()
	assert.True(t, at.IsZero())
}
