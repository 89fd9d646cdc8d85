package liquidity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/openintents/solverd/internal/chain"
)

const testToken = "0x3333333333333333333333333333333333333333"

type fakeReader struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	failAll  bool
}

func balanceKey(chainID uint64, token string) string {
	return fmt.Sprintf("%d/%s", chainID, strings.ToLower(token))
}

func (r *fakeReader) set(chainID uint64, token string, bal int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balances == nil {
		r.balances = make(map[string]*big.Int)
	}
	r.balances[balanceKey(chainID, token)] = big.NewInt(bal)
}

func (r *fakeReader) TokenBalance(ctx context.Context, chainID uint64, token string, owner common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errors.New("rpc down")
	}
	bal, ok := r.balances[balanceKey(chainID, token)]
	if !ok {
		return nil, errors.New("unknown pair")
	}
	return new(big.Int).Set(bal), nil
}

func testLedger(reader *fakeReader) *Ledger {
	owner := common.HexToAddress("0x9999999999999999999999999999999999999999")
	return New(reader, owner, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testHandles() map[uint64]*chain.Handle {
	return map[uint64]*chain.Handle{
		10: {
			ChainID: 10,
			Name:    "optimism",
			Tokens:  []common.Address{common.HexToAddress(testToken)},
		},
	}
}

func TestInitializeSeedsBalances(t *testing.T) {
	reader := &fakeReader{}
	reader.set(10, chain.NativeToken, 5_000)
	reader.set(10, testToken, 1_000_000)

	l := testLedger(reader)
	l.Initialize(context.Background(), testHandles())

	assert.True(t, l.HasLiquidity(10, chain.NativeToken, big.NewInt(5_000)))
	assert.False(t, l.HasLiquidity(10, chain.NativeToken, big.NewInt(5_001)))
	assert.True(t, l.HasLiquidity(10, testToken, big.NewInt(999_999)))
}

func TestHasLiquidityFailsClosedOnMissingEntry(t *testing.T) {
	l := testLedger(&fakeReader{})
	assert.False(t, l.HasLiquidity(1, testToken, big.NewInt(1)))
}

func TestHasLiquidityFailsClosedWhenSeedFailed(t *testing.T) {
	reader := &fakeReader{failAll: true}
	l := testLedger(reader)
	l.Initialize(context.Background(), testHandles())

	assert.False(t, l.HasLiquidity(10, testToken, big.NewInt(1)))
}

func TestRecordFillDecrements(t *testing.T) {
	reader := &fakeReader{}
	reader.set(10, chain.NativeToken, 0)
	reader.set(10, testToken, 1_000)

	l := testLedger(reader)
	l.Initialize(context.Background(), testHandles())

	l.RecordFill(10, testToken, big.NewInt(400))
	assert.True(t, l.HasLiquidity(10, testToken, big.NewInt(600)))
	assert.False(t, l.HasLiquidity(10, testToken, big.NewInt(601)))
}

func TestRecordFillOverdraftClampsToZero(t *testing.T) {
	reader := &fakeReader{}
	reader.set(10, chain.NativeToken, 0)
	reader.set(10, testToken, 100)

	l := testLedger(reader)
	l.Initialize(context.Background(), testHandles())

	l.RecordFill(10, testToken, big.NewInt(500))
	assert.True(t, l.HasLiquidity(10, testToken, big.NewInt(0)))
	assert.False(t, l.HasLiquidity(10, testToken, big.NewInt(1)))
}

func TestRefreshHealsDrift(t *testing.T) {
	reader := &fakeReader{}
	reader.set(10, chain.NativeToken, 0)
	reader.set(10, testToken, 1_000)

	l := testLedger(reader)
	l.Initialize(context.Background(), testHandles())
	l.RecordFill(10, testToken, big.NewInt(1_000))

	// The chain says the solver got repaid; refresh must overwrite.
	reader.set(10, testToken, 2_500)
	l.Refresh(context.Background())

	assert.True(t, l.HasLiquidity(10, testToken, big.NewInt(2_500)))
}

func TestConcurrentRecordFillsDoNotLoseUpdates(t *testing.T) {
	reader := &fakeReader{}
	reader.set(10, chain.NativeToken, 0)
	reader.set(10, testToken, 1_000)

	l := testLedger(reader)
	l.Initialize(context.Background(), testHandles())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RecordFill(10, testToken, big.NewInt(100))
		}()
	}
	wg.Wait()

	assert.True(t, l.HasLiquidity(10, testToken, big.NewInt(0)))
	assert.False(t, l.HasLiquidity(10, testToken, big.NewInt(1)))
}
