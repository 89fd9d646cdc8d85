package monitor

import (
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openintents/solverd/internal/chain"
)

const (
	testUser      = "0x1111111111111111111111111111111111111111"
	testRecipient = "0x2222222222222222222222222222222222222222"
	testInToken   = "0x3333333333333333333333333333333333333333"
	testOutToken  = "0x4444444444444444444444444444444444444444"
)

func testMonitor() *Monitor {
	return &Monitor{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func addr32(hexAddr string) [32]byte {
	var b [32]byte
	copy(b[12:], common.HexToAddress(hexAddr).Bytes())
	return b
}

func validOrder() chain.ResolvedCrossChainOrder {
	return chain.ResolvedCrossChainOrder{
		User:          common.HexToAddress(testUser),
		OriginChainId: big.NewInt(1),
		OpenDeadline:  1900000000,
		FillDeadline:  1900000600,
		OrderId:       [32]byte(common.HexToHash("0x01")),
		MaxSpent: []chain.Output{{
			Token:     addr32(testOutToken),
			Amount:    big.NewInt(990_000),
			Recipient: addr32(testRecipient),
			ChainId:   big.NewInt(10),
		}},
		MinReceived: []chain.Output{{
			Token:     addr32(testInToken),
			Amount:    big.NewInt(1_000_000),
			Recipient: addr32(testUser),
			ChainId:   big.NewInt(1),
		}},
		FillInstructions: []chain.FillInstruction{{
			DestinationChainId: 10,
			DestinationSettler: addr32(testRecipient),
		}},
	}
}

func packOpenLog(t *testing.T, order chain.ResolvedCrossChainOrder) types.Log {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(chain.SettlerABI))
	require.NoError(t, err)

	data, err := parsed.Events["Open"].Inputs.NonIndexed().Pack(order)
	require.NoError(t, err)

	return types.Log{
		Topics:      []common.Hash{chain.OpenTopic, common.Hash(order.OrderId)},
		Data:        data,
		BlockNumber: 123,
		TxHash:      common.HexToHash("0xbeef"),
	}
}

func TestNormalizeValidEvent(t *testing.T) {
	m := testMonitor()
	h := &chain.Handle{ChainID: 1, Name: "ethereum"}
	lg := packOpenLog(t, validOrder())

	intent, ok := m.normalize(h, lg, m.logger)
	require.True(t, ok)

	assert.Equal(t, common.HexToHash("0x01").Hex(), intent.OrderID)
	assert.Equal(t, testUser, intent.User)
	assert.Equal(t, testRecipient, intent.Recipient)
	assert.Equal(t, uint64(1), intent.SourceChain)
	assert.Equal(t, uint64(10), intent.DestinationChain)
	assert.Equal(t, testInToken, intent.InputToken)
	assert.Equal(t, testOutToken, intent.OutputToken)
	assert.Equal(t, big.NewInt(1_000_000), intent.InputAmount)
	assert.Equal(t, big.NewInt(990_000), intent.OutputAmount)
	assert.Equal(t, int64(1900000600), intent.Deadline)
	assert.Equal(t, uint64(123), intent.BlockNumber)
	assert.Equal(t, common.HexToHash("0xbeef").Hex(), intent.TxHash)
}

func TestNormalizeDropsMalformedEvents(t *testing.T) {
	badToken := [32]byte{}
	badToken[0] = 0xff

	tests := []struct {
		name   string
		mutate func(*chain.ResolvedCrossChainOrder)
	}{
		{"zero order id", func(o *chain.ResolvedCrossChainOrder) {
			o.OrderId = [32]byte{}
		}},
		{"empty maxSpent", func(o *chain.ResolvedCrossChainOrder) {
			o.MaxSpent = nil
		}},
		{"empty minReceived", func(o *chain.ResolvedCrossChainOrder) {
			o.MinReceived = nil
		}},
		{"zero output amount", func(o *chain.ResolvedCrossChainOrder) {
			o.MaxSpent[0].Amount = big.NewInt(0)
		}},
		{"zero input amount", func(o *chain.ResolvedCrossChainOrder) {
			o.MinReceived[0].Amount = big.NewInt(0)
		}},
		{"output token not an address", func(o *chain.ResolvedCrossChainOrder) {
			o.MaxSpent[0].Token = badToken
		}},
		{"recipient not an address", func(o *chain.ResolvedCrossChainOrder) {
			o.MaxSpent[0].Recipient = badToken
		}},
		{"input token not an address", func(o *chain.ResolvedCrossChainOrder) {
			o.MinReceived[0].Token = badToken
		}},
		{"zero destination chain", func(o *chain.ResolvedCrossChainOrder) {
			o.MaxSpent[0].ChainId = big.NewInt(0)
		}},
	}

	m := testMonitor()
	h := &chain.Handle{ChainID: 1, Name: "ethereum"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := validOrder()
			tt.mutate(&order)
			lg := packOpenLog(t, order)
			// The order id topic mirrors the struct field so zeroing the
			// struct field alone would leave the topic authoritative.
			lg.Topics[1] = common.Hash(order.OrderId)

			_, ok := m.normalize(h, lg, m.logger)
			assert.False(t, ok)
		})
	}
}

func TestNormalizeDropsForeignLog(t *testing.T) {
	m := testMonitor()
	h := &chain.Handle{ChainID: 1, Name: "ethereum"}

	lg := packOpenLog(t, validOrder())
	lg.Topics[0] = common.HexToHash("0xdead")

	_, ok := m.normalize(h, lg, m.logger)
	assert.False(t, ok)
}

func TestNormalizeDropsTruncatedData(t *testing.T) {
	m := testMonitor()
	h := &chain.Handle{ChainID: 1, Name: "ethereum"}

	lg := packOpenLog(t, validOrder())
	lg.Data = lg.Data[:32]

	_, ok := m.normalize(h, lg, m.logger)
	assert.False(t, ok)
}
