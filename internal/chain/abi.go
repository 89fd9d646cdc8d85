// Package chain provides per-chain RPC handles, the settler contract
// bindings, and ERC-20 helpers used by the monitor, ledger, and solver.
package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// SettlerABI covers the surface of the output settler this solver consumes:
// the Open event emitted when an order is escrowed, the fill entry point, and
// the isFilled status probe. The fill parameter order matches the deployed
// settler artifact; do not reorder without re-verifying against the deployed
// contract ABI.
const SettlerABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "orderId", "type": "bytes32"},
			{
				"components": [
					{"internalType": "address", "name": "user", "type": "address"},
					{"internalType": "uint256", "name": "originChainId", "type": "uint256"},
					{"internalType": "uint32", "name": "openDeadline", "type": "uint32"},
					{"internalType": "uint32", "name": "fillDeadline", "type": "uint32"},
					{"internalType": "bytes32", "name": "orderId", "type": "bytes32"},
					{
						"components": [
							{"internalType": "bytes32", "name": "token", "type": "bytes32"},
							{"internalType": "uint256", "name": "amount", "type": "uint256"},
							{"internalType": "bytes32", "name": "recipient", "type": "bytes32"},
							{"internalType": "uint256", "name": "chainId", "type": "uint256"}
						],
						"internalType": "struct Output[]", "name": "maxSpent", "type": "tuple[]"
					},
					{
						"components": [
							{"internalType": "bytes32", "name": "token", "type": "bytes32"},
							{"internalType": "uint256", "name": "amount", "type": "uint256"},
							{"internalType": "bytes32", "name": "recipient", "type": "bytes32"},
							{"internalType": "uint256", "name": "chainId", "type": "uint256"}
						],
						"internalType": "struct Output[]", "name": "minReceived", "type": "tuple[]"
					},
					{
						"components": [
							{"internalType": "uint64", "name": "destinationChainId", "type": "uint64"},
							{"internalType": "bytes32", "name": "destinationSettler", "type": "bytes32"},
							{"internalType": "bytes", "name": "originData", "type": "bytes"}
						],
						"internalType": "struct FillInstruction[]", "name": "fillInstructions", "type": "tuple[]"
					}
				],
				"indexed": false, "internalType": "struct ResolvedCrossChainOrder", "name": "resolvedOrder", "type": "tuple"
			}
		],
		"name": "Open",
		"type": "event"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "orderId", "type": "bytes32"},
			{"internalType": "address", "name": "recipient", "type": "address"},
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "fill",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "bytes32", "name": "orderId", "type": "bytes32"}],
		"name": "isFilled",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC20ABI covers the two ERC-20 methods the solver needs.
const ERC20ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// AggregatorABI is the Chainlink-style price feed surface.
const AggregatorABI = `[
	{
		"inputs": [],
		"name": "latestRoundData",
		"outputs": [
			{"internalType": "uint80", "name": "roundId", "type": "uint80"},
			{"internalType": "int256", "name": "answer", "type": "int256"},
			{"internalType": "uint256", "name": "startedAt", "type": "uint256"},
			{"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
			{"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Output is one leg entry of a resolved order: token and recipient are
// bytes32-encoded so non-EVM chains fit the same layout.
type Output struct {
	Token     [32]byte
	Amount    *big.Int
	Recipient [32]byte
	ChainId   *big.Int
}

// FillInstruction carries settler-specific fill routing data. This solver
// only consumes the destination settler identity implicitly via its config.
type FillInstruction struct {
	DestinationChainId uint64
	DestinationSettler [32]byte
	OriginData         []byte
}

// ResolvedCrossChainOrder mirrors the struct carried by the Open event.
type ResolvedCrossChainOrder struct {
	User             common.Address
	OriginChainId    *big.Int
	OpenDeadline     uint32
	FillDeadline     uint32
	OrderId          [32]byte
	MaxSpent         []Output
	MinReceived      []Output
	FillInstructions []FillInstruction
}

var (
	settlerABI abi.ABI
	erc20ABI   abi.ABI

	// OpenTopic is the keccak topic hash of the Open event, used to filter
	// settler logs.
	OpenTopic common.Hash
)

func init() {
	settlerABI = mustParseABI(SettlerABI)
	erc20ABI = mustParseABI(ERC20ABI)
	OpenTopic = settlerABI.Events["Open"].ID
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: parsing embedded ABI: %v", err))
	}
	return parsed
}

// AddressFromBytes32 extracts the right-most 20 bytes as an address. It
// returns false when the leading 12 bytes are non-zero, which means the value
// does not encode an EVM address.
func AddressFromBytes32(b [32]byte) (common.Address, bool) {
	for _, v := range b[:12] {
		if v != 0 {
			return common.Address{}, false
		}
	}
	return common.BytesToAddress(b[12:]), true
}
