package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/openintents/solverd/internal/config"
)

// NativeToken is the sentinel token address meaning the chain's native asset.
const NativeToken = "0x0000000000000000000000000000000000000000"

// Signer wraps the solver's secp256k1 key and derives keyed transactors for
// each chain.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner creates a Signer from a hex-encoded private key (with or without
// 0x prefix).
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}
	return &Signer{key: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// Address returns the address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// TransactOpts builds a keyed transactor for the given chain id.
func (s *Signer) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: keyed transactor for chain %s: %w", chainID, err)
	}
	return opts, nil
}

// Handle bundles everything the solver needs on one chain: the RPC client,
// the resolved settler address, the watched token list, and the optional
// signer. Handles are created at startup and never mutated afterwards.
type Handle struct {
	ChainID      uint64
	Name         string
	Client       *ethclient.Client
	Settler      common.Address
	HasSettler   bool
	PriceFeed    common.Address
	HasPriceFeed bool
	Tokens       []common.Address

	signer *Signer
}

// CanSign reports whether a signing credential is attached to this handle.
func (h *Handle) CanSign() bool {
	return h.signer != nil
}

// Signer returns the attached signer, or nil in observe-only mode.
func (h *Handle) Signer() *Signer {
	return h.signer
}

// SuggestGasPrice returns the chain's current suggested gas price in wei.
func (h *Handle) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	gp, err := h.Client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain %d: suggest gas price: %w", h.ChainID, err)
	}
	return gp, nil
}

// ClientSet holds one Handle per configured chain, keyed by chain id.
type ClientSet struct {
	handles map[uint64]*Handle
}

// Dial connects to every configured chain and builds its Handle. The signer
// may be nil (observe-only mode); it is shared across all handles since one
// key serves the solver on every chain. Any dial failure tears down already
// opened connections and returns the error.
func Dial(ctx context.Context, chains []config.ChainConfig, signer *Signer) (*ClientSet, error) {
	cs := &ClientSet{handles: make(map[uint64]*Handle, len(chains))}

	for _, cc := range chains {
		client, err := ethclient.DialContext(ctx, cc.RPCURL)
		if err != nil {
			cs.Close()
			return nil, fmt.Errorf("chain %d (%s): dial %s: %w", cc.ChainID, cc.Name, cc.RPCURL, err)
		}

		h := &Handle{
			ChainID: cc.ChainID,
			Name:    cc.Name,
			Client:  client,
			signer:  signer,
		}
		if cc.SettlerAddress != "" {
			h.Settler = common.HexToAddress(cc.SettlerAddress)
			h.HasSettler = true
		}
		if cc.PriceFeedAddress != "" {
			h.PriceFeed = common.HexToAddress(cc.PriceFeedAddress)
			h.HasPriceFeed = true
		}
		for _, tok := range cc.Tokens {
			h.Tokens = append(h.Tokens, common.HexToAddress(tok))
		}

		cs.handles[cc.ChainID] = h
	}

	return cs, nil
}

// Handle returns the handle for a chain id.
func (cs *ClientSet) Handle(chainID uint64) (*Handle, bool) {
	h, ok := cs.handles[chainID]
	return h, ok
}

// Handles returns all handles. The map must be treated as read-only.
func (cs *ClientSet) Handles() map[uint64]*Handle {
	return cs.handles
}

// GasPrice reads the current gas price on the given chain.
func (cs *ClientSet) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	h, ok := cs.handles[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: not configured", chainID)
	}
	return h.SuggestGasPrice(ctx)
}

// TokenBalance reads the owner's balance of token on the given chain. The
// NativeToken sentinel reads the native asset balance.
func (cs *ClientSet) TokenBalance(ctx context.Context, chainID uint64, token string, owner common.Address) (*big.Int, error) {
	h, ok := cs.handles[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: not configured", chainID)
	}

	if strings.EqualFold(token, NativeToken) {
		bal, err := h.Client.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("chain %d: native balance of %s: %w", chainID, owner, err)
		}
		return bal, nil
	}

	erc20 := bind.NewBoundContract(common.HexToAddress(token), erc20ABI, h.Client, h.Client, h.Client)
	var out []interface{}
	if err := erc20.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, fmt.Errorf("chain %d: balanceOf %s on %s: %w", chainID, owner, token, err)
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain %d: balanceOf returned unexpected type %T", chainID, out[0])
	}
	return bal, nil
}

// Close tears down all RPC connections.
func (cs *ClientSet) Close() {
	for _, h := range cs.handles {
		h.Client.Close()
	}
}
