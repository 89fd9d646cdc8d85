package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Chains = []ChainConfig{
		{ChainID: 1, Name: "ethereum", RPCURL: "wss://eth.example.com"},
		{ChainID: 10, Name: "optimism", RPCURL: "wss://op.example.com"},
	}
	cfg.Wallet.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateObserveModeNeedsNoWallet(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "observe"
	cfg.Wallet = WalletConfig{}
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "banana"
	cfg.Chains[0].RPCURL = ""
	cfg.Chains[1].SettlerAddress = "not-an-address"
	cfg.Wallet = WalletConfig{}
	cfg.Solver.MaxGasPriceWei = "lots"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "rpc_url")
	assert.Contains(t, err.Error(), "settler_address")
	assert.Contains(t, err.Error(), "wallet")
	assert.Contains(t, err.Error(), "max_gas_price_wei")
}

func TestValidateRejectsDuplicateChains(t *testing.T) {
	cfg := validConfig()
	cfg.Chains = append(cfg.Chains, ChainConfig{ChainID: 1, Name: "dup", RPCURL: "wss://x"})
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate chain_id")
}

func TestSettlerResolution(t *testing.T) {
	cfg := validConfig()
	cfg.Chains[0].SettlerAddress = "0x1111111111111111111111111111111111111111"

	// Explicit per-chain value wins.
	addr, ok := cfg.SettlerFor(1)
	require.True(t, ok)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", addr)

	// Manifest fallback for a known chain without an explicit value.
	addr, ok = cfg.SettlerFor(10)
	require.True(t, ok)
	assert.Equal(t, defaultSettlers[10], addr)

	// Unknown chain resolves to nothing.
	_, ok = cfg.SettlerFor(777)
	assert.False(t, ok)
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, "1m30s", d.Duration.String())

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
