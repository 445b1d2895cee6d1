package config

import "github.com/Klingon-tech/klingnet-wallet/pkg/types"

// Denomination constants.
// 1 coin = 10^12 base units. All amounts are in base units.
const (
	Decimals  = 12
	Coin      = 1_000_000_000_000 // 10^12 base units per coin
	MilliCoin = 1_000_000_000     // 10^9
	MicroCoin = 1_000_000         // 10^6
)

// ChainParams are the network rules the wallet must agree with the daemon on.
type ChainParams struct {
	Name       string
	AddressHRP string

	// GenesisTimestamp and BlockTime convert a wallet creation time into the
	// height to start scanning from.
	GenesisTimestamp uint64
	BlockTime        uint64 // Target seconds between blocks

	MinFeeRate      uint64 // Minimum fee rate (base units per byte)
	FusionThreshold uint64 // Inputs below this are consolidated by fusion transactions

	DaemonPort int // Default daemon RPC port
}

// MainnetParams returns the mainnet chain parameters.
func MainnetParams() *ChainParams {
	return &ChainParams{
		Name:             "Klingnet Mainnet",
		AddressHRP:       types.MainnetHRP,
		GenesisTimestamp: 1770734103, // 2026-02-10
		BlockTime:        3,
		MinFeeRate:       10_000, // ~0.0000027 KGX for a one-in two-out transfer
		FusionThreshold:  10 * MilliCoin,
		DaemonPort:       8545,
	}
}

// TestnetParams returns the testnet chain parameters.
func TestnetParams() *ChainParams {
	p := MainnetParams()
	p.Name = "Klingnet Testnet"
	p.AddressHRP = types.TestnetHRP
	p.MinFeeRate = 10 // Very low for testing
	p.DaemonPort = 8645
	return p
}

// ParamsFor returns the chain parameters of the given network.
func ParamsFor(network NetworkType) *ChainParams {
	switch network {
	case Testnet:
		return TestnetParams()
	default:
		return MainnetParams()
	}
}
