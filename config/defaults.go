package config

import "time"

// DefaultMainnet returns the default wallet configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Wallet: WalletConfig{
			File: "wallet.kgw",
		},
		Daemon: DaemonConfig{
			Host:    "127.0.0.1",
			Port:    MainnetParams().DaemonPort,
			SSL:     false,
			Timeout: 10 * time.Second,
			Rate:    20,
		},
		Sync: SyncConfig{
			Threads:  4,
			Interval: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default wallet configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Daemon.Port = TestnetParams().DaemonPort
	return cfg
}

// Default returns the default wallet configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
