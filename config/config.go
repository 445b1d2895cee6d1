// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Chain parameters: fixed per network, shared with the daemon
//   - Wallet settings: runtime configuration, can vary per installation
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Wallet Configuration (runtime settings)
// =============================================================================

// Config holds the wallet's runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Wallet container
	Wallet WalletConfig

	// Daemon connection
	Daemon DaemonConfig

	// Background synchronizer
	Sync SyncConfig

	// Logging
	Log LogConfig
}

// WalletConfig holds wallet container settings.
type WalletConfig struct {
	File string `conf:"wallet.file"`
}

// DaemonConfig holds the connection to the node the wallet syncs from.
type DaemonConfig struct {
	Host    string        `conf:"daemon.host"`
	Port    int           `conf:"daemon.port"`
	SSL     bool          `conf:"daemon.ssl"`
	Timeout time.Duration `conf:"daemon.timeout"`
	Rate    int           `conf:"daemon.rate"` // Sync requests per second (0 = unlimited)
}

// SyncConfig holds synchronizer settings.
type SyncConfig struct {
	Threads  int           `conf:"sync.threads"`
	Interval time.Duration `conf:"sync.interval"` // Poll interval once caught up
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-wallet
//	macOS:   ~/Library/Application Support/KlingnetWallet
//	Windows: %APPDATA%\KlingnetWallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-wallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetWallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetWallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetWallet")
	default:
		return filepath.Join(home, ".klingnet-wallet")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// WalletDir returns the directory wallet containers are kept in.
func (c *Config) WalletDir() string {
	return filepath.Join(c.ChainDataDir(), "wallets")
}

// WalletPath returns the wallet container path. Relative names are
// resolved against WalletDir.
func (c *Config) WalletPath() string {
	if c.Wallet.File == "" || filepath.IsAbs(c.Wallet.File) {
		return c.Wallet.File
	}
	return filepath.Join(c.WalletDir(), c.Wallet.File)
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingnet-wallet.conf")
}
