package config

import (
	"fmt"
	"strings"
)

// Validate checks runtime wallet config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if strings.TrimSpace(cfg.Wallet.File) == "" {
		return fmt.Errorf("wallet.file is required")
	}
	if strings.TrimSpace(cfg.Daemon.Host) == "" {
		return fmt.Errorf("daemon.host is required")
	}
	if cfg.Daemon.Port < 1 || cfg.Daemon.Port > 65535 {
		return fmt.Errorf("daemon.port must be in range [1, 65535]")
	}
	if cfg.Daemon.Timeout <= 0 {
		return fmt.Errorf("daemon.timeout must be positive")
	}
	if cfg.Daemon.Rate < 0 {
		return fmt.Errorf("daemon.rate must not be negative")
	}
	if cfg.Sync.Threads < 1 {
		return fmt.Errorf("sync.threads must be at least 1")
	}
	if cfg.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	switch cfg.Log.Level {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}
	return nil
}
