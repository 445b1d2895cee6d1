package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Wallet
	WalletFile string
	ScanHeight uint64

	// Daemon
	DaemonHost    string
	DaemonPort    int
	DaemonSSL     bool
	DaemonTimeout time.Duration

	// Sync
	SyncThreads int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args: the command and its operands.
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetDaemonSSL bool
	SetLogJSON   bool
}

// Command returns the first positional argument, or "".
func (f *Flags) Command() string {
	if len(f.Args) == 0 {
		return ""
	}
	return f.Args[0]
}

// ParseFlags parses command-line flags from args (without the program name).
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("klingnet-wallet", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	testnet := fs.Bool("testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Wallet
	fs.StringVar(&f.WalletFile, "wallet-file", "", "Wallet container path")
	fs.Uint64Var(&f.ScanHeight, "scan-height", 0, "Height to start scanning from when importing")

	// Daemon
	fs.StringVar(&f.DaemonHost, "daemon-host", "", "Daemon RPC host")
	fs.IntVar(&f.DaemonPort, "daemon-port", 0, "Daemon RPC port")
	fs.BoolVar(&f.DaemonSSL, "daemon-ssl", false, "Connect to the daemon over HTTPS")
	fs.DurationVar(&f.DaemonTimeout, "daemon-timeout", 0, "Daemon request timeout")

	// Sync
	fs.IntVar(&f.SyncThreads, "sync-threads", 0, "Block scanning threads")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			f.Help = true
			return f, nil
		}
		return nil, err
	}

	if *testnet {
		f.Network = string(Testnet)
	}
	f.SetDaemonSSL = isFlagSet(fs, "daemon-ssl")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	// Flags after the command are not parsed by the flag package.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q must come before the command", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Wallet
	if f.WalletFile != "" {
		cfg.Wallet.File = f.WalletFile
	}

	// Daemon
	if f.DaemonHost != "" {
		cfg.Daemon.Host = f.DaemonHost
	}
	if f.DaemonPort != 0 {
		cfg.Daemon.Port = f.DaemonPort
	}
	if f.SetDaemonSSL {
		cfg.Daemon.SSL = f.DaemonSSL
	}
	if f.DaemonTimeout != 0 {
		cfg.Daemon.Timeout = f.DaemonTimeout
	}

	// Sync
	if f.SyncThreads != 0 {
		cfg.Sync.Threads = f.SyncThreads
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the help text to w.
func PrintUsage(w io.Writer) {
	usage := `Klingnet Wallet - wallet container backend for Klingnet

Usage:
  klingnet-wallet [options] <command> [arguments]
  klingnet-wallet --help

Commands:
  create                      Create a new wallet container
  import-seed                 Restore a container from a 24-word mnemonic seed
  import-keys                 Restore a container from private spend and view keys
  import-view <address>       Create a view-only container for an address
  open                        Open a container and sync it until interrupted
  status                      Open a container and print its balances

Core Options:
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.klingnet-wallet)
  --config, -c    Config file path (default: <datadir>/klingnet-wallet.conf)

Wallet Options:
  --wallet-file   Wallet container path (default: wallet.kgw)
  --scan-height   Height to start scanning from when importing (default: 0)

Daemon Options:
  --daemon-host     Daemon RPC host (default: 127.0.0.1)
  --daemon-port     Daemon RPC port (mainnet: 8545, testnet: 8645)
  --daemon-ssl      Connect to the daemon over HTTPS
  --daemon-timeout  Daemon request timeout (default: 10s)

Sync Options:
  --sync-threads  Block scanning threads (default: 4)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Create a testnet wallet
  klingnet-wallet --testnet create

  # Sync against a remote node
  klingnet-wallet --daemon-host=node.example.com --daemon-ssl open
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}

	// Determine network first (needed for defaults)
	network := Mainnet
	if strings.ToLower(flags.Network) == string(Testnet) {
		network = Testnet
	}

	// Start with defaults
	cfg := Default(network)

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	// Load config file
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	// Apply file config
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. This is idempotent, safe to call on
// every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.WalletDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
