// klingnet-wallet creates, restores and syncs Klingnet wallet containers.
//
// Usage:
//
//	klingnet-wallet [options] <command> [arguments]
//	klingnet-wallet --help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/backend"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"golang.org/x/term"
)

const version = "0.1.0"

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		fatal("%v", err)
	}
	if flags.Help || flags.Command() == "" {
		config.PrintUsage(os.Stdout)
		return
	}
	if flags.Version {
		fmt.Printf("klingnet-wallet %s\n", version)
		return
	}

	params := config.ParamsFor(cfg.Network)
	types.SetAddressHRP(params.AddressHRP)

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(cfg.LogsDir(), "wallet.log")
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fatal("initializing logger: %v", err)
	}

	path := cfg.WalletPath()
	opts := backend.OptionsFromConfig(cfg)
	args := flags.Args[1:]

	switch flags.Command() {
	case "create":
		cmdCreate(path, opts)
	case "import-seed":
		cmdImportSeed(path, flags.ScanHeight, opts)
	case "import-keys":
		cmdImportKeys(path, flags.ScanHeight, opts)
	case "import-view":
		if len(args) != 1 {
			fatal("Usage: klingnet-wallet import-view <address>")
		}
		cmdImportView(path, args[0], flags.ScanHeight, opts)
	case "open":
		cmdOpen(path, opts)
	case "status":
		cmdStatus(path, opts)
	default:
		fatal("Unknown command: %s (see --help)", flags.Command())
	}
}

func cmdCreate(path string, opts backend.Options) {
	password := newPassword()
	w, err := backend.CreateWallet(path, password, opts)
	if err != nil {
		fatal("create wallet: %v", err)
	}
	defer closeWallet(w)

	seed, err := w.GetMnemonicSeed()
	if err != nil {
		fatal("mnemonic seed: %v", err)
	}
	fmt.Printf("Wallet created: %s\n", path)
	fmt.Printf("Address: %s\n\n", w.GetPrimaryAddress())
	fmt.Println("Mnemonic seed (write this down!):")
	fmt.Printf("  %s\n", seed)
}

func cmdImportSeed(path string, scanHeight uint64, opts backend.Options) {
	seed, err := readSecret("Mnemonic seed: ")
	if err != nil {
		fatal("read seed: %v", err)
	}
	password := newPassword()
	w, err := backend.ImportWalletFromSeed(strings.Join(strings.Fields(seed), " "), path, password, scanHeight, opts)
	if err != nil {
		fatal("import wallet: %v", err)
	}
	defer closeWallet(w)
	fmt.Printf("Wallet restored: %s\n", path)
	fmt.Printf("Address: %s\n", w.GetPrimaryAddress())
}

func cmdImportKeys(path string, scanHeight uint64, opts backend.Options) {
	spend := readKey("Private spend key: ")
	view := readKey("Private view key: ")
	password := newPassword()
	w, err := backend.ImportWalletFromKeys(spend, view, path, password, scanHeight, opts)
	if err != nil {
		fatal("import wallet: %v", err)
	}
	defer closeWallet(w)
	fmt.Printf("Wallet restored: %s\n", path)
	fmt.Printf("Address: %s\n", w.GetPrimaryAddress())
}

func cmdImportView(path, address string, scanHeight uint64, opts backend.Options) {
	view := readKey("Private view key: ")
	password := newPassword()
	w, err := backend.ImportViewWallet(view, address, path, password, scanHeight, opts)
	if err != nil {
		fatal("import view wallet: %v", err)
	}
	defer closeWallet(w)
	fmt.Printf("View-only wallet created: %s\n", path)
	fmt.Printf("Address: %s\n", w.GetPrimaryAddress())
}

func cmdOpen(path string, opts backend.Options) {
	w := openWallet(path, opts)
	defer closeWallet(w)

	fmt.Printf("Syncing %s (Ctrl+C to stop)\n", w.GetPrimaryAddress())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			fmt.Println("\nSaving wallet...")
			return
		case <-ticker.C:
			s := w.GetSyncStatus()
			log.Wallet.Info().
				Uint64("wallet", s.WalletBlockCount).
				Uint64("daemon", s.LocalDaemonBlockCount).
				Uint64("network", s.NetworkBlockCount).
				Msg("sync status")
		}
	}
}

func cmdStatus(path string, opts backend.Options) {
	w := openWallet(path, opts)
	defer closeWallet(w)

	status := w.GetStatus()
	host, port := w.GetNodeAddress()
	fmt.Printf("Daemon:       %s:%d (online: %v)\n", host, port, w.DaemonOnline())
	fmt.Printf("Wallet:       %d / %d blocks\n", status.WalletBlockCount, status.NetworkBlockCount)
	fmt.Printf("Peers:        %d\n", status.PeerCount)
	fmt.Printf("View only:    %v\n\n", w.IsViewWallet())

	for _, b := range w.GetBalances() {
		fmt.Printf("%s\n  unlocked: %s\n  locked:   %s\n", b.Address, formatAmount(b.Unlocked), formatAmount(b.Locked))
	}
	total := w.GetTotalBalance()
	fmt.Printf("\nTotal: %s (%s locked)\n", formatAmount(total.Unlocked), formatAmount(total.Locked))
}

func openWallet(path string, opts backend.Options) *backend.Backend {
	password, err := readSecret("Password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	w, err := backend.OpenWallet(path, password, opts)
	if err != nil {
		fatal("open wallet: %v", err)
	}
	return w
}

func closeWallet(w *backend.Backend) {
	if err := w.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: save wallet: %v\n", err)
	}
}

// ── Input helpers ───────────────────────────────────────────────────────

func newPassword() string {
	password, err := readSecret("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readSecret("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if password != confirm {
		fatal("passwords do not match")
	}
	return password
}

func readKey(prompt string) types.SecretKey {
	s, err := readSecret(prompt)
	if err != nil {
		fatal("read key: %v", err)
	}
	key, err := types.HexToSecretKey(strings.TrimSpace(s))
	if err != nil {
		fatal("invalid key: %v", err)
	}
	return key
}

func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// formatAmount converts base units to a decimal coin string.
func formatAmount(units uint64) string {
	return fmt.Sprintf("%d.%012d", units/config.Coin, units%config.Coin)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
