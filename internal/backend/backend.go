// Package backend is the wallet container: it creates, imports, opens and
// saves wallets, and owns the runtime pieces (daemon connection,
// synchronizer, transaction pipeline) that work on an open one.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/daemon"
	"github.com/Klingon-tech/klingnet-wallet/internal/guard"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"github.com/Klingon-tech/klingnet-wallet/internal/synchronizer"
	"github.com/Klingon-tech/klingnet-wallet/internal/transfer"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/internal/walletfile"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Daemon is the daemon connection an open wallet needs.
type Daemon interface {
	synchronizer.Source
	transfer.Daemon

	Init(ctx context.Context) error
	Stop() error
	SwapNode(ctx context.Context, host string, port uint16, ssl bool) error

	LocalDaemonBlockCount() uint64
	PeerCount() uint64
	Hashrate() uint64
	NodeAddress() (host string, port uint16)
	IsOnline() bool
}

// Options configure the runtime side of a wallet. None of it is saved.
type Options struct {
	Daemon daemon.Config
	// Chain defaults to mainnet.
	Chain *config.ChainParams
	Sync  synchronizer.Options
	// KDFIterations overrides the PBKDF2 work factor of the wallet file.
	KDFIterations int
	// NewDaemon replaces the JSON-RPC daemon client.
	NewDaemon func(daemon.Config) Daemon
}

// OptionsFromConfig builds backend options from the process configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Daemon: daemon.Config{
			Host:              cfg.Daemon.Host,
			Port:              uint16(cfg.Daemon.Port),
			SSL:               cfg.Daemon.SSL,
			Timeout:           cfg.Daemon.Timeout,
			RequestsPerSecond: cfg.Daemon.Rate,
		},
		Chain: config.ParamsFor(cfg.Network),
		Sync: synchronizer.Options{
			Threads:  cfg.Sync.Threads,
			Interval: cfg.Sync.Interval,
		},
	}
}

// Backend is an open wallet container.
type Backend struct {
	mu       sync.RWMutex // guards filename and password
	filename string
	password string

	codec walletfile.Codec
	opts  Options
	chain *config.ChainParams

	wallets *subwallets.Registry
	sync    *synchronizer.Synchronizer

	// Runtime state, set by init.
	daemon      Daemon
	guard       *guard.Guard
	transfers   *transfer.Pipeline
	initialized atomic.Bool
}

// keySet is the key material a wallet is built from: either fullKeys or
// viewOnly.
type keySet interface {
	registry(scanHeight, scanTimestamp uint64) (*subwallets.Registry, error)
}

type fullKeys struct {
	spend, view types.SecretKey
}

func (k fullKeys) registry(scanHeight, scanTimestamp uint64) (*subwallets.Registry, error) {
	return subwallets.New(k.spend, k.view, scanHeight, scanTimestamp)
}

type viewOnly struct {
	view    types.SecretKey
	address types.Address
}

func (k viewOnly) registry(scanHeight, scanTimestamp uint64) (*subwallets.Registry, error) {
	return subwallets.NewView(k.view, k.address, scanHeight, scanTimestamp)
}

func newBackend(filename, password string, opts Options) *Backend {
	chain := opts.Chain
	if chain == nil {
		chain = config.MainnetParams()
	}
	return &Backend{
		filename: filename,
		password: password,
		codec:    walletfile.Codec{Iterations: opts.KDFIterations},
		opts:     opts,
		chain:    chain,
	}
}

// CreateWallet creates a wallet with a fresh spend key and a view key
// derived from it, and saves it to filename. Scanning starts at the current
// time.
func CreateWallet(filename, password string, opts Options) (*Backend, error) {
	if err := walletfile.CheckNewFilename(filename); err != nil {
		return nil, err
	}
	spend, err := crypto.GenerateKeys()
	if err != nil {
		return nil, err
	}
	keys := fullKeys{spend: spend.SecretKey, view: crypto.ViewFromSpend(spend.SecretKey)}
	return build(keys, filename, password, 0, true, opts)
}

// ImportWalletFromSeed restores a wallet from its 24-word mnemonic seed and
// scans from scanHeight.
func ImportWalletFromSeed(seed, filename, password string, scanHeight uint64, opts Options) (*Backend, error) {
	if err := walletfile.CheckNewFilename(filename); err != nil {
		return nil, err
	}
	spend, err := wallet.MnemonicToPrivateKey(seed)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.InvalidMnemonic, err)
	}
	keys := fullKeys{spend: spend, view: crypto.ViewFromSpend(spend)}
	return build(keys, filename, password, scanHeight, false, opts)
}

// ImportWalletFromKeys restores a wallet from its private spend and view
// keys. The view key need not be derived from the spend key, but such a
// wallet has no mnemonic seed.
func ImportWalletFromKeys(spend, view types.SecretKey, filename, password string, scanHeight uint64, opts Options) (*Backend, error) {
	if err := walletfile.CheckNewFilename(filename); err != nil {
		return nil, err
	}
	for _, k := range []types.SecretKey{spend, view} {
		if err := crypto.ValidateSecretKey(k); err != nil {
			return nil, walleterr.Wrap(walleterr.InvalidPrivateKey, err)
		}
	}
	return build(fullKeys{spend: spend, view: view}, filename, password, scanHeight, false, opts)
}

// ImportViewWallet creates a view-only wallet for address, which must carry
// the public key of view.
func ImportViewWallet(view types.SecretKey, address, filename, password string, scanHeight uint64, opts Options) (*Backend, error) {
	if err := walletfile.CheckNewFilename(filename); err != nil {
		return nil, err
	}
	if err := crypto.ValidateSecretKey(view); err != nil {
		return nil, walleterr.Wrap(walleterr.InvalidPrivateKey, err)
	}
	addr, err := types.ParseAddress(address)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.InvalidAddress, err)
	}
	return build(viewOnly{view: view, address: addr}, filename, password, scanHeight, false, opts)
}

// build creates the registry and synchronizer for keys, starts them and
// writes the first save. A new wallet scans from the current time, an
// imported one from scanHeight.
func build(keys keySet, filename, password string, scanHeight uint64, newWallet bool, opts Options) (*Backend, error) {
	b := newBackend(filename, password, opts)

	var scanTimestamp uint64
	if newWallet {
		scanHeight = 0
		scanTimestamp = synchronizer.CurrentTimestampAdjusted(b.chain.BlockTime)
	}

	wallets, err := keys.registry(scanHeight, scanTimestamp)
	if err != nil {
		return nil, err
	}
	b.wallets = wallets
	b.sync = synchronizer.New(scanHeight, scanTimestamp, opts.Sync)

	if err := b.init(context.Background()); err != nil {
		return nil, err
	}
	if err := b.Save(); err != nil {
		b.initialized.Store(false)
		b.shutdown()
		return nil, err
	}

	log.Wallet.Info().
		Str("file", filename).
		Str("address", wallets.PrimaryAddress()).
		Bool("view_only", wallets.IsViewWallet()).
		Uint64("scan_height", scanHeight).
		Msg("wallet created")
	return b, nil
}

// OpenWallet decrypts the wallet at filename and starts syncing it.
func OpenWallet(filename, password string, opts Options) (*Backend, error) {
	b := newBackend(filename, password, opts)

	doc, err := b.codec.ReadFile(filename, password)
	if err != nil {
		return nil, err
	}
	b.wallets, err = subwallets.FromJSON(doc.SubWallets)
	if err != nil {
		log.FileSystem.Error().Err(err).Str("file", filename).Msg("failed to parse sub-wallets")
		return nil, walleterr.Wrap(walleterr.WalletFileCorrupted, err)
	}
	b.sync, err = synchronizer.FromJSON(doc.WalletSynchronizer)
	if err != nil {
		log.FileSystem.Error().Err(err).Str("file", filename).Msg("failed to parse synchronizer state")
		return nil, walleterr.Wrap(walleterr.WalletFileCorrupted, err)
	}

	if err := b.init(context.Background()); err != nil {
		return nil, err
	}
	log.Wallet.Info().
		Str("file", filename).
		Int("subwallets", b.wallets.Count()).
		Uint64("scan_height", b.sync.CurrentScanHeight()).
		Msg("wallet opened")
	return b, nil
}

// init sets up the state that is never saved: the daemon connection, the
// guard and the transaction pipeline. It starts the synchronizer.
func (b *Backend) init(ctx context.Context) error {
	newDaemon := b.opts.NewDaemon
	if newDaemon == nil {
		newDaemon = func(cfg daemon.Config) Daemon { return daemon.New(cfg) }
	}
	b.daemon = newDaemon(b.opts.Daemon)
	if err := b.daemon.Init(ctx); err != nil {
		return fmt.Errorf("init daemon: %w", err)
	}

	b.sync.InitializeAfterLoad(b.daemon, b.wallets, b.opts.Sync)
	b.guard = guard.New(b.sync)
	b.transfers = transfer.New(b.wallets, b.daemon, b.guard, transfer.Params{
		MinFeeRate:      b.chain.MinFeeRate,
		FusionThreshold: b.chain.FusionThreshold,
	})

	b.sync.Start()
	b.initialized.Store(true)
	return nil
}

func (b *Backend) mustInit() {
	if !b.initialized.Load() {
		panic("backend: wallet used before init")
	}
}

// shutdown stops the runtime state without saving. The caller clears
// initialized first.
func (b *Backend) shutdown() {
	if err := b.sync.Stop(); err != nil {
		log.Sync.Warn().Err(err).Msg("synchronizer stopped with error")
	}
	if err := b.daemon.Stop(); err != nil {
		log.Daemon.Warn().Err(err).Msg("daemon client stopped with error")
	}
}

// Close saves the wallet and stops syncing. A wallet that never finished
// initializing, or is already closed, is not saved.
func (b *Backend) Close() error {
	if !b.initialized.CompareAndSwap(true, false) {
		return nil
	}
	err := b.guard.PauseAndRun(context.Background(), b.save)
	b.shutdown()
	return err
}

// Save encrypts the wallet and writes it to its file.
func (b *Backend) Save() error {
	b.mustInit()
	defer log.Benchmark("save wallet")()
	return b.guard.PauseAndRun(context.Background(), b.save)
}

func (b *Backend) save(context.Context) error {
	doc, err := b.document()
	if err != nil {
		return err
	}

	b.mu.RLock()
	filename, password := b.filename, b.password
	b.mu.RUnlock()

	if err := b.codec.WriteFile(filename, doc, password); err != nil {
		log.FileSystem.Error().Err(err).Str("file", filename).Msg("failed to save wallet")
		return err
	}
	log.FileSystem.Debug().Str("file", filename).Msg("wallet saved")
	return nil
}

// document snapshots the wallet. The synchronizer must be paused.
func (b *Backend) document() (*walletfile.Document, error) {
	wallets, err := b.wallets.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode sub-wallets: %w", err)
	}
	checkpoint, err := b.sync.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode synchronizer: %w", err)
	}
	return &walletfile.Document{
		WalletFileFormatVersion: walletfile.FormatVersion,
		SubWallets:              wallets,
		WalletSynchronizer:      checkpoint,
	}, nil
}

// ToJSON returns the unencrypted wallet document.
func (b *Backend) ToJSON() (string, error) {
	b.mustInit()
	return guard.Run(context.Background(), b.guard, func(context.Context) (string, error) {
		doc, err := b.document()
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}

// ChangePassword re-encrypts the wallet file with password.
func (b *Backend) ChangePassword(password string) error {
	b.mu.Lock()
	if password == b.password {
		b.mu.Unlock()
		return nil
	}
	b.password = password
	b.mu.Unlock()
	return b.Save()
}

// Password returns the wallet file password.
func (b *Backend) Password() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.password
}

// WalletLocation returns the path of the wallet file.
func (b *Backend) WalletLocation() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filename
}

// SwapNode moves syncing to another daemon. Blocks already scanned are kept.
func (b *Backend) SwapNode(ctx context.Context, host string, port uint16, ssl bool) error {
	b.mustInit()
	return b.guard.PauseAndRun(ctx, func(ctx context.Context) error {
		if err := b.daemon.SwapNode(ctx, host, port, ssl); err != nil {
			return err
		}
		b.sync.SwapNode(b.daemon)
		return nil
	})
}

// Transfers returns the transaction pipeline of the wallet.
func (b *Backend) Transfers() *transfer.Pipeline {
	b.mustInit()
	return b.transfers
}

// Reset forgets every transaction and scans again from scanHeight, or from
// the height matching timestamp when timestamp is non-zero.
func (b *Backend) Reset(scanHeight, timestamp uint64) error {
	b.mustInit()
	height := b.scanHeight(scanHeight, timestamp)
	err := b.guard.PauseAndRun(context.Background(), func(ctx context.Context) error {
		b.sync.Reset(height)
		b.wallets.Reset(height)
		return b.save(ctx)
	})
	if err == nil {
		log.Wallet.Info().Uint64("height", height).Msg("wallet reset")
	}
	return err
}

// Rewind forgets what was scanned at or above scanHeight (or the height
// matching a non-zero timestamp) and scans it again.
func (b *Backend) Rewind(scanHeight, timestamp uint64) error {
	b.mustInit()
	height := b.scanHeight(scanHeight, timestamp)
	err := b.guard.PauseAndRun(context.Background(), func(ctx context.Context) error {
		b.rewind(height)
		return b.save(ctx)
	})
	if err == nil {
		log.Wallet.Info().Uint64("height", height).Msg("wallet rewound")
	}
	return err
}

// ScanRange re-scans the blocks in [start, end), then resumes at the chain
// tip.
func (b *Backend) ScanRange(start, end uint64) error {
	b.mustInit()
	if end <= start {
		return walleterr.WithMessage(walleterr.InvalidScanRange,
			"end height %d is not above start height %d", end, start)
	}
	return b.guard.PauseAndRun(context.Background(), func(ctx context.Context) error {
		b.rewind(start)
		b.sync.SetEndScanHeight(end)
		return b.save(ctx)
	})
}

// rewind rolls the synchronizer and the registry back to height. The
// synchronizer must be paused.
func (b *Backend) rewind(height uint64) {
	b.sync.Rewind(height)
	b.wallets.Rewind(height)
}

func (b *Backend) scanHeight(height, timestamp uint64) uint64 {
	if timestamp == 0 {
		return height
	}
	return synchronizer.TimestampToScanHeight(timestamp, b.chain.GenesisTimestamp, b.chain.BlockTime)
}
