package backend

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"github.com/Klingon-tech/klingnet-wallet/internal/synchronizer"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Balance is an unlocked and a locked amount.
type Balance struct {
	Address  string `json:"address,omitempty"`
	Unlocked uint64 `json:"unlocked"`
	Locked   uint64 `json:"locked"`
}

// SyncStatus compares the wallet's progress with the daemon's.
type SyncStatus struct {
	WalletBlockCount      uint64 `json:"walletBlockCount"`
	LocalDaemonBlockCount uint64 `json:"localDaemonBlockCount"`
	NetworkBlockCount     uint64 `json:"networkBlockCount"`
}

// Status is SyncStatus plus the daemon's network view.
type Status struct {
	SyncStatus
	PeerCount uint64 `json:"peerCount"`
	Hashrate  uint64 `json:"hashrate"`
}

func (b *Backend) balance(pubs []types.PublicKey) (unlocked, locked uint64) {
	return b.wallets.Balance(pubs, b.daemon.NetworkBlockCount(), synchronizer.Now())
}

// GetBalance returns the balance of the sub-wallet at address.
func (b *Backend) GetBalance(address string) (Balance, error) {
	pub, err := b.wallets.ResolveAddress(address)
	if err != nil {
		return Balance{}, err
	}
	unlocked, locked := b.balance([]types.PublicKey{pub})
	return Balance{Address: address, Unlocked: unlocked, Locked: locked}, nil
}

// GetTotalBalance returns the balance of every sub-wallet together.
func (b *Backend) GetTotalBalance() Balance {
	unlocked, locked := b.balance(b.wallets.PublicSpendKeys())
	return Balance{Unlocked: unlocked, Locked: locked}
}

// GetTotalUnlockedBalance returns the unlocked balance of every sub-wallet
// together.
func (b *Backend) GetTotalUnlockedBalance() uint64 {
	return b.GetTotalBalance().Unlocked
}

// GetBalances returns the balance of each sub-wallet, primary first.
func (b *Backend) GetBalances() []Balance {
	pubs := b.wallets.PublicSpendKeys()
	out := make([]Balance, 0, len(pubs))
	for _, pub := range pubs {
		address, err := b.wallets.Address(pub)
		if err != nil {
			// Deleted since the key list was taken.
			continue
		}
		unlocked, locked := b.balance([]types.PublicKey{pub})
		out = append(out, Balance{Address: address, Unlocked: unlocked, Locked: locked})
	}
	return out
}

// GetTransactions returns every confirmed transaction.
func (b *Backend) GetTransactions() []subwallets.Transaction {
	return b.wallets.Transactions()
}

// GetUnconfirmedTransactions returns sent transactions not yet in a block.
func (b *Backend) GetUnconfirmedTransactions() []subwallets.Transaction {
	return b.wallets.UnconfirmedTransactions()
}

// GetTransactionsRange returns the confirmed transactions with
// start <= height < end.
func (b *Backend) GetTransactionsRange(start, end uint64) ([]subwallets.Transaction, error) {
	if end <= start {
		return nil, walleterr.WithMessage(walleterr.InvalidScanRange,
			"end height %d is not above start height %d", end, start)
	}
	return b.wallets.TransactionsRange(start, end), nil
}

// GetSyncStatus returns the wallet and daemon heights.
func (b *Backend) GetSyncStatus() SyncStatus {
	return SyncStatus{
		WalletBlockCount:      b.sync.CurrentScanHeight(),
		LocalDaemonBlockCount: b.daemon.LocalDaemonBlockCount(),
		NetworkBlockCount:     b.daemon.NetworkBlockCount(),
	}
}

// GetStatus returns the sync status with the daemon's peer count and
// hashrate.
func (b *Backend) GetStatus() Status {
	return Status{
		SyncStatus: b.GetSyncStatus(),
		PeerCount:  b.daemon.PeerCount(),
		Hashrate:   b.daemon.Hashrate(),
	}
}

// GetNodeFee returns the address and amount the daemon charges per
// transaction.
func (b *Backend) GetNodeFee() (string, uint64) {
	return b.daemon.NodeFee()
}

// GetNodeAddress returns the daemon's host and port.
func (b *Backend) GetNodeAddress() (string, uint16) {
	return b.daemon.NodeAddress()
}

// DaemonOnline reports whether the daemon is answering.
func (b *Backend) DaemonOnline() bool {
	return b.daemon.IsOnline()
}

// GetAddress returns the address of the sub-wallet with public spend key
// pub.
func (b *Backend) GetAddress(pub types.PublicKey) (string, error) {
	return b.wallets.Address(pub)
}

// GetTxPrivateKey returns the transaction private key of a transaction this
// wallet sent.
func (b *Backend) GetTxPrivateKey(hash types.Hash) (types.SecretKey, error) {
	return b.wallets.TxPrivateKey(hash)
}

func (b *Backend) IsViewWallet() bool        { return b.wallets.IsViewWallet() }
func (b *Backend) GetPrimaryAddress() string { return b.wallets.PrimaryAddress() }
func (b *Backend) GetAddresses() []string    { return b.wallets.Addresses() }
func (b *Backend) GetWalletCount() int       { return b.wallets.Count() }
