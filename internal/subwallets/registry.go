package subwallets

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Registry is the thread-safe set of sub-wallets in one container. All
// sub-wallets share the container's private view key. A container is either
// spend-capable for every sub-wallet or view-only for every sub-wallet.
type Registry struct {
	mu sync.RWMutex

	// order of insertion; the primary is always first.
	publicSpendKeys []types.PublicKey
	wallets         map[types.PublicKey]*SubWallet

	privateViewKey types.SecretKey
	publicViewKey  types.PublicKey
	isViewWallet   bool

	transactions []Transaction
	// unconfirmed outgoing transactions.
	lockedTransactions []Transaction

	txPrivateKeys map[types.Hash]types.SecretKey
}

func newRegistry(view types.SecretKey, isView bool) (*Registry, error) {
	viewPub, err := crypto.SecretKeyToPublicKey(view)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.InvalidPrivateKey, err)
	}
	return &Registry{
		wallets:        make(map[types.PublicKey]*SubWallet),
		privateViewKey: view,
		publicViewKey:  viewPub,
		isViewWallet:   isView,
		txPrivateKeys:  make(map[types.Hash]types.SecretKey),
	}, nil
}

// New creates a spend-capable registry whose primary sub-wallet is spend.
func New(spend, view types.SecretKey, scanHeight, scanTimestamp uint64) (*Registry, error) {
	r, err := newRegistry(view, false)
	if err != nil {
		return nil, err
	}
	pub, err := crypto.SecretKeyToPublicKey(spend)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.InvalidPrivateKey, err)
	}
	r.add(&SubWallet{
		PublicSpendKey:     pub,
		PrivateSpendKey:    spend,
		SyncStartHeight:    scanHeight,
		SyncStartTimestamp: scanTimestamp,
		Primary:            true,
	})
	return r, nil
}

// NewView creates a view-only registry for address.
func NewView(view types.SecretKey, address types.Address, scanHeight, scanTimestamp uint64) (*Registry, error) {
	r, err := newRegistry(view, true)
	if err != nil {
		return nil, err
	}
	if address.ViewKey != r.publicViewKey {
		return nil, walleterr.WithMessage(walleterr.InvalidAddress,
			"the address view key does not match the private view key")
	}
	r.add(&SubWallet{
		PublicSpendKey:     address.SpendKey,
		SyncStartHeight:    scanHeight,
		SyncStartTimestamp: scanTimestamp,
		Primary:            true,
	})
	return r, nil
}

func (r *Registry) add(w *SubWallet) {
	w.Address = r.addressOf(w.PublicSpendKey)
	r.wallets[w.PublicSpendKey] = w
	r.publicSpendKeys = append(r.publicSpendKeys, w.PublicSpendKey)
}

func (r *Registry) addressOf(pub types.PublicKey) string {
	return types.Address{SpendKey: pub, ViewKey: r.publicViewKey}.String()
}

func (r *Registry) primary() *SubWallet {
	return r.wallets[r.publicSpendKeys[0]]
}

// AddSubWallet creates the next deterministic sub-wallet, starting its scan
// at scanTimestamp, and returns its address.
func (r *Registry) AddSubWallet(scanTimestamp uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isViewWallet {
		return "", walleterr.IllegalViewWalletOperation
	}

	index := uint64(1)
	for _, w := range r.wallets {
		if w.WalletIndex >= index {
			index = w.WalletIndex + 1
		}
	}
	for {
		kp, err := wallet.DeriveSubWalletKeys(r.primary().PrivateSpendKey, index)
		if err != nil {
			return "", fmt.Errorf("derive sub-wallet %d: %w", index, err)
		}
		if _, exists := r.wallets[kp.PublicKey]; exists {
			// Imported by key before; move on to the next index.
			index++
			continue
		}
		w := &SubWallet{
			PublicSpendKey:     kp.PublicKey,
			PrivateSpendKey:    kp.SecretKey,
			SyncStartTimestamp: scanTimestamp,
			WalletIndex:        index,
		}
		r.add(w)
		return w.Address, nil
	}
}

// ImportSubWallet adds a spend-capable sub-wallet for spend.
func (r *Registry) ImportSubWallet(spend types.SecretKey, scanHeight uint64) (string, error) {
	return r.importSpendKey(spend, scanHeight, 0)
}

// ImportSubWalletByIndex re-creates the deterministic sub-wallet at index.
func (r *Registry) ImportSubWalletByIndex(index, scanHeight uint64) (string, error) {
	if index == 0 {
		return "", walleterr.WithMessage(walleterr.SubWalletAlreadyExists,
			"index 0 is the primary address")
	}
	r.mu.RLock()
	isView := r.isViewWallet
	primary := r.primary().PrivateSpendKey
	r.mu.RUnlock()
	if isView {
		return "", walleterr.IllegalViewWalletOperation
	}

	kp, err := wallet.DeriveSubWalletKeys(primary, index)
	if err != nil {
		return "", walleterr.Wrap(walleterr.InvalidPrivateKey, err)
	}
	return r.importSpendKey(kp.SecretKey, scanHeight, index)
}

func (r *Registry) importSpendKey(spend types.SecretKey, scanHeight, index uint64) (string, error) {
	pub, err := crypto.SecretKeyToPublicKey(spend)
	if err != nil {
		return "", walleterr.Wrap(walleterr.InvalidPrivateKey, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isViewWallet {
		return "", walleterr.IllegalViewWalletOperation
	}
	if _, exists := r.wallets[pub]; exists {
		return "", walleterr.SubWalletAlreadyExists
	}
	w := &SubWallet{
		PublicSpendKey:  pub,
		PrivateSpendKey: spend,
		SyncStartHeight: scanHeight,
		WalletIndex:     index,
	}
	r.add(w)
	return w.Address, nil
}

// ImportViewSubWallet adds a view sub-wallet to a view-only container.
func (r *Registry) ImportViewSubWallet(pub types.PublicKey, scanHeight uint64) (string, error) {
	if err := crypto.ValidatePublicKey(pub); err != nil {
		return "", walleterr.Wrap(walleterr.InvalidPublicKey, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isViewWallet {
		return "", walleterr.IllegalNonViewWalletOperation
	}
	if _, exists := r.wallets[pub]; exists {
		return "", walleterr.SubWalletAlreadyExists
	}
	w := &SubWallet{PublicSpendKey: pub, SyncStartHeight: scanHeight}
	r.add(w)
	return w.Address, nil
}

// DeleteSubWallet removes a non-primary sub-wallet together with its share
// of the transaction history.
func (r *Registry) DeleteSubWallet(pub types.PublicKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[pub]
	if !ok {
		return walleterr.AddressNotInWallet
	}
	if w.Primary {
		return walleterr.CannotDeletePrimaryAddress
	}

	w.PrivateSpendKey.Zero()
	delete(r.wallets, pub)
	for i, k := range r.publicSpendKeys {
		if k == pub {
			r.publicSpendKeys = append(r.publicSpendKeys[:i], r.publicSpendKeys[i+1:]...)
			break
		}
	}
	r.transactions = dropTransfers(r.transactions, pub)
	r.lockedTransactions = dropTransfers(r.lockedTransactions, pub)
	return nil
}

func dropTransfers(txs []Transaction, pub types.PublicKey) []Transaction {
	keep := txs[:0]
	for _, tx := range txs {
		delete(tx.Transfers, pub)
		if len(tx.Transfers) > 0 {
			keep = append(keep, tx)
		}
	}
	return keep
}

// Reset forgets all history and restarts every sub-wallet at scanHeight.
func (r *Registry) Reset(scanHeight uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transactions = nil
	r.lockedTransactions = nil
	for _, w := range r.wallets {
		w.reset(scanHeight)
	}
}

// Rewind forgets history at or above scanHeight. Unconfirmed outgoing
// transactions are dropped and their inputs become spendable again.
func (r *Registry) Rewind(scanHeight uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lockedTransactions = nil
	keep := r.transactions[:0]
	for _, tx := range r.transactions {
		if tx.BlockHeight < scanHeight {
			keep = append(keep, tx)
		}
	}
	r.transactions = keep
	for _, w := range r.wallets {
		w.rewind(scanHeight)
	}
}

// MinSyncStart returns the lowest sync start height and timestamp over every
// sub-wallet; the synchronizer begins from there.
func (r *Registry) MinSyncStart() (height, timestamp uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	first := true
	for _, w := range r.wallets {
		if first || w.SyncStartHeight < height {
			height = w.SyncStartHeight
		}
		if first || w.SyncStartTimestamp < timestamp {
			timestamp = w.SyncStartTimestamp
		}
		first = false
	}
	return height, timestamp
}

// IsViewWallet reports whether the container has no spend keys.
func (r *Registry) IsViewWallet() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isViewWallet
}

// PrivateViewKey returns the container's shared private view key.
func (r *Registry) PrivateViewKey() types.SecretKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.privateViewKey
}

// Count returns the number of sub-wallets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wallets)
}

// PublicSpendKeys returns the sub-wallet spend keys, primary first.
func (r *Registry) PublicSpendKeys() []types.PublicKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.PublicKey(nil), r.publicSpendKeys...)
}

// Addresses returns every sub-wallet address, primary first.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.publicSpendKeys))
	for _, pub := range r.publicSpendKeys {
		out = append(out, r.wallets[pub].Address)
	}
	return out
}

// PrimaryAddress returns the address of the primary sub-wallet.
func (r *Registry) PrimaryAddress() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary().Address
}

// PrimaryPublicSpendKey returns the spend key of the primary sub-wallet.
func (r *Registry) PrimaryPublicSpendKey() types.PublicKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publicSpendKeys[0]
}

// PrimaryPrivateSpendKey returns the private spend key of the primary
// sub-wallet.
func (r *Registry) PrimaryPrivateSpendKey() (types.SecretKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.isViewWallet {
		return types.SecretKey{}, walleterr.IllegalViewWalletOperation
	}
	return r.primary().PrivateSpendKey, nil
}

// Address returns the address of the sub-wallet with spend key pub.
func (r *Registry) Address(pub types.PublicKey) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.wallets[pub]
	if !ok {
		return "", walleterr.AddressNotInWallet
	}
	return w.Address, nil
}

// ResolveAddress parses address and checks it belongs to this container,
// returning its public spend key.
func (r *Registry) ResolveAddress(address string) (types.PublicKey, error) {
	addr, err := types.ParseAddress(address)
	if err != nil {
		return types.PublicKey{}, walleterr.Wrap(walleterr.InvalidAddress, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if addr.ViewKey != r.publicViewKey {
		return types.PublicKey{}, walleterr.AddressNotInWallet
	}
	if _, ok := r.wallets[addr.SpendKey]; !ok {
		return types.PublicKey{}, walleterr.AddressNotInWallet
	}
	return addr.SpendKey, nil
}

// HasPublicSpendKey reports whether pub is one of our sub-wallets.
func (r *Registry) HasPublicSpendKey(pub types.PublicKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.wallets[pub]
	return ok
}

// SpendKeys returns the spend key pair of the sub-wallet pub.
func (r *Registry) SpendKeys(pub types.PublicKey) (types.PublicKey, types.SecretKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.wallets[pub]
	if !ok {
		return types.PublicKey{}, types.SecretKey{}, walleterr.AddressNotInWallet
	}
	if r.isViewWallet {
		return types.PublicKey{}, types.SecretKey{}, walleterr.IllegalViewWalletOperation
	}
	return w.PublicSpendKey, w.PrivateSpendKey, nil
}

// SubWallet returns a copy of the sub-wallet pub.
func (r *Registry) SubWallet(pub types.PublicKey) (SubWallet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.wallets[pub]
	if !ok {
		return SubWallet{}, false
	}
	return *w.clone(), true
}

// Balance returns the unlocked and locked balance of the given sub-wallets,
// or of all of them when pubs is empty. Change owed to us by unconfirmed
// outgoing transactions counts as locked.
func (r *Registry) Balance(pubs []types.PublicKey, height, now uint64) (unlocked, locked uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	selected := r.selectLocked(pubs)
	for _, w := range selected {
		u, l := w.balance(height, now)
		unlocked += u
		locked += l
	}
	return unlocked, locked
}

// selectLocked must be called with mu held.
func (r *Registry) selectLocked(pubs []types.PublicKey) []*SubWallet {
	if len(pubs) == 0 {
		pubs = r.publicSpendKeys
	}
	out := make([]*SubWallet, 0, len(pubs))
	for _, pub := range pubs {
		if w, ok := r.wallets[pub]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Transactions returns confirmed transactions in block order.
func (r *Registry) Transactions() []Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneTransactions(r.transactions)
}

// UnconfirmedTransactions returns outgoing transactions not yet in a block.
func (r *Registry) UnconfirmedTransactions() []Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneTransactions(r.lockedTransactions)
}

// TransactionsRange returns confirmed transactions with
// start <= BlockHeight < end.
func (r *Registry) TransactionsRange(start, end uint64) []Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Transaction
	for _, tx := range r.transactions {
		if tx.BlockHeight >= start && tx.BlockHeight < end {
			out = append(out, tx.clone())
		}
	}
	return out
}

func cloneTransactions(txs []Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BlockHeight < out[j].BlockHeight
	})
	return out
}

// StoreTxPrivateKey records the private key of a transaction we sent.
func (r *Registry) StoreTxPrivateKey(hash types.Hash, key types.SecretKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txPrivateKeys[hash] = key
}

// TxPrivateKey returns the stored private key of a transaction we sent.
func (r *Registry) TxPrivateKey(hash types.Hash) (types.SecretKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.txPrivateKeys[hash]
	if !ok {
		return types.SecretKey{}, walleterr.TxPrivateKeyNotFound
	}
	return key, nil
}
