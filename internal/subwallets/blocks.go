package subwallets

import (
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// OwnedInput is an output paid to one of our sub-wallets.
type OwnedInput struct {
	Owner types.PublicKey
	Input Input
}

// BlockResult is what a scanned block contributed to the container.
type BlockResult struct {
	Height       uint64
	Timestamp    uint64
	Transactions []Transaction
	Inputs       []OwnedInput
	// Spent holds key images of our inputs consumed in this block.
	Spent []types.KeyImage
}

// IsTracking reports whether pub is a sub-wallet whose sync start lies at or
// before the given block.
func (r *Registry) IsTracking(pub types.PublicKey, height, timestamp uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.wallets[pub]
	if !ok {
		return false
	}
	if w.SyncStartTimestamp != 0 {
		return timestamp >= w.SyncStartTimestamp
	}
	return height >= w.SyncStartHeight
}

// KeyImageOwner returns the sub-wallet holding an input with key image ki,
// and the input's amount.
func (r *Registry) KeyImageOwner(ki types.KeyImage) (types.PublicKey, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for pub, w := range r.wallets {
		for _, list := range [][]Input{w.Unspent, w.Locked} {
			for _, in := range list {
				if in.KeyImage == ki {
					return pub, in.Amount, true
				}
			}
		}
	}
	return types.PublicKey{}, 0, false
}

// ApplyBlock stores the inputs, spends and transactions found in one block.
// Applying the same block twice has no further effect.
func (r *Registry) ApplyBlock(b BlockResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, owned := range b.Inputs {
		if w, ok := r.wallets[owned.Owner]; ok {
			w.storeInput(owned.Input)
		}
	}
	for _, ki := range b.Spent {
		for _, w := range r.wallets {
			if w.markSpent(ki, b.Height) {
				break
			}
		}
	}
	for _, tx := range b.Transactions {
		r.removeLockedTransaction(tx.Hash)
		for _, w := range r.wallets {
			w.confirm(tx.Hash)
		}
		if r.hasTransaction(tx.Hash) {
			continue
		}
		r.transactions = append(r.transactions, tx.clone())
	}
}

func (r *Registry) hasTransaction(hash types.Hash) bool {
	for _, tx := range r.transactions {
		if tx.Hash == hash {
			return true
		}
	}
	return false
}

func (r *Registry) removeLockedTransaction(hash types.Hash) {
	for i, tx := range r.lockedTransactions {
		if tx.Hash == hash {
			r.lockedTransactions = append(r.lockedTransactions[:i], r.lockedTransactions[i+1:]...)
			return
		}
	}
}
