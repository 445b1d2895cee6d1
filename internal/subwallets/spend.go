package subwallets

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// SpendableInput is an unlocked input together with the keys that spend it.
type SpendableInput struct {
	Input
	Owner           types.PublicKey
	PrivateSpendKey types.SecretKey
}

// SpendableInputs returns a snapshot of the unlocked inputs of the given
// sub-wallets, or of all of them when pubs is empty.
func (r *Registry) SpendableInputs(pubs []types.PublicKey, height, now uint64) ([]SpendableInput, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.isViewWallet {
		return nil, walleterr.IllegalViewWalletOperation
	}
	for _, pub := range pubs {
		if _, ok := r.wallets[pub]; !ok {
			return nil, walleterr.AddressNotInWallet
		}
	}

	var out []SpendableInput
	for _, w := range r.selectLocked(pubs) {
		for _, in := range w.Unspent {
			if !in.Unlocked(height, now) {
				continue
			}
			out = append(out, SpendableInput{
				Input:           in,
				Owner:           w.PublicSpendKey,
				PrivateSpendKey: w.PrivateSpendKey,
			})
		}
	}
	return out, nil
}

// AllUnspent reports whether every key image is still an unspent input of
// one of our sub-wallets.
func (r *Registry) AllUnspent(keyImages []types.KeyImage) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ki := range keyImages {
		if !r.isUnspentLocked(ki) {
			return false
		}
	}
	return true
}

func (r *Registry) isUnspentLocked(ki types.KeyImage) bool {
	for _, w := range r.wallets {
		for _, in := range w.Unspent {
			if in.KeyImage == ki {
				return true
			}
		}
	}
	return false
}

// MarkSent records an outgoing transaction that the daemon accepted: its
// inputs move to the locked list, the amounts it pays back to our
// sub-wallets count as locked balance and it is tracked as unconfirmed until
// it appears in a block.
func (r *Registry) MarkSent(tx Transaction, keyImages []types.KeyImage, incoming map[types.PublicKey]uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pub, amount := range incoming {
		if w, ok := r.wallets[pub]; ok && amount > 0 {
			w.UnconfirmedIncoming = append(w.UnconfirmedIncoming, UnconfirmedInput{
				Amount:          amount,
				TransactionHash: tx.Hash,
			})
		}
	}

	for _, ki := range keyImages {
		for _, w := range r.wallets {
			if w.lock(ki) {
				break
			}
		}
	}
	r.lockedTransactions = append(r.lockedTransactions, tx.clone())
}
