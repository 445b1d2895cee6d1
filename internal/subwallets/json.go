package subwallets

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// registryJSON is the serialized form of a Registry inside the wallet file.
type registryJSON struct {
	SubWallets         []*SubWallet                   `json:"subWallet"`
	Transactions       []Transaction                  `json:"transactions"`
	LockedTransactions []Transaction                  `json:"lockedTransactions"`
	PrivateViewKey     types.SecretKey                `json:"privateViewKey"`
	IsViewWallet       bool                           `json:"isViewWallet"`
	TxPrivateKeys      map[types.Hash]types.SecretKey `json:"txPrivateKeys"`
}

// MarshalJSON encodes the registry.
func (r *Registry) MarshalJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j := registryJSON{
		Transactions:       r.transactions,
		LockedTransactions: r.lockedTransactions,
		PrivateViewKey:     r.privateViewKey,
		IsViewWallet:       r.isViewWallet,
		TxPrivateKeys:      r.txPrivateKeys,
	}
	for _, pub := range r.publicSpendKeys {
		j.SubWallets = append(j.SubWallets, r.wallets[pub])
	}
	return json.Marshal(j)
}

// FromJSON restores a registry encoded by MarshalJSON, checking that the
// keys inside are consistent.
func FromJSON(data []byte) (*Registry, error) {
	var j registryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode sub-wallets: %w", err)
	}
	if len(j.SubWallets) == 0 {
		return nil, errors.New("decode sub-wallets: container has no sub-wallets")
	}

	r, err := newRegistry(j.PrivateViewKey, j.IsViewWallet)
	if err != nil {
		return nil, fmt.Errorf("decode sub-wallets: %w", err)
	}

	primaries := 0
	for i, w := range j.SubWallets {
		if w == nil {
			return nil, fmt.Errorf("decode sub-wallets: entry %d is null", i)
		}
		if _, dup := r.wallets[w.PublicSpendKey]; dup {
			return nil, fmt.Errorf("decode sub-wallets: duplicate sub-wallet %s", w.PublicSpendKey)
		}
		if j.IsViewWallet != w.IsView() {
			return nil, fmt.Errorf("decode sub-wallets: sub-wallet %s mixes view and spend keys", w.PublicSpendKey)
		}
		if !w.IsView() {
			pub, err := crypto.SecretKeyToPublicKey(w.PrivateSpendKey)
			if err != nil || pub != w.PublicSpendKey {
				return nil, fmt.Errorf("decode sub-wallets: spend keys of %s do not match", w.PublicSpendKey)
			}
		}
		if w.Primary {
			primaries++
			if i != 0 {
				return nil, errors.New("decode sub-wallets: primary sub-wallet is not first")
			}
		}
		r.add(w)
	}
	if primaries != 1 {
		return nil, fmt.Errorf("decode sub-wallets: %d primary sub-wallets", primaries)
	}

	r.transactions = j.Transactions
	r.lockedTransactions = j.LockedTransactions
	if j.TxPrivateKeys != nil {
		r.txPrivateKeys = j.TxPrivateKeys
	}
	return r, nil
}
