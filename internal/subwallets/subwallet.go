// Package subwallets holds the key material, inputs and transaction history
// of every sub-wallet in a container.
package subwallets

import (
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Unlock rules.
const (
	// CoinbaseMaturity is the number of blocks before a coinbase output can
	// be spent.
	CoinbaseMaturity = 40

	// MaxBlockNumber separates height-based unlock times (below) from
	// timestamp-based ones (at or above).
	MaxBlockNumber = 500_000_000
)

// Input is an output received by a sub-wallet.
type Input struct {
	KeyImage        types.KeyImage `json:"keyImage"`
	Amount          uint64         `json:"amount"`
	BlockHeight     uint64         `json:"blockHeight"`
	TransactionHash types.Hash     `json:"parentTransactionHash"`
	OutputIndex     uint32         `json:"transactionIndex"`
	UnlockTime      uint64         `json:"unlockTime"`
	Coinbase        bool           `json:"coinbase"`
	SpendHeight     uint64         `json:"spendHeight"`
}

// Unlocked reports whether the input can be spent at the given chain height
// and wall-clock time (unix seconds).
func (in Input) Unlocked(height, now uint64) bool {
	if in.Coinbase && height < in.BlockHeight+CoinbaseMaturity {
		return false
	}
	if in.UnlockTime < MaxBlockNumber {
		return height >= in.UnlockTime
	}
	return now >= in.UnlockTime
}

// SubWallet is one managed address in a container.
type SubWallet struct {
	PublicSpendKey types.PublicKey `json:"publicSpendKey"`
	// PrivateSpendKey is zero for view sub-wallets.
	PrivateSpendKey    types.SecretKey `json:"privateSpendKey"`
	Address            string          `json:"address"`
	SyncStartHeight    uint64          `json:"syncStartHeight"`
	SyncStartTimestamp uint64          `json:"syncStartTimestamp"`
	Primary            bool            `json:"isPrimaryAddress"`
	WalletIndex        uint64          `json:"walletIndex"`

	Unspent []Input `json:"unspentInputs"`
	// Locked holds inputs consumed by an outgoing transaction that is not
	// yet in a block.
	Locked []Input `json:"lockedInputs"`
	Spent  []Input `json:"spentInputs"`
	// UnconfirmedIncoming is change owed to us by outgoing transactions
	// that are not yet in a block.
	UnconfirmedIncoming []UnconfirmedInput `json:"unconfirmedIncomingAmounts"`
}

// UnconfirmedInput is an amount we will receive once its transaction
// confirms.
type UnconfirmedInput struct {
	Amount          uint64     `json:"amount"`
	TransactionHash types.Hash `json:"parentTransactionHash"`
}

// IsView reports whether the sub-wallet lacks a private spend key.
func (w *SubWallet) IsView() bool {
	return w.PrivateSpendKey.IsZero()
}

func (w *SubWallet) balance(height, now uint64) (unlocked, locked uint64) {
	for _, in := range w.Unspent {
		if in.Unlocked(height, now) {
			unlocked += in.Amount
		} else {
			locked += in.Amount
		}
	}
	for _, in := range w.UnconfirmedIncoming {
		locked += in.Amount
	}
	return unlocked, locked
}

func (w *SubWallet) hasKeyImage(ki types.KeyImage) bool {
	for _, list := range [][]Input{w.Unspent, w.Locked, w.Spent} {
		for _, in := range list {
			if in.KeyImage == ki {
				return true
			}
		}
	}
	return false
}

func (w *SubWallet) storeInput(in Input) {
	if w.hasKeyImage(in.KeyImage) {
		return
	}
	w.Unspent = append(w.Unspent, in)
}

// markSpent moves an unspent or locked input to the spent list.
func (w *SubWallet) markSpent(ki types.KeyImage, height uint64) bool {
	for _, list := range []*[]Input{&w.Unspent, &w.Locked} {
		for i, in := range *list {
			if in.KeyImage != ki {
				continue
			}
			in.SpendHeight = height
			*list = append((*list)[:i], (*list)[i+1:]...)
			w.Spent = append(w.Spent, in)
			return true
		}
	}
	return false
}

// lock moves an unspent input to the locked list.
func (w *SubWallet) lock(ki types.KeyImage) bool {
	for i, in := range w.Unspent {
		if in.KeyImage == ki {
			w.Unspent = append(w.Unspent[:i], w.Unspent[i+1:]...)
			w.Locked = append(w.Locked, in)
			return true
		}
	}
	return false
}

func (w *SubWallet) unlockAll() {
	w.Unspent = append(w.Unspent, w.Locked...)
	w.Locked = nil
	w.UnconfirmedIncoming = nil
}

// confirm drops the unconfirmed amounts of the transaction hash.
func (w *SubWallet) confirm(hash types.Hash) {
	keep := w.UnconfirmedIncoming[:0]
	for _, in := range w.UnconfirmedIncoming {
		if in.TransactionHash != hash {
			keep = append(keep, in)
		}
	}
	w.UnconfirmedIncoming = keep
}

func (w *SubWallet) reset(scanHeight uint64) {
	w.SyncStartHeight = scanHeight
	w.SyncStartTimestamp = 0
	w.Unspent = nil
	w.Locked = nil
	w.Spent = nil
	w.UnconfirmedIncoming = nil
}

// rewind forgets inputs received at or after scanHeight and un-spends inputs
// spent at or after it.
func (w *SubWallet) rewind(scanHeight uint64) {
	w.unlockAll()

	keep := w.Unspent[:0]
	for _, in := range w.Unspent {
		if in.BlockHeight < scanHeight {
			keep = append(keep, in)
		}
	}
	w.Unspent = keep

	spent := w.Spent[:0]
	for _, in := range w.Spent {
		switch {
		case in.BlockHeight >= scanHeight:
		case in.SpendHeight >= scanHeight:
			in.SpendHeight = 0
			w.Unspent = append(w.Unspent, in)
		default:
			spent = append(spent, in)
		}
	}
	w.Spent = spent
}

func (w *SubWallet) clone() *SubWallet {
	c := *w
	c.Unspent = append([]Input(nil), w.Unspent...)
	c.Locked = append([]Input(nil), w.Locked...)
	c.Spent = append([]Input(nil), w.Spent...)
	c.UnconfirmedIncoming = append([]UnconfirmedInput(nil), w.UnconfirmedIncoming...)
	return &c
}
