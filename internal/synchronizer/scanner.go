package synchronizer

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/daemon"
	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Store is the part of the sub-wallet registry the synchronizer feeds.
type Store interface {
	IsTracking(pub types.PublicKey, height, timestamp uint64) bool
	KeyImageOwner(ki types.KeyImage) (types.PublicKey, uint64, bool)
	ApplyBlock(b subwallets.BlockResult)
}

// Scanner finds the parts of a block that belong to the container.
//
// ScanOutputs must be safe to call for several blocks at once. Resolve is
// called once per block, in height order, after every earlier block has been
// applied to the store.
type Scanner interface {
	ScanOutputs(b daemon.Block, store Store) []subwallets.OwnedInput
	Resolve(b daemon.Block, outputs []subwallets.OwnedInput, store Store) subwallets.BlockResult
}

// TransparentScanner matches outputs by recipient spend key and spends by
// key image.
type TransparentScanner struct{}

func blockTransactions(b daemon.Block) []tx.Transaction {
	txs := make([]tx.Transaction, 0, len(b.Transactions)+1)
	if b.Coinbase != nil {
		txs = append(txs, *b.Coinbase)
	}
	return append(txs, b.Transactions...)
}

// ScanOutputs returns the outputs of b paid to tracked sub-wallets.
func (TransparentScanner) ScanOutputs(b daemon.Block, store Store) []subwallets.OwnedInput {
	var found []subwallets.OwnedInput
	for i, t := range blockTransactions(b) {
		coinbase := b.Coinbase != nil && i == 0
		hash := t.Hash()
		for idx, out := range t.Outputs {
			if !store.IsTracking(out.Key, b.Height, b.Timestamp) {
				continue
			}
			found = append(found, subwallets.OwnedInput{
				Owner: out.Key,
				Input: subwallets.Input{
					KeyImage:        crypto.DeriveKeyImage(hash, uint32(idx), out.Key),
					Amount:          out.Amount,
					BlockHeight:     b.Height,
					TransactionHash: hash,
					OutputIndex:     uint32(idx),
					UnlockTime:      t.UnlockTime,
					Coinbase:        coinbase,
				},
			})
		}
	}
	return found
}

// Resolve matches spends and builds the container's view of each
// transaction in b.
func (TransparentScanner) Resolve(b daemon.Block, outputs []subwallets.OwnedInput, store Store) subwallets.BlockResult {
	res := subwallets.BlockResult{
		Height:    b.Height,
		Timestamp: b.Timestamp,
		Inputs:    outputs,
	}

	byTx := make(map[types.Hash][]subwallets.OwnedInput)
	local := make(map[types.KeyImage]subwallets.OwnedInput)
	for _, o := range outputs {
		byTx[o.Input.TransactionHash] = append(byTx[o.Input.TransactionHash], o)
		local[o.Input.KeyImage] = o
	}

	for i, t := range blockTransactions(b) {
		hash := t.Hash()
		transfers := make(map[types.PublicKey]int64)

		for _, in := range t.Inputs {
			if owner, amount, ok := store.KeyImageOwner(in.KeyImage); ok {
				transfers[owner] -= int64(amount)
				res.Spent = append(res.Spent, in.KeyImage)
			} else if o, ok := local[in.KeyImage]; ok {
				transfers[o.Owner] -= int64(o.Input.Amount)
				res.Spent = append(res.Spent, in.KeyImage)
			}
		}
		for _, o := range byTx[hash] {
			transfers[o.Owner] += int64(o.Input.Amount)
		}
		if len(transfers) == 0 {
			continue
		}

		fee, err := t.Fee()
		if err != nil {
			fee = 0
		}
		res.Transactions = append(res.Transactions, subwallets.Transaction{
			Hash:        hash,
			Transfers:   transfers,
			Fee:         fee,
			BlockHeight: b.Height,
			Timestamp:   b.Timestamp,
			PaymentID:   t.PaymentID,
			UnlockTime:  t.UnlockTime,
			Coinbase:    b.Coinbase != nil && i == 0,
		})
	}
	return res
}
