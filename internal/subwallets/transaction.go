package subwallets

import (
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Transaction is a transaction as seen by the container: the net effect on
// each sub-wallet it touched.
type Transaction struct {
	Hash types.Hash `json:"hash"`
	// Transfers maps a sub-wallet's public spend key to the signed change
	// in its balance.
	Transfers   map[types.PublicKey]int64 `json:"transfers"`
	Fee         uint64                    `json:"fee"`
	BlockHeight uint64                    `json:"blockHeight"`
	Timestamp   uint64                    `json:"timestamp"`
	PaymentID   string                    `json:"paymentID"`
	UnlockTime  uint64                    `json:"unlockTime"`
	Coinbase    bool                      `json:"isCoinbaseTransaction"`
}

// TotalAmount is the net change across every sub-wallet in the transaction.
func (t Transaction) TotalAmount() int64 {
	var sum int64
	for _, amount := range t.Transfers {
		sum += amount
	}
	return sum
}

// IsFusion reports whether the transaction only consolidated our own inputs.
func (t Transaction) IsFusion() bool {
	return t.Fee == 0 && !t.Coinbase && t.TotalAmount() == 0
}

func (t Transaction) clone() Transaction {
	c := t
	c.Transfers = make(map[types.PublicKey]int64, len(t.Transfers))
	for k, v := range t.Transfers {
		c.Transfers[k] = v
	}
	return c
}
