// Package transfer builds, caches and submits outgoing transactions.
package transfer

import (
	"context"

	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Daemon is the part of the daemon client the pipeline uses.
type Daemon interface {
	NetworkBlockCount() uint64
	NodeFee() (address string, amount uint64)
	SendTransaction(ctx context.Context, t *tx.Transaction) error
}

// Destination is an amount to pay to an address.
type Destination struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// FeeKind selects how the network fee of a transaction is computed.
type FeeKind int

// Fee kinds.
const (
	FeeMinimum FeeKind = iota // Minimum per-byte rate of the network.
	FeePerByte                // Caller-chosen per-byte rate.
	FeeFixed                  // Caller-chosen total fee.
)

// FeeType is a fee policy. The zero value pays the network minimum.
type FeeType struct {
	Kind  FeeKind
	Value uint64
}

// MinimumFee pays the network minimum fee rate.
func MinimumFee() FeeType { return FeeType{Kind: FeeMinimum} }

// PerByteFee pays rate base units per byte of the signed transaction.
func PerByteFee(rate uint64) FeeType { return FeeType{Kind: FeePerByte, Value: rate} }

// FixedFee pays exactly amount base units.
func FixedFee(amount uint64) FeeType { return FeeType{Kind: FeeFixed, Value: amount} }

// rate returns the per-byte rate for non-fixed fees.
func (f FeeType) rate(minRate uint64) (uint64, error) {
	switch f.Kind {
	case FeeMinimum:
		return minRate, nil
	case FeePerByte:
		if f.Value < minRate {
			return 0, walleterr.WithMessage(walleterr.InvalidFeeType,
				"fee rate %d is below the minimum of %d per byte", f.Value, minRate)
		}
		return f.Value, nil
	default:
		return 0, walleterr.InvalidFeeType
	}
}

// AdvancedParams are the options of SendTransactionAdvanced.
type AdvancedParams struct {
	Destinations []Destination
	Fee          FeeType
	// SubWalletsToTakeFrom limits the inputs to these addresses. Empty means
	// every sub-wallet.
	SubWalletsToTakeFrom []string
	PaymentID            string
	// ChangeAddress receives the change. Defaults to the only sub-wallet
	// taken from, or the primary address.
	ChangeAddress string
	UnlockTime    uint64
	// SendAll pays every spendable input minus fees to the single destination.
	SendAll bool
}

// FusionParams are the options of SendFusionTransactionAdvanced.
type FusionParams struct {
	SubWalletsToTakeFrom []string
	// Destination defaults to the primary address. It must belong to the
	// container.
	Destination string
}

// PreparedTransaction is a signed transaction that has not been broadcast.
type PreparedTransaction struct {
	Hash         types.Hash
	Tx           *tx.Transaction
	Payload      []byte
	Inputs       []types.KeyImage
	Fee          uint64
	Destinations []Destination
	Change       uint64

	record       subwallets.Transaction
	incoming     map[types.PublicKey]uint64
	txPrivateKey types.SecretKey
}
